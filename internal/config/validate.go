package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateTasks(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.segment_seconds": c.Pipeline.SegmentSeconds,
	}); err != nil {
		return err
	}
	if err := ensureNonNegativeMap(map[string]int{
		"pipeline.workers":              c.Pipeline.Workers,
		"pipeline.task_timeout_seconds": c.Pipeline.TaskTimeoutSeconds,
	}); err != nil {
		return err
	}
	if strings.ContainsAny(c.Pipeline.OutputExtension, `/\`) {
		return errors.New("pipeline.output_extension must not contain path separators")
	}
	if strings.ContainsAny(c.Pipeline.SegmentExtension, `/\`) {
		return errors.New("pipeline.segment_extension must not contain path separators")
	}
	return nil
}

func (c *Config) validateTasks() error {
	if err := ensureNonNegativeMap(map[string]int{
		"tasks.retention_minutes":      c.Tasks.RetentionMinutes,
		"tasks.history_retention_days": c.Tasks.HistoryRetentionDays,
		"logging.retention_days":       c.Logging.RetentionDays,
	}); err != nil {
		return err
	}
	if c.Tasks.MaxUploadMiB <= 0 {
		return errors.New("tasks.max_upload_mib must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func ensureNonNegativeMap(values map[string]int) error {
	for key, value := range values {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}
	return nil
}
