package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"audiomill/internal/sysinfo"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Pipeline contains the knobs that shape one conversion run.
type Pipeline struct {
	SegmentSeconds     int    `toml:"segment_seconds"`
	Workers            int    `toml:"workers"`
	SegmentExtension   string `toml:"segment_extension"`
	OutputExtension    string `toml:"output_extension"`
	AudioQuality       string `toml:"audio_quality"`
	AudioBitrate       string `toml:"audio_bitrate"`
	TaskTimeoutSeconds int    `toml:"task_timeout_seconds"`
}

// FFmpeg contains external binary configuration.
type FFmpeg struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	ProbeInput    bool   `toml:"probe_input"`
}

// Tasks contains task table and history configuration.
type Tasks struct {
	RetentionMinutes     int  `toml:"retention_minutes"`
	HistoryEnabled       bool `toml:"history_enabled"`
	HistoryRetentionDays int  `toml:"history_retention_days"`
	MaxUploadMiB         int  `toml:"max_upload_mib"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for audiomill.
//
// Configuration sections by subsystem:
//   - Paths: working, output, and log directories plus the API bind address
//   - Pipeline: segment length, worker pool size, and audio parameters
//   - FFmpeg: external binaries and input probing
//   - Tasks: progress retention, history, and upload limits
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Pipeline Pipeline `toml:"pipeline"`
	FFmpeg   FFmpeg   `toml:"ffmpeg"`
	Tasks    Tasks    `toml:"tasks"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/audiomill/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("audiomill.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// WorkerCount returns the configured fan-out bound, deriving one from the
// host when the config leaves it at zero.
func (c *Config) WorkerCount() int {
	if c.Pipeline.Workers > 0 {
		return c.Pipeline.Workers
	}
	return sysinfo.DefaultWorkers()
}

// SegmentDuration returns the segment length as a duration.
func (c *Config) SegmentDuration() time.Duration {
	return time.Duration(c.Pipeline.SegmentSeconds) * time.Second
}

// TaskTimeout returns the per-task deadline, or zero when runs are unbounded.
func (c *Config) TaskTimeout() time.Duration {
	if c.Pipeline.TaskTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Pipeline.TaskTimeoutSeconds) * time.Second
}

// Retention returns how long terminal tasks stay queryable.
func (c *Config) Retention() time.Duration {
	if c.Tasks.RetentionMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Tasks.RetentionMinutes) * time.Minute
}

// HistoryRetention returns how long finished-task records are kept, or zero
// to keep them forever.
func (c *Config) HistoryRetention() time.Duration {
	if c.Tasks.HistoryRetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.Tasks.HistoryRetentionDays) * 24 * time.Hour
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Tasks.MaxUploadMiB) << 20
}

// HistoryPath returns the SQLite database holding finished task records.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.LogDir, "history.db")
}

// LockPath returns the single-instance daemon lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "audiomilld.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
