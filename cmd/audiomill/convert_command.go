package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"audiomill/internal/daemonrun"
	"audiomill/internal/deps"
	"audiomill/internal/logging"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	var logLevel string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "convert <video>",
		Short: "Convert one video locally without a daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if dir := strings.TrimSpace(outputDir); dir != "" {
				abs, err := filepath.Abs(dir)
				if err != nil {
					return fmt.Errorf("resolve output dir: %w", err)
				}
				cfg.Paths.OutputDir = abs
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			statuses := deps.CheckBinaries(deps.MediaRequirements(cfg.FFmpeg.FFmpegBinary, cfg.FFmpeg.FFprobeBinary, cfg.FFmpeg.ProbeInput))
			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("required tools unavailable: %s", strings.Join(missing, ", "))
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := logging.NewCLI(logLevel)
			rt, err := daemonrun.NewRuntime(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = rt.Close(closeCtx)
			}()

			taskID, err := rt.Supervisor.SubmitFile(runCtx, path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			poll := func(context.Context) (string, error) {
				return rt.Supervisor.Query(taskID), nil
			}
			_, waitErr := waitForTask(runCtx, taskID, interval, poll, newProgressReporter(out, taskID))
			if done, ok := rt.Supervisor.Done(taskID); ok && runCtx.Err() == nil {
				<-done
			}
			info, ok := rt.Supervisor.Task(taskID)
			if waitErr != nil {
				if ok && info.Error != "" {
					return fmt.Errorf("%w: %s", waitErr, info.Error)
				}
				return waitErr
			}
			if ok && info.OutputPath != "" {
				fmt.Fprintf(out, "Output: %s\n", info.OutputPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Override paths.output_dir")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level for diagnostics written to stderr")
	cmd.Flags().DurationVar(&interval, "interval", 200*time.Millisecond, "Progress refresh interval")
	return cmd
}
