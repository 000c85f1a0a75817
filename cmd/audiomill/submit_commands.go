package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"audiomill/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var wait bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "submit <video>",
		Short: "Upload a video to the daemon for conversion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", path)
			}

			out := cmd.OutOrStdout()
			return ctx.withClient(func(client *api.Client) error {
				taskID, err := client.Upload(cmd.Context(), path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s%s\n", api.UploadAccepted, taskID)
				if !wait {
					return nil
				}
				poll := func(pollCtx context.Context) (string, error) {
					return client.Progress(pollCtx, taskID)
				}
				_, err = waitForTask(cmd.Context(), taskID, interval, poll, newProgressReporter(out, taskID))
				if err != nil {
					return err
				}
				return printTaskOutput(cmd, client, taskID)
			})
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the task to finish")
	cmd.Flags().DurationVar(&interval, "interval", defaultPollInterval, "Polling interval while waiting")
	return cmd
}

func printTaskOutput(cmd *cobra.Command, client *api.Client, taskID string) error {
	resp, err := client.Task(cmd.Context(), taskID)
	if err != nil {
		return err
	}
	var output string
	switch {
	case resp.Task != nil:
		output = resp.Task.OutputPath
	case resp.History != nil:
		output = resp.History.OutputPath
	}
	if output != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Output: %s\n", output)
	}
	return nil
}

func newProgressCommand(ctx *commandContext) *cobra.Command {
	var wait bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "progress <task-id>",
		Short: "Show the progress string for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			out := cmd.OutOrStdout()
			return ctx.withClient(func(client *api.Client) error {
				if !wait {
					message, err := client.Progress(cmd.Context(), taskID)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, message)
					return nil
				}
				poll := func(pollCtx context.Context) (string, error) {
					return client.Progress(pollCtx, taskID)
				}
				_, err := waitForTask(cmd.Context(), taskID, interval, poll, newProgressReporter(out, taskID))
				return err
			})
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until the task finishes")
	cmd.Flags().DurationVar(&interval, "interval", defaultPollInterval, "Polling interval while waiting")
	return cmd
}
