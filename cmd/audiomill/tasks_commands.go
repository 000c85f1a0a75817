package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"audiomill/internal/api"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	var historyLimit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List live tasks and recent history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Tasks(cmd.Context(), historyLimit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				printTaskList(cmd, resp)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&historyLimit, "history", 10, "Number of finished tasks to include from history (0 to skip)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	cmd.AddCommand(newTaskShowCommand(ctx))
	cmd.AddCommand(newTaskCancelCommand(ctx))
	return cmd
}

func printTaskList(cmd *cobra.Command, resp api.TaskListResponse) {
	out := cmd.OutOrStdout()
	if len(resp.Tasks) == 0 {
		fmt.Fprintln(out, "No live tasks")
	} else {
		rows := make([][]string, 0, len(resp.Tasks))
		for _, task := range resp.Tasks {
			rows = append(rows, []string{
				task.TaskID,
				formatStatus(string(task.Status)),
				formatSegments(task.Completed, task.Total),
				valueOrDash(task.SourceName),
				formatBytes(task.InputBytes),
				formatAge(task.CreatedAt),
			})
		}
		fmt.Fprintln(out, renderTable([]tableColumn{
			{Header: "Task"},
			{Header: "Status"},
			{Header: "Segments", Align: alignRight},
			{Header: "Source"},
			{Header: "Size", Align: alignRight},
			{Header: "Submitted"},
		}, rows))
	}

	if len(resp.History) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "History")
	rows := make([][]string, 0, len(resp.History))
	for _, rec := range resp.History {
		rows = append(rows, []string{
			shortID(rec.TaskID),
			formatStatus(rec.Status),
			strconv.Itoa(rec.Segments),
			valueOrDash(rec.SourceName),
			formatDuration(rec.Duration()),
			formatAge(rec.FinishedAt),
		})
	}
	fmt.Fprintln(out, renderTable([]tableColumn{
		{Header: "Task"},
		{Header: "Status"},
		{Header: "Segments", Align: alignRight},
		{Header: "Source"},
		{Header: "Took", Align: alignRight},
		{Header: "Finished"},
	}, rows))
}

func newTaskShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Task(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Task:     %s\n", args[0])
				fmt.Fprintf(out, "Progress: %s\n", resp.Message)
				if task := resp.Task; task != nil {
					fmt.Fprintf(out, "Status:   %s\n", formatStatus(string(task.Status)))
					fmt.Fprintf(out, "Source:   %s (%s)\n", valueOrDash(task.SourceName), formatBytes(task.InputBytes))
					fmt.Fprintf(out, "Segments: %s\n", formatSegments(task.Completed, task.Total))
					if task.OutputPath != "" {
						fmt.Fprintf(out, "Output:   %s\n", task.OutputPath)
					}
					if task.Error != "" {
						fmt.Fprintf(out, "Error:    %s\n", task.Error)
					}
					return nil
				}
				if rec := resp.History; rec != nil {
					fmt.Fprintf(out, "Status:   %s\n", formatStatus(rec.Status))
					fmt.Fprintf(out, "Source:   %s (%s)\n", valueOrDash(rec.SourceName), formatBytes(rec.InputBytes))
					fmt.Fprintf(out, "Segments: %d\n", rec.Segments)
					fmt.Fprintf(out, "Took:     %s\n", formatDuration(rec.Duration()))
					if rec.OutputPath != "" {
						fmt.Fprintf(out, "Output:   %s\n", rec.OutputPath)
					}
					if rec.Error != "" {
						fmt.Fprintf(out, "Error:    %s (%s)\n", rec.Error, valueOrDash(rec.ErrorKind))
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newTaskCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.Cancel(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s\n", args[0])
				return nil
			})
		},
	}
}
