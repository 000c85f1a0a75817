package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"audiomill/internal/api"
	"audiomill/internal/logging"
)

const logFollowBatch = 200

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var component string
	var taskID string
	var level string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				query := api.LogQuery{
					Limit:     lines,
					Tail:      true,
					Component: component,
					TaskID:    taskID,
					Level:     level,
				}
				if query.Limit <= 0 {
					query.Limit = logFollowBatch
				}

				out := cmd.OutOrStdout()
				printed := false
				for {
					resp, err := client.Logs(cmd.Context(), query)
					if err != nil {
						if follow && cmd.Context().Err() != nil {
							return nil
						}
						return err
					}
					for _, evt := range resp.Events {
						fmt.Fprintln(out, formatLogEvent(evt))
						printed = true
					}
					if !follow {
						if !printed {
							fmt.Fprintln(out, "No log entries available")
						}
						return nil
					}
					if resp.Next > query.Since {
						query.Since = resp.Next
					}
					query.Limit = logFollowBatch
					query.Tail = false
					query.Follow = true
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of recent events to show")
	cmd.Flags().StringVar(&component, "component", "", "Only show events from this component")
	cmd.Flags().StringVar(&taskID, "task", "", "Only show events for this task id")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug, info, warn, error)")
	return cmd
}

func formatLogEvent(evt logging.LogEvent) string {
	ts := evt.Timestamp.Local().Format("2006-01-02 15:04:05")
	lvl := strings.ToUpper(strings.TrimSpace(evt.Level))
	if lvl == "" {
		lvl = "INFO"
	}
	parts := []string{ts, lvl}
	if component := strings.TrimSpace(evt.Component); component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", component))
	}
	if subject := logging.FormatSubject(evt.TaskID, evt.Stage); subject != "" {
		parts = append(parts, subject)
	}
	line := strings.Join(parts, " ")
	if message := strings.TrimSpace(evt.Message); message != "" {
		line += " - " + message
	}
	if len(evt.Fields) == 0 {
		return line
	}
	keys := make([]string, 0, len(evt.Fields))
	for key := range evt.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(line)
	for _, key := range keys {
		value := strings.TrimSpace(evt.Fields[key])
		if value == "" {
			continue
		}
		b.WriteString("\n    - ")
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
	}
	return b.String()
}
