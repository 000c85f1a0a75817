package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"audiomill/internal/api"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const statusLabelWidth = 16

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				printDaemonStatus(cmd, status)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func printDaemonStatus(cmd *cobra.Command, status api.DaemonStatus) {
	out := cmd.OutOrStdout()
	colorize := isTerminal(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusError, "stopped", colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Version", statusInfo, valueOrDash(status.Version), colorize))
	fmt.Fprintln(out, renderStatusLine("Started", statusInfo, formatAge(status.StartedAt), colorize))
	fmt.Fprintln(out, renderStatusLine("Workers", statusInfo, strconv.Itoa(status.Workers), colorize))
	fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, valueOrDash(status.LockFilePath), colorize))

	for _, line := range renderSectionHeader("Tasks", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Active", statusInfo, strconv.Itoa(status.Tasks.Active), colorize))
	fmt.Fprintln(out, renderStatusLine("Submitted", statusInfo, strconv.FormatUint(status.Tasks.Submitted, 10), colorize))
	fmt.Fprintln(out, renderStatusLine("Completed", statusOK, strconv.FormatUint(status.Tasks.Completed, 10), colorize))
	failedKind := statusOK
	if status.Tasks.Failed > 0 {
		failedKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Failed", failedKind, strconv.FormatUint(status.Tasks.Failed, 10), colorize))
	if status.HistoryPath != "" {
		fmt.Fprintln(out, renderStatusLine("History", statusInfo, formatHistoryStats(status.HistoryStats), colorize))
	}

	if len(status.Dependencies) == 0 {
		return
	}
	fmt.Fprintln(out)
	rows := make([][]string, 0, len(status.Dependencies))
	for _, dep := range status.Dependencies {
		detail := dep.Detail
		if dep.Available && dep.Path != "" && detail == "" {
			detail = dep.Path
		}
		rows = append(rows, []string{
			dep.Name,
			dep.Command,
			yesNo(dep.Available),
			yesNo(dep.Optional),
			valueOrDash(detail),
		})
	}
	fmt.Fprintln(out, renderTable([]tableColumn{
		{Header: "Dependency"},
		{Header: "Command"},
		{Header: "Available"},
		{Header: "Optional"},
		{Header: "Detail"},
	}, rows))
}

func formatHistoryStats(stats map[string]int) string {
	if len(stats) == 0 {
		return "empty"
	}
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", key, stats[key]))
	}
	return strings.Join(parts, ", ")
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}
