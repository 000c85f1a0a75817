package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"audiomill/internal/progress"
)

var titleCaser = cases.Title(language.Und)

func formatStatus(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return "-"
	}
	return titleCaser.String(status)
}

func formatBytes(size int64) string {
	if size <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(size))
}

func formatAge(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return humanize.Time(ts)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

func formatSegments(done, total int) string {
	if total <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", done, total)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

// progressState is a parsed GET /progress body.
type progressState struct {
	Completed int
	Total     int
	Status    progress.Status
}

func (p progressState) terminal() bool {
	return p.Status.Terminal()
}

// parseProgress reads the poller-facing status string. Unknown ids parse
// with ok false.
func parseProgress(message string) (progressState, bool) {
	message = strings.TrimSpace(message)
	switch message {
	case progress.MessageCompleted:
		return progressState{Status: progress.StatusCompleted}, true
	case progress.MessageFailed:
		return progressState{Status: progress.StatusFailed}, true
	case progress.MessageNotFound:
		return progressState{}, false
	}
	counts, ok := strings.CutSuffix(message, " completed")
	if !ok {
		return progressState{}, false
	}
	doneText, totalText, ok := strings.Cut(counts, " / ")
	if !ok {
		return progressState{}, false
	}
	done, err := strconv.Atoi(strings.TrimSpace(doneText))
	if err != nil {
		return progressState{}, false
	}
	total, err := strconv.Atoi(strings.TrimSpace(totalText))
	if err != nil {
		return progressState{}, false
	}
	return progressState{Completed: done, Total: total, Status: progress.StatusRunning}, true
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
