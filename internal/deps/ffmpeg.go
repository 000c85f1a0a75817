package deps

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// MediaRequirements lists the ffmpeg tools the conversion pipeline invokes.
// ffprobe is optional when input probing is disabled.
func MediaRequirements(ffmpegBinary, ffprobeBinary string, probeInput bool) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpegBinary,
			Description: "Segments video and transcodes audio",
		},
		{
			Name:        "FFprobe",
			Command:     ffprobeBinary,
			Description: "Inspects uploads before segmenting",
			Optional:    !probeInput,
		},
	}
}

// ToolVersion returns the first line of "<binary> -version", which for
// ffmpeg and ffprobe carries the release string.
func ToolVersion(ctx context.Context, binary string) (string, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return "", fmt.Errorf("tool version: empty binary")
	}
	output, err := exec.CommandContext(ctx, binary, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("tool version %s: %w", binary, err)
	}
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	return "", fmt.Errorf("tool version %s: empty output", binary)
}
