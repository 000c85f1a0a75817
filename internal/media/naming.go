package media

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// OutputTimestampLayout is appended to output names (yyyyMMddHHmmss).
const OutputTimestampLayout = "20060102150405"

const (
	segmentInfix      = "_part_"
	compressedSuffix  = "_compressed"
	fallbackBaseName  = "upload"
	maxOutputAttempts = 1000
)

// SanitizeFileName strips directory components from an uploaded file name and
// replaces characters that are unsafe in paths or ffmpeg output patterns.
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '%' || r == 0:
			b.WriteRune('_')
		case unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimLeft(strings.TrimSpace(b.String()), ".")
	if cleaned == "" {
		return fallbackBaseName
	}
	return cleaned
}

// BaseName returns the sanitized upload name without its final extension.
// Names without an extension are kept whole.
func BaseName(name string) string {
	clean := SanitizeFileName(name)
	if idx := strings.LastIndexByte(clean, '.'); idx > 0 {
		clean = clean[:idx]
	}
	if clean == "" {
		return fallbackBaseName
	}
	return clean
}

// SegmentPattern returns the ffmpeg segment muxer output template.
func SegmentPattern(workDir, base, ext string) string {
	return filepath.Join(workDir, fmt.Sprintf("%s%s%%06d.%s", base, segmentInfix, ext))
}

// ListSegments returns the segments written for base under workDir in source
// order. Order comes from the numeric index after the part infix, so it holds
// even once an index outgrows the zero padding.
func ListSegments(workDir, base, ext string) ([]string, error) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return nil, err
	}
	prefix := base + segmentInfix
	suffix := "." + ext
	type indexed struct {
		index int
		path  string
	}
	var found []indexed
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		digits := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
		index, err := strconv.Atoi(digits)
		if err != nil || index < 0 {
			continue
		}
		found = append(found, indexed{index: index, path: filepath.Join(workDir, name)})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].index < found[j].index })
	segments := make([]string, 0, len(found))
	for _, seg := range found {
		segments = append(segments, seg.path)
	}
	return segments, nil
}

// ReplaceExtension swaps the extension of path for ext.
func ReplaceExtension(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + ext
}

// CompressedPath returns the compression target for an extracted audio file.
func CompressedPath(audioPath string) string {
	ext := filepath.Ext(audioPath)
	return strings.TrimSuffix(audioPath, ext) + compressedSuffix + ext
}

// ReserveOutputPath creates an empty placeholder named
// <base>_<yyyyMMddHHmmss>.<ext> in dir and returns its path. When that name
// is taken a -N counter is appended, so concurrent conversions of the same
// base name within one second never share an output.
func ReserveOutputPath(dir, base, ext string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	stem := fmt.Sprintf("%s_%s", base, now.Format(OutputTimestampLayout))
	for attempt := 1; attempt <= maxOutputAttempts; attempt++ {
		name := stem
		if attempt > 1 {
			name = fmt.Sprintf("%s-%d", stem, attempt)
		}
		path := filepath.Join(dir, name+"."+ext)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return path, file.Close()
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("reserve output %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("reserve output for %s: too many collisions", stem)
}

// WriteManifest writes an ffmpeg concat demuxer list naming paths in order.
func WriteManifest(manifestPath string, paths []string) error {
	var b strings.Builder
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolve manifest entry %s: %w", path, err)
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	if err := os.WriteFile(manifestPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
