package ffprobe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleReport = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "sample_rate": "48000", "channels": 2}
  ],
  "format": {"filename": "talk.mp4", "nb_streams": 2, "duration": "90.000000", "size": "1048576", "format_name": "mov,mp4"}
}`

func TestParseSampleReport(t *testing.T) {
	result, err := Parse([]byte(sampleReport))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !result.HasAudio() || result.AudioStreamCount() != 1 || result.VideoStreamCount() != 1 {
		t.Fatalf("unexpected stream counts: %+v", result.Streams)
	}
	if result.Duration() != 90*time.Second {
		t.Fatalf("unexpected duration %v", result.Duration())
	}
	if result.SizeBytes() != 1048576 {
		t.Fatalf("unexpected size %d", result.SizeBytes())
	}
	if got := result.ExpectedSegments(30 * time.Second); got != 3 {
		t.Fatalf("ExpectedSegments = %d, want 3", got)
	}
	if got := result.ExpectedSegments(40 * time.Second); got != 3 {
		t.Fatalf("ExpectedSegments(40s) = %d, want 3", got)
	}
}

func TestResultHandlesMissingValues(t *testing.T) {
	result := Result{Format: Format{Duration: "N/A", Size: "-1"}}
	if result.Duration() != 0 {
		t.Fatalf("expected zero duration, got %v", result.Duration())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected zero size, got %d", result.SizeBytes())
	}
	if result.ExpectedSegments(30*time.Second) != 0 {
		t.Fatal("expected unknown segment count")
	}
	if result.HasAudio() {
		t.Fatal("expected no audio")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestInspectRunsBinary(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "ffprobe")
	content := "#!/bin/sh\ncat <<'JSON'\n" + sampleReport + "\nJSON\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	result, err := Inspect(context.Background(), script, filepath.Join(dir, "talk.mp4"))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if result.Format.FormatName != "mov,mp4" {
		t.Fatalf("unexpected format %q", result.Format.FormatName)
	}
}

func TestInspectSurfacesFailure(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "ffprobe")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho 'moov atom not found' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	if _, err := Inspect(context.Background(), script, "broken.mp4"); err == nil {
		t.Fatal("expected error from failing ffprobe")
	}
	if _, err := Inspect(context.Background(), script, " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
