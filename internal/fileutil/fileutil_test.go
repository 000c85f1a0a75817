package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteStream(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "upload.mp4")
	content := "hello world"

	written, err := WriteStream(strings.NewReader(content), dst, 0)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256([]byte(content))
	if written.Size != int64(len(content)) || written.SHA256 != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected summary %+v", written)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != content {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestWriteStreamEmpty(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "empty.mp4")
	written, err := WriteStream(strings.NewReader(""), dst, 10)
	if err != nil {
		t.Fatal(err)
	}
	if written.Size != 0 {
		t.Fatalf("expected zero size, got %d", written.Size)
	}
}

func TestWriteStreamLimit(t *testing.T) {
	dir := t.TempDir()
	exact := filepath.Join(dir, "exact.bin")
	if _, err := WriteStream(strings.NewReader("1234"), exact, 4); err != nil {
		t.Fatalf("stream at limit rejected: %v", err)
	}

	over := filepath.Join(dir, "over.bin")
	_, err := WriteStream(strings.NewReader("12345"), over, 4)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, statErr := os.Stat(over); !os.IsNotExist(statErr) {
		t.Fatalf("oversized file should be removed, stat err=%v", statErr)
	}
}

func TestWriteStreamRefusesOverwrite(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "taken.bin")
	if err := os.WriteFile(dst, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteStream(strings.NewReader("new"), dst, 0); err == nil {
		t.Fatal("expected error for existing destination")
	}
	if got, _ := os.ReadFile(dst); string(got) != "keep" {
		t.Fatalf("existing file modified: %q", got)
	}
}

func TestWriteFileStream(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	written, err := WriteFileStream(src, filepath.Join(dir, "dst.bin"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if written.Size != 4 {
		t.Fatalf("unexpected size %d", written.Size)
	}
	if _, err := WriteFileStream(filepath.Join(dir, "missing"), filepath.Join(dir, "x"), 0); err == nil {
		t.Fatal("expected error for missing source")
	}
}
