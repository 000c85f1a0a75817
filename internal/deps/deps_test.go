package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	present := writeStub(t, t.TempDir(), "present", "exit 0\n")
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  ", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path != present || results[0].Detail != "" {
		t.Fatalf("unexpected status for present binary: %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail: %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", results[2].Detail)
	}

	missing := MissingRequired(results)
	if len(missing) != 1 || missing[0] != "Missing" {
		t.Fatalf("MissingRequired = %v, want [Missing]", missing)
	}
}

func TestMediaRequirementsProbeOptional(t *testing.T) {
	reqs := MediaRequirements("ffmpeg", "ffprobe", false)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(reqs))
	}
	if reqs[0].Optional {
		t.Fatal("ffmpeg must be required")
	}
	if !reqs[1].Optional {
		t.Fatal("ffprobe should be optional when probing is disabled")
	}
	if MediaRequirements("ffmpeg", "ffprobe", true)[1].Optional {
		t.Fatal("ffprobe should be required when probing is enabled")
	}
}

func TestToolVersion(t *testing.T) {
	stub := writeStub(t, t.TempDir(), "ffmpeg", "echo 'ffmpeg version 7.1 Copyright (c) 2000-2024'\necho 'built with gcc'\n")
	version, err := ToolVersion(context.Background(), stub)
	if err != nil {
		t.Fatalf("ToolVersion: %v", err)
	}
	if version != "ffmpeg version 7.1 Copyright (c) 2000-2024" {
		t.Fatalf("unexpected version %q", version)
	}

	failing := writeStub(t, t.TempDir(), "broken", "exit 3\n")
	if _, err := ToolVersion(context.Background(), failing); err == nil {
		t.Fatal("expected error from failing binary")
	}
}
