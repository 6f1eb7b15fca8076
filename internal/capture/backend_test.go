package capture

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBuildArgs(t *testing.T) {
	cfg := SessionConfig{
		OutputPattern:   "/data/video_20250807_153033_%04d.h264",
		SegmentDuration: 20 * time.Minute,
		Width:           1920,
		Height:          1080,
		Bitrate:         10_000_000,
		Framerate:       30,
	}

	args := strings.Join(buildArgs(cfg), " ")

	for _, want := range []string{
		"-t 0",
		"--segment 1200000",
		"-o /data/video_20250807_153033_%04d.h264",
		"--width 1920",
		"--height 1080",
		"--bitrate 10000000",
		"--framerate 30",
		"--codec h264",
		"--inline",
		"--flush",
		"--nopreview",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q: %s", want, args)
		}
	}

	cfg.Preview = true
	args = strings.Join(buildArgs(cfg), " ")
	if strings.Contains(args, "--nopreview") {
		t.Errorf("preview run should not pass --nopreview: %s", args)
	}
}

// writeScript writes an executable shell script for process tests.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-capture")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

// waitExit polls until the backend reports dead or the deadline passes.
func waitExit(t *testing.T, b *ProcessBackend, deadline time.Duration) {
	t.Helper()
	stop := time.Now().Add(deadline)
	for b.Alive() {
		if time.Now().After(stop) {
			t.Fatal("backend still alive")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestProcessBackend_StartStop(t *testing.T) {
	bin := writeScript(t, `trap "exit 0" TERM
while true; do sleep 1; done`)

	b := NewProcessBackend(bin)
	if err := b.Start(SessionConfig{SegmentDuration: time.Minute}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !b.Alive() {
		t.Fatal("expected backend alive after start")
	}

	if err := b.Stop(5 * time.Second); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if b.Alive() {
		t.Error("expected backend dead after stop")
	}
}

func TestProcessBackend_StopForcesKill(t *testing.T) {
	// Ignores TERM; only SIGKILL ends it.
	bin := writeScript(t, `trap "" TERM
while true; do sleep 1; done`)

	b := NewProcessBackend(bin)
	if err := b.Start(SessionConfig{SegmentDuration: time.Minute}); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := b.Stop(200 * time.Millisecond); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if b.Alive() {
		t.Error("expected backend killed")
	}
}

func TestProcessBackend_ImmediateExit(t *testing.T) {
	bin := writeScript(t, `echo "failed to acquire camera" >&2
exit 1`)

	b := NewProcessBackend(bin)
	if err := b.Start(SessionConfig{SegmentDuration: time.Minute}); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitExit(t, b, 5*time.Second)

	if b.ExitError() == nil {
		t.Error("expected non-nil exit error")
	}
	if !strings.Contains(b.Diagnostics(), "failed to acquire camera") {
		t.Errorf("diagnostics missing stderr: %q", b.Diagnostics())
	}
}

func TestProcessBackend_StartMissingBinary(t *testing.T) {
	b := NewProcessBackend(filepath.Join(t.TempDir(), "no-such-binary"))
	if err := b.Start(SessionConfig{SegmentDuration: time.Minute}); err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestProcessBackend_StopWhenNeverStarted(t *testing.T) {
	b := NewProcessBackend("rpicam-vid")
	if err := b.Stop(time.Second); err != nil {
		t.Errorf("stop of never-started backend: %v", err)
	}
}
