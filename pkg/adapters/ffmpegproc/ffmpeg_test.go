package ffmpegproc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFindFFmpeg_CustomPath(t *testing.T) {
	defer SetFFmpegPath("")

	tmpDir, err := os.MkdirTemp("", "ffmpegproc-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	fake := filepath.Join(tmpDir, "ffmpeg")
	if err := os.WriteFile(fake, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("failed to write fake ffmpeg: %v", err)
	}

	SetFFmpegPath(fake)
	got, err := FindFFmpeg()
	if err != nil {
		t.Fatalf("FindFFmpeg failed: %v", err)
	}
	if got != fake {
		t.Errorf("FindFFmpeg() = %q, want %q", got, fake)
	}
}

func TestFindFFmpeg_MissingCustomPath(t *testing.T) {
	defer SetFFmpegPath("")

	SetFFmpegPath("/nonexistent/ffmpeg")
	_, err := FindFFmpeg()
	if !errors.Is(err, ErrFFmpegNotFound) {
		t.Errorf("expected ErrFFmpegNotFound, got %v", err)
	}
}

func TestFindFFmpeg_EnvPath(t *testing.T) {
	t.Setenv("FFMPEG_PATH", "/nonexistent/env/ffmpeg")

	_, err := FindFFmpeg()
	if !errors.Is(err, ErrFFmpegNotFound) {
		t.Errorf("expected ErrFFmpegNotFound, got %v", err)
	}
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{limit: 4}
	b.Write([]byte("ab"))
	b.Write([]byte("cdef"))

	if got := b.String(); got != "cdef" {
		t.Errorf("String() = %q, want %q", got, "cdef")
	}
}

func TestStart_InvalidChunkSize(t *testing.T) {
	if _, err := Start("ffmpeg", nil, 0); err == nil {
		t.Error("expected error for zero chunk size")
	}
}

func TestProcess_PassThrough(t *testing.T) {
	ffmpegPath, err := FindFFmpeg()
	if err != nil {
		t.Skip("ffmpeg not available")
	}

	// Raw bytes in, the same raw bytes out.
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le", "-ar", "8000", "-ac", "1", "-i", "pipe:0",
		"-f", "s16le", "-ar", "8000", "-ac", "1", "pipe:1",
	}
	p, err := Start(ffmpegPath, args, 1600)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Close()

	input := make([]byte, 3200)
	for i := range input {
		input[i] = byte(i)
	}
	if err := p.Write(input); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	chunks, err := p.Drain(10 * time.Second)
	if err != nil {
		t.Fatalf("Drain failed: %v (stderr: %s)", err, p.Stderr())
	}

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total != len(input) {
		t.Errorf("received %d bytes, want %d", total, len(input))
	}

	if err := p.Write([]byte{0}); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Drain: expected ErrClosed, got %v", err)
	}

	if err := p.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
