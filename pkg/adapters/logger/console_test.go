package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/user/h264plugin/pkg/ports"
)

func TestConsoleLogger_Streams(t *testing.T) {
	var out, errOut bytes.Buffer
	log := NewWriters(ports.LevelDebug, &out, &errOut)

	log.Debug("debug line %d", 1)
	log.Info("info line %d", 2)
	log.Warn("warn line %d", 3)
	log.Error("error line %d", 4)

	if got := out.String(); got != "debug line 1\ninfo line 2\n" {
		t.Errorf("stdout = %q", got)
	}
	if got := errOut.String(); got != "warn line 3\nerror line 4\n" {
		t.Errorf("stderr = %q", got)
	}
}

func TestConsoleLogger_Level(t *testing.T) {
	tests := []struct {
		level ports.LogLevel
		lines int
	}{
		{ports.LevelDebug, 4},
		{ports.LevelInfo, 3},
		{ports.LevelWarn, 2},
		{ports.LevelError, 1},
		{ports.LevelQuiet, 0},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWriters(tt.level, &buf, &buf)
			log.Debug("d")
			log.Info("i")
			log.Warn("w")
			log.Error("e")

			if got := strings.Count(buf.String(), "\n"); got != tt.lines {
				t.Errorf("wrote %d lines, want %d", got, tt.lines)
			}
		})
	}
}

func TestConsoleLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	root := NewWriters(ports.LevelInfo, &buf, &buf)
	log := root.WithComponent("demuxer")

	log.Info("opened %s", "a.mp4")
	root.Info("plain")

	want := "[demuxer] opened a.mp4\nplain\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestConsoleLogger_ConcurrentLines(t *testing.T) {
	var buf bytes.Buffer
	root := NewWriters(ports.LevelInfo, &buf, &buf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			log := root.WithComponent("worker")
			for j := 0; j < 50; j++ {
				log.Info("line %d-%d", n, j)
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 400 {
		t.Fatalf("got %d lines, want 400", len(lines))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "[worker] line ") {
			t.Fatalf("interleaved line %q", line)
		}
	}
}

func TestNoopLogger(t *testing.T) {
	var log ports.Logger = NewNoop()
	if log.WithComponent("x") != log {
		t.Error("WithComponent should return the same logger")
	}
	log.Error("ignored %d", 1)
}
