package config

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/h264plugin/pkg/adapters/h264decoder"
	"github.com/user/h264plugin/pkg/ports"
)

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if cfg.Level() != ports.LevelInfo {
		t.Errorf("Level() = %v, want info", cfg.Level())
	}
	if cfg.Audio.Buffers != 4 {
		t.Errorf("Audio.Buffers = %d, want 4", cfg.Audio.Buffers)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "h264plugin.yaml")
	yml := `
log_level: debug
decoder:
  backend: ffmpeg
  ffmpeg_path: /usr/local/bin/ffmpeg
  frame_timeout_ms: 500
audio:
  buffers: 8
contact_sheet:
  columns: 6
`
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Level() != ports.LevelDebug {
		t.Errorf("Level() = %v, want debug", cfg.Level())
	}
	opts := cfg.ToDecoderOptions(nil)
	if opts.Backend != h264decoder.BackendFFmpeg || opts.FFmpegPath != "/usr/local/bin/ffmpeg" {
		t.Errorf("decoder options = %+v", opts)
	}
	if opts.FrameTimeout != 500*time.Millisecond {
		t.Errorf("FrameTimeout = %v, want 500ms", opts.FrameTimeout)
	}
	if a := cfg.ToAudioOptions(nil); a.FFmpegPath != "/usr/local/bin/ffmpeg" || a.FrameTimeout != 500*time.Millisecond {
		t.Errorf("audio options = %+v", a)
	}
	if p := cfg.ToPlayerOptions(nil); p.AudioBuffers != 8 {
		t.Errorf("AudioBuffers = %d, want 8", p.AudioBuffers)
	}

	// Unset keys keep their defaults.
	if cfg.ContactSheet.Columns != 6 || cfg.ContactSheet.ThumbWidth != 160 {
		t.Errorf("contact sheet = %+v", cfg.ContactSheet)
	}
	if !cfg.Audio.Enabled || cfg.Output.Dir != "./out" {
		t.Errorf("defaults lost: audio=%+v output=%+v", cfg.Audio, cfg.Output)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(os.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	tmpDir, err := os.MkdirTemp("", "config_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "bad.yaml")
	os.WriteFile(path, []byte("decoder: [unclosed"), 0644)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.LogLevel = "verbose" }, "log level"},
		{"backend", func(c *Config) { c.Decoder.Backend = "vaapi" }, "unknown backend"},
		{"timeout", func(c *Config) { c.Decoder.FrameTimeoutMs = -1 }, "frame_timeout_ms"},
		{"buffers", func(c *Config) { c.Audio.Buffers = 0 }, "audio.buffers"},
		{"tick", func(c *Config) { c.Player.TickMs = 0 }, "tick_ms"},
		{"every", func(c *Config) { c.Output.Every = 0 }, "output.every"},
		{"columns", func(c *Config) { c.ContactSheet.Columns = 0 }, "columns"},
		{"thumb width", func(c *Config) { c.ContactSheet.ThumbWidth = 4 }, "thumb_width"},
		{"color", func(c *Config) { c.ContactSheet.LabelColor = "#12345g" }, "label_color"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.Color
	}{
		{"#ff8000", color.RGBA{R: 255, G: 128, B: 0, A: 255}},
		{"00FF7f", color.RGBA{R: 0, G: 255, B: 127, A: 255}},
		{"", color.Black},
		{"#fff", color.Black},
		{"#zzzzzz", color.Black},
	}
	for _, tt := range tests {
		if got := ParseColor(tt.in); got != tt.want {
			t.Errorf("ParseColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestToContactSheetOptions(t *testing.T) {
	opts := Defaults().ToContactSheetOptions()
	if opts.Columns != 4 || opts.ThumbWidth != 160 {
		t.Errorf("options = %+v", opts)
	}
	if opts.LabelColor != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("LabelColor = %v, want white", opts.LabelColor)
	}
}
