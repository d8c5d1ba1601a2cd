// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"image/color"
	"os"
	"time"

	"github.com/user/h264plugin/pkg/adapters/aacdecoder"
	"github.com/user/h264plugin/pkg/adapters/h264decoder"
	"github.com/user/h264plugin/pkg/contactsheet"
	"github.com/user/h264plugin/pkg/nativelib"
	"github.com/user/h264plugin/pkg/player"
	"github.com/user/h264plugin/pkg/ports"
	"gopkg.in/yaml.v3"
)

// Config represents the full configuration for h264plugin.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Decoder      DecoderConfig      `yaml:"decoder"`
	Audio        AudioConfig        `yaml:"audio"`
	Player       PlayerConfig       `yaml:"player"`
	Output       OutputConfig       `yaml:"output"`
	ContactSheet ContactSheetConfig `yaml:"contact_sheet"`
}

// DecoderConfig selects and tunes the H.264 decoder.
type DecoderConfig struct {
	Backend        string `yaml:"backend"`
	FFmpegPath     string `yaml:"ffmpeg_path"`
	LibraryPath    string `yaml:"library_path"`
	FrameTimeoutMs int    `yaml:"frame_timeout_ms"`
}

// AudioConfig controls AAC decoding and playback.
type AudioConfig struct {
	Enabled bool `yaml:"enabled"`
	Buffers int  `yaml:"buffers"`
	// Device plays decoded audio on the system output during `play`.
	Device bool `yaml:"device"`
}

// PlayerConfig controls the `play` command's update loop.
type PlayerConfig struct {
	TickMs int `yaml:"tick_ms"`
	// Realtime paces updates with the wall clock instead of running as
	// fast as decoding allows.
	Realtime bool `yaml:"realtime"`
}

// OutputConfig controls what `decode` writes.
type OutputConfig struct {
	Dir          string `yaml:"dir"`
	Frames       bool   `yaml:"frames"`
	Audio        bool   `yaml:"audio"`
	ContactSheet bool   `yaml:"contact_sheet"`
	// Every keeps one frame in N for the contact sheet.
	Every int `yaml:"every"`
}

// ContactSheetConfig controls the contact sheet layout.
type ContactSheetConfig struct {
	Columns       int     `yaml:"columns"`
	ThumbWidth    int     `yaml:"thumb_width"`
	Padding       int     `yaml:"padding"`
	FontSize      float64 `yaml:"font_size"`
	FontPath      string  `yaml:"font_path"`
	Background    string  `yaml:"background_color"`
	LabelColor    string  `yaml:"label_color"`
	KeyframeColor string  `yaml:"keyframe_color"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		LogLevel: "info",

		Decoder: DecoderConfig{
			Backend:        string(h264decoder.BackendAuto),
			FrameTimeoutMs: 2000,
		},

		Audio: AudioConfig{
			Enabled: true,
			Buffers: player.DefaultAudioBuffers,
		},

		Player: PlayerConfig{
			TickMs:   16,
			Realtime: true,
		},

		Output: OutputConfig{
			Dir:          "./out",
			Frames:       true,
			Audio:        true,
			ContactSheet: true,
			Every:        10,
		},

		ContactSheet: ContactSheetConfig{
			Columns:       4,
			ThumbWidth:    160,
			Padding:       8,
			FontSize:      12,
			Background:    "#202020",
			LabelColor:    "#ffffff",
			KeyframeColor: "#e6a000",
		},
	}
}

// LoadFromFile loads configuration from a YAML file. Keys absent from the
// file keep their defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := ports.LookupLogLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := h264decoder.ParseBackend(c.Decoder.Backend); err != nil {
		return err
	}
	if c.Decoder.FrameTimeoutMs < 0 {
		return fmt.Errorf("decoder.frame_timeout_ms must not be negative: %d", c.Decoder.FrameTimeoutMs)
	}
	if c.Audio.Buffers < 1 {
		return fmt.Errorf("audio.buffers must be at least 1: %d", c.Audio.Buffers)
	}
	if c.Player.TickMs < 1 {
		return fmt.Errorf("player.tick_ms must be at least 1: %d", c.Player.TickMs)
	}
	if c.Output.Every < 1 {
		return fmt.Errorf("output.every must be at least 1: %d", c.Output.Every)
	}
	if c.ContactSheet.Columns < 1 {
		return fmt.Errorf("contact_sheet.columns must be at least 1: %d", c.ContactSheet.Columns)
	}
	if c.ContactSheet.ThumbWidth < 8 {
		return fmt.Errorf("contact_sheet.thumb_width must be at least 8: %d", c.ContactSheet.ThumbWidth)
	}
	for name, hex := range map[string]string{
		"background_color": c.ContactSheet.Background,
		"label_color":      c.ContactSheet.LabelColor,
		"keyframe_color":   c.ContactSheet.KeyframeColor,
	} {
		if _, err := LookupColor(hex); err != nil {
			return fmt.Errorf("contact_sheet.%s: %w", name, err)
		}
	}
	return nil
}

// Level returns the configured log level.
func (c Config) Level() ports.LogLevel {
	return ports.ParseLogLevel(c.LogLevel)
}

// ToDecoderOptions converts the decoder section to h264decoder.Options.
func (c Config) ToDecoderOptions(log ports.Logger) h264decoder.Options {
	backend, _ := h264decoder.ParseBackend(c.Decoder.Backend)
	return h264decoder.Options{
		Backend:      backend,
		FFmpegPath:   c.Decoder.FFmpegPath,
		LibraryPath:  c.Decoder.LibraryPath,
		FrameTimeout: time.Duration(c.Decoder.FrameTimeoutMs) * time.Millisecond,
		Logger:       log,
	}
}

// ToAudioOptions converts the decoder and audio sections to aacdecoder.Options.
func (c Config) ToAudioOptions(log ports.Logger) aacdecoder.Options {
	return aacdecoder.Options{
		FFmpegPath:   c.Decoder.FFmpegPath,
		FrameTimeout: time.Duration(c.Decoder.FrameTimeoutMs) * time.Millisecond,
		Logger:       log,
	}
}

// ToLibraryOptions returns the native library search options.
func (c Config) ToLibraryOptions() nativelib.Options {
	return nativelib.Options{Path: c.Decoder.LibraryPath}
}

// ToPlayerOptions converts the audio section to player.Options.
func (c Config) ToPlayerOptions(log ports.Logger) player.Options {
	return player.Options{
		AudioBuffers: c.Audio.Buffers,
		Logger:       log,
	}
}

// ToContactSheetOptions converts the contact_sheet section.
func (c Config) ToContactSheetOptions() contactsheet.Options {
	cs := c.ContactSheet
	return contactsheet.Options{
		Columns:       cs.Columns,
		ThumbWidth:    cs.ThumbWidth,
		Padding:       cs.Padding,
		FontSize:      cs.FontSize,
		FontPath:      cs.FontPath,
		Background:    ParseColor(cs.Background),
		LabelColor:    ParseColor(cs.LabelColor),
		KeyframeColor: ParseColor(cs.KeyframeColor),
	}
}

// ParseColor parses a hex color string to color.Color. Invalid strings
// give black.
func ParseColor(hex string) color.Color {
	c, err := LookupColor(hex)
	if err != nil {
		return color.Black
	}
	return c
}

// LookupColor parses "#rrggbb" or "rrggbb".
func LookupColor(hex string) (color.RGBA, error) {
	s := hex
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", hex)
	}

	var rgb [3]uint8
	for i := range rgb {
		hi, ok1 := hexValue(s[2*i])
		lo, ok2 := hexValue(s[2*i+1])
		if !ok1 || !ok2 {
			return color.RGBA{}, fmt.Errorf("invalid color %q", hex)
		}
		rgb[i] = hi<<4 | lo
	}
	return color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}, nil
}

func hexValue(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
