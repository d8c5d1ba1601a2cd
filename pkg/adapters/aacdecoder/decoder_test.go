package aacdecoder

import (
	"bytes"
	"errors"
	"os/exec"
	"testing"

	"github.com/Eyevinn/mp4ff/aac"
	"github.com/user/h264plugin/pkg/adapters/ffmpegproc"
)

func TestBuildASC(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		channels   int
		want       []byte
	}{
		{"44.1k stereo", 44100, 2, []byte{0x12, 0x10}},
		{"48k stereo", 48000, 2, []byte{0x11, 0x90}},
		{"8k mono", 8000, 1, []byte{0x15, 0x88}},
		{"unlisted rate falls back to 44.1k", 12345, 2, []byte{0x12, 0x10}},
		{"channels clamped to 7", 44100, 12, []byte{0x12, 0x38}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildASC(tt.sampleRate, tt.channels)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("BuildASC(%d, %d) = %x, want %x", tt.sampleRate, tt.channels, got, tt.want)
			}
		})
	}
}

func TestBuildASC_Parses(t *testing.T) {
	cfg, err := aac.DecodeAudioSpecificConfig(bytes.NewReader(BuildASC(48000, 2)))
	if err != nil {
		t.Fatalf("DecodeAudioSpecificConfig failed: %v", err)
	}
	if cfg.ObjectType != objectTypeAACLC {
		t.Errorf("ObjectType = %d, want %d", cfg.ObjectType, objectTypeAACLC)
	}
	if cfg.SamplingFrequency != 48000 {
		t.Errorf("SamplingFrequency = %d, want 48000", cfg.SamplingFrequency)
	}
	if cfg.ChannelConfiguration != 2 {
		t.Errorf("ChannelConfiguration = %d, want 2", cfg.ChannelConfiguration)
	}
}

func TestFrequencyIndex(t *testing.T) {
	if got := FrequencyIndex(96000); got != 0 {
		t.Errorf("FrequencyIndex(96000) = %d, want 0", got)
	}
	if got := FrequencyIndex(22050); got != 7 {
		t.Errorf("FrequencyIndex(22050) = %d, want 7", got)
	}
	if got := FrequencyIndex(0); got != defaultFrequencyIndex {
		t.Errorf("FrequencyIndex(0) = %d, want %d", got, defaultFrequencyIndex)
	}
}

func TestOutputChannels(t *testing.T) {
	if outputChannels(7) != 8 {
		t.Error("channel configuration 7 is 7.1")
	}
	if outputChannels(1) != 1 || outputChannels(6) != 6 {
		t.Error("configurations 1-6 map to themselves")
	}
}

func TestDecoder_RequiresInitAndConfigure(t *testing.T) {
	d := New(Options{})

	if err := d.Configure(BuildASC(44100, 2)); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Configure before Init: expected ErrNotInitialized, got %v", err)
	}
	if _, err := d.Decode([]byte{1, 2, 3}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Decode before Init: expected ErrNotInitialized, got %v", err)
	}

	d.initialized = true
	if _, err := d.Decode([]byte{1, 2, 3}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Decode before Configure: expected ErrNotConfigured, got %v", err)
	}
	if _, _, _, ok := d.Info(); ok {
		t.Error("Info should report not configured")
	}
}

func TestDecoder_ConfigureAndADTS(t *testing.T) {
	d := New(Options{})
	d.initialized = true

	if err := d.Configure([]byte{0xff}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	if err := d.Configure(BuildASC(44100, 2)); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	rate, ch, bits, ok := d.Info()
	if !ok || rate != 44100 || ch != 2 || bits != 16 {
		t.Errorf("Info() = %d, %d, %d, %v", rate, ch, bits, ok)
	}

	au := []byte{0x21, 0x10, 0x04, 0x60}
	packet, err := d.ADTS(au)
	if err != nil {
		t.Fatalf("ADTS failed: %v", err)
	}

	if packet[0] != 0xFF || packet[1]&0xF0 != 0xF0 {
		t.Fatalf("missing ADTS syncword: %x", packet[:2])
	}
	frameLen := int(packet[3]&0x03)<<11 | int(packet[4])<<3 | int(packet[5])>>5
	if frameLen != len(packet) {
		t.Errorf("ADTS frame length = %d, want %d", frameLen, len(packet))
	}
	if !bytes.Equal(packet[len(packet)-len(au):], au) {
		t.Error("payload should follow the header")
	}

	if err := d.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, _, _, ok := d.Info(); ok {
		t.Error("Reset should drop the configuration")
	}
}

// encodeAAC produces raw AAC access units with ffmpeg.
func encodeAAC(t *testing.T, ffmpegPath string) [][]byte {
	t.Helper()
	cmd := exec.Command(ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "sine=frequency=440:sample_rate=44100:duration=1",
		"-ac", "2", "-c:a", "aac", "-f", "adts", "pipe:1",
	)
	out, err := cmd.Output()
	if err != nil || len(out) == 0 {
		t.Skipf("ffmpeg cannot encode AAC here: %v", err)
	}

	var aus [][]byte
	for len(out) > 7 {
		frameLen := int(out[3]&0x03)<<11 | int(out[4])<<3 | int(out[5])>>5
		hdrLen := 7
		if out[1]&0x01 == 0 {
			hdrLen = 9
		}
		if frameLen < hdrLen || frameLen > len(out) {
			break
		}
		aus = append(aus, out[hdrLen:frameLen])
		out = out[frameLen:]
	}
	return aus
}

func TestDecoder_DecodeWithFFmpeg(t *testing.T) {
	ffmpegPath, err := ffmpegproc.FindFFmpeg()
	if err != nil {
		t.Skip("ffmpeg not available")
	}
	aus := encodeAAC(t, ffmpegPath)
	if len(aus) == 0 {
		t.Fatal("no access units")
	}

	d := New(Options{})
	if err := d.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer d.Close()
	if err := d.Configure(BuildASC(44100, 2)); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	samples := 0
	for _, au := range aus {
		frame, err := d.Decode(au)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if frame == nil {
			continue
		}
		if frame.Channels != 2 || frame.SampleRate != 44100 {
			t.Errorf("unexpected format %d ch / %d Hz", frame.Channels, frame.SampleRate)
		}
		samples += len(frame.Samples)
	}

	if samples == 0 {
		t.Error("expected some PCM before the end of input")
	}
}
