package summarizer

import (
	"testing"
	"time"

	"github.com/user/h264plugin/pkg/ports"
)

func TestNewSummary(t *testing.T) {
	before := time.Now()
	summary := NewSummary()
	after := time.Now()

	if summary.GeneratedAt.Before(before) || summary.GeneratedAt.After(after) {
		t.Errorf("GeneratedAt should be between %v and %v, got %v",
			before, after, summary.GeneratedAt)
	}
}

func TestBuilder_FullChain(t *testing.T) {
	tracks := []ports.TrackInfo{
		{Type: ports.TrackVideo, Codec: ports.CodecH264, TrackID: 0, Width: 640, Height: 360},
		{Type: ports.TrackAudio, Codec: ports.CodecAAC, TrackID: 1, SampleRate: 48000, Channels: 2},
	}
	summary := NewBuilder().
		WithInput("movie.mp4", 2048, 2.5).
		WithTracks(tracks).
		WithDecode(DecodeInfo{VideoFrames: 75, AudioFrames: 117, Keyframes: 3, ElapsedMs: 1500}).
		WithSettings(Settings{Backend: "ffmpeg", AudioEnabled: true}).
		Build()

	if summary.Input.Path != "movie.mp4" || summary.Input.Size != 2048 || summary.Input.Duration != 2.5 {
		t.Errorf("Input = %+v", summary.Input)
	}
	if len(summary.Tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(summary.Tracks))
	}
	tracks[0].Width = 1
	if summary.Tracks[0].Width != 640 {
		t.Error("WithTracks should copy the slice")
	}
	if summary.Decode.VideoFrames != 75 || summary.Settings.Backend != "ffmpeg" {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestDecodeInfo_FPS(t *testing.T) {
	tests := []struct {
		info DecodeInfo
		want float64
	}{
		{DecodeInfo{VideoFrames: 75, ElapsedMs: 1500}, 50},
		{DecodeInfo{VideoFrames: 10, ElapsedMs: 0}, 0},
		{DecodeInfo{}, 0},
	}
	for _, tt := range tests {
		if got := tt.info.FPS(); got != tt.want {
			t.Errorf("FPS(%+v) = %v, want %v", tt.info, got, tt.want)
		}
	}
}
