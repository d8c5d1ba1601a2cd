// Package summarizer builds human-readable reports of a decode run.
package summarizer

import (
	"time"

	"github.com/user/h264plugin/pkg/ports"
)

// Summary contains all data collected during a decode run.
type Summary struct {
	// Metadata
	GeneratedAt time.Time

	Input    InputInfo
	Tracks   []ports.TrackInfo
	Decode   DecodeInfo
	Settings Settings
}

// InputInfo describes the decoded file.
type InputInfo struct {
	Path     string
	Size     int64
	Duration float64 // seconds
}

// DecodeInfo contains the decode results.
type DecodeInfo struct {
	VideoFrames int
	AudioFrames int
	Keyframes   int
	Errors      int
	Width       int
	Height      int
	ElapsedMs   int64
}

// FPS returns decoded video frames per wall-clock second.
func (d DecodeInfo) FPS() float64 {
	if d.ElapsedMs <= 0 {
		return 0
	}
	return float64(d.VideoFrames) * 1000 / float64(d.ElapsedMs)
}

// Settings contains the decoder configuration of the run.
type Settings struct {
	Backend      string
	AudioEnabled bool
	StartSec     float64
	MaxFrames    int
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithInput sets the input file information.
func (b *Builder) WithInput(path string, size int64, duration float64) *Builder {
	b.summary.Input = InputInfo{Path: path, Size: size, Duration: duration}
	return b
}

// WithTracks sets the container's tracks.
func (b *Builder) WithTracks(tracks []ports.TrackInfo) *Builder {
	b.summary.Tracks = append([]ports.TrackInfo(nil), tracks...)
	return b
}

// WithDecode sets the decode results.
func (b *Builder) WithDecode(info DecodeInfo) *Builder {
	b.summary.Decode = info
	return b
}

// WithSettings sets the decoder configuration.
func (b *Builder) WithSettings(settings Settings) *Builder {
	b.summary.Settings = settings
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
