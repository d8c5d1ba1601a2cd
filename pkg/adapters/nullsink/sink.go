// Package nullsink provides a no-op frame sink implementation.
package nullsink

import "github.com/user/h264plugin/pkg/ports"

// Sink is a no-op implementation of ports.FrameSink.
// It discards all decoded output.
type Sink struct{}

// New creates a new NullSink.
func New() *Sink {
	return &Sink{}
}

// Enabled returns false as this sink discards all output.
func (s *Sink) Enabled() bool {
	return false
}

// SaveVideoFrame does nothing.
func (s *Sink) SaveVideoFrame(index int, frame *ports.VideoFrame) error {
	return nil
}

// SaveAudioFrame does nothing.
func (s *Sink) SaveAudioFrame(index int, frame *ports.AudioFrame) error {
	return nil
}

// SaveSummary does nothing.
func (s *Sink) SaveSummary(data []byte) error {
	return nil
}

// Close does nothing.
func (s *Sink) Close() error {
	return nil
}

// Ensure Sink implements ports.FrameSink
var _ ports.FrameSink = (*Sink)(nil)
