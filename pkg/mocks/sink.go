package mocks

import (
	"sync"

	"github.com/user/h264plugin/pkg/ports"
)

// FrameSink is a mock implementation of ports.FrameSink.
type FrameSink struct {
	mu sync.RWMutex

	enabled bool
	closed  bool

	VideoFrames map[int]*ports.VideoFrame
	AudioFrames map[int]*ports.AudioFrame
	Summary     []byte
}

// NewFrameSink creates a new mock FrameSink.
func NewFrameSink(enabled bool) *FrameSink {
	return &FrameSink{
		enabled:     enabled,
		VideoFrames: make(map[int]*ports.VideoFrame),
		AudioFrames: make(map[int]*ports.AudioFrame),
	}
}

func (m *FrameSink) Enabled() bool {
	return m.enabled
}

func (m *FrameSink) SaveVideoFrame(index int, frame *ports.VideoFrame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VideoFrames[index] = frame.Clone()
	return nil
}

func (m *FrameSink) SaveAudioFrame(index int, frame *ports.AudioFrame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AudioFrames[index] = frame
	return nil
}

func (m *FrameSink) SaveSummary(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Summary = data
	return nil
}

func (m *FrameSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *FrameSink) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

var _ ports.FrameSink = (*FrameSink)(nil)
