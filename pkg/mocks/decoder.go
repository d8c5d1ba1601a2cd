package mocks

import (
	"image"
	"sync"

	"github.com/user/h264plugin/pkg/ports"
)

// VideoDecoder is a mock implementation of ports.VideoDecoder.
// By default every buffer containing a slice NAL unit (type 1 or 5) yields
// a Width x Height frame; parameter sets alone yield nothing.
type VideoDecoder struct {
	mu sync.Mutex

	Width  int
	Height int

	InitFunc   func() error
	DecodeFunc func(data []byte) (*ports.VideoFrame, error)
	FlushFunc  func() ([]*ports.VideoFrame, error)
	ResetFunc  func() error

	InitCalls  int
	ResetCalls int
	Closed     bool
	Inputs     [][]byte
}

// NewVideoDecoder creates a mock decoder producing width x height frames.
func NewVideoDecoder(width, height int) *VideoDecoder {
	return &VideoDecoder{Width: width, Height: height}
}

func (m *VideoDecoder) Init() error {
	m.mu.Lock()
	m.InitCalls++
	m.mu.Unlock()
	if m.InitFunc != nil {
		return m.InitFunc()
	}
	return nil
}

func (m *VideoDecoder) Decode(data []byte) (*ports.VideoFrame, error) {
	m.mu.Lock()
	m.Inputs = append(m.Inputs, append([]byte(nil), data...))
	m.mu.Unlock()

	if m.DecodeFunc != nil {
		return m.DecodeFunc(data)
	}
	if !hasSlice(data) {
		return nil, nil
	}
	img := image.NewYCbCr(image.Rect(0, 0, m.Width, m.Height), image.YCbCrSubsampleRatio420)
	return &ports.VideoFrame{
		Image:    img,
		Width:    m.Width,
		Height:   m.Height,
		YStride:  img.YStride,
		UVStride: img.CStride,
	}, nil
}

// hasSlice scans Annex B data for a slice NAL unit.
func hasSlice(data []byte) bool {
	for i := 0; i+3 < len(data); i++ {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			switch data[i+3] & 0x1F {
			case 1, 5:
				return true
			}
		}
	}
	return false
}

func (m *VideoDecoder) Flush() ([]*ports.VideoFrame, error) {
	if m.FlushFunc != nil {
		return m.FlushFunc()
	}
	return nil, nil
}

func (m *VideoDecoder) Dimensions() (width, height int, ok bool) {
	return m.Width, m.Height, m.Width > 0 && m.Height > 0
}

func (m *VideoDecoder) Reset() error {
	m.mu.Lock()
	m.ResetCalls++
	m.mu.Unlock()
	if m.ResetFunc != nil {
		return m.ResetFunc()
	}
	return nil
}

func (m *VideoDecoder) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
}

// InputCount returns the number of buffers passed to Decode.
func (m *VideoDecoder) InputCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Inputs)
}

var _ ports.VideoDecoder = (*VideoDecoder)(nil)

// AudioDecoder is a mock implementation of ports.AudioDecoder.
// Every access unit decodes to SamplesPerFrame interleaved samples.
type AudioDecoder struct {
	mu sync.Mutex

	SampleRate      int
	Channels        int
	SamplesPerFrame int

	InitFunc   func() error
	DecodeFunc func(au []byte) (*ports.AudioFrame, error)

	ConfigureCalls int
	ResetCalls     int
	Closed         bool
	Config         []byte
	configured     bool
}

// NewAudioDecoder creates a mock decoder producing 1024-sample frames.
func NewAudioDecoder(sampleRate, channels int) *AudioDecoder {
	return &AudioDecoder{SampleRate: sampleRate, Channels: channels, SamplesPerFrame: 1024}
}

func (m *AudioDecoder) Init() error {
	if m.InitFunc != nil {
		return m.InitFunc()
	}
	return nil
}

func (m *AudioDecoder) Configure(asc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConfigureCalls++
	m.Config = append([]byte(nil), asc...)
	m.configured = true
	return nil
}

func (m *AudioDecoder) Decode(au []byte) (*ports.AudioFrame, error) {
	if m.DecodeFunc != nil {
		return m.DecodeFunc(au)
	}
	return &ports.AudioFrame{
		Samples:    make([]int16, m.SamplesPerFrame*m.Channels),
		SampleRate: m.SampleRate,
		Channels:   m.Channels,
	}, nil
}

func (m *AudioDecoder) Info() (sampleRate, channels, bitsPerSample int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SampleRate, m.Channels, 16, m.configured
}

func (m *AudioDecoder) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResetCalls++
	m.configured = false
	return nil
}

func (m *AudioDecoder) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
}

var _ ports.AudioDecoder = (*AudioDecoder)(nil)
