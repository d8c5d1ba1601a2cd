package mocks

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/user/h264plugin/pkg/ports"
)

// Demuxer is a mock implementation of ports.Demuxer serving in-memory samples.
type Demuxer struct {
	mu sync.Mutex

	TrackInfos []ports.TrackInfo
	Samples    map[int][]ports.Sample
	SPS        [][]byte
	PPS        [][]byte

	OpenFunc func(r io.ReadSeeker) error

	cursors     map[int]int
	open        bool
	currentTime float64
	SeekCalls   []float64
}

// NewDemuxer creates a mock demuxer with one H.264 video track of frames
// samples at fps, keyframes every gop samples, and optionally an AAC track
// of 1024-sample frames at 44.1 kHz covering the same duration.
func NewDemuxer(frames, fps, gop int, withAudio bool) *Demuxer {
	const videoTimescale = 90000
	dur := uint32(videoTimescale / fps)

	video := make([]ports.Sample, frames)
	for i := range video {
		nalType := byte(0x41)
		if i%gop == 0 {
			nalType = 0x65
		}
		video[i] = ports.Sample{
			Data:       []byte{0, 0, 0, 3, nalType, 0x88, byte(i)},
			Timestamp:  uint64(i) * uint64(dur),
			Duration:   dur,
			IsKeyframe: i%gop == 0,
		}
	}
	duration := float64(frames) / float64(fps)

	m := &Demuxer{
		TrackInfos: []ports.TrackInfo{{
			Type:        ports.TrackVideo,
			Codec:       ports.CodecH264,
			TrackID:     0,
			Duration:    duration,
			Timescale:   videoTimescale,
			Width:       64,
			Height:      48,
			SampleCount: frames,
		}},
		Samples: map[int][]ports.Sample{0: video},
		SPS:     [][]byte{{0x67, 0x42, 0xc0, 0x1e}},
		PPS:     [][]byte{{0x68, 0xce, 0x3c, 0x80}},
		cursors: make(map[int]int),
	}

	if withAudio {
		const rate = 44100
		n := int(duration * rate / 1024)
		audio := make([]ports.Sample, n)
		for i := range audio {
			audio[i] = ports.Sample{
				Data:       []byte{0x21, byte(i)},
				Timestamp:  uint64(i) * 1024,
				Duration:   1024,
				IsKeyframe: true,
			}
		}
		m.TrackInfos = append(m.TrackInfos, ports.TrackInfo{
			Type:        ports.TrackAudio,
			Codec:       ports.CodecAAC,
			TrackID:     1,
			Duration:    float64(n*1024) / rate,
			Timescale:   rate,
			SampleRate:  rate,
			Channels:    2,
			SampleCount: n,
		})
		m.Samples[1] = audio
	}
	return m
}

func (m *Demuxer) Open(r io.ReadSeeker) error {
	if m.OpenFunc != nil {
		if err := m.OpenFunc(r); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = true
	m.cursors = make(map[int]int)
	m.currentTime = 0
	return nil
}

func (m *Demuxer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
}

// IsOpen reports whether Open was called without a later Close.
func (m *Demuxer) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *Demuxer) Tracks() []ports.TrackInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return nil
	}
	return append([]ports.TrackInfo(nil), m.TrackInfos...)
}

func (m *Demuxer) Duration() float64 {
	var d float64
	for _, t := range m.TrackInfos {
		if t.Duration > d {
			d = t.Duration
		}
	}
	return d
}

func (m *Demuxer) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

func (m *Demuxer) ReadNextSample(trackID int) (ports.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	samples, ok := m.Samples[trackID]
	if !ok {
		return ports.Sample{}, fmt.Errorf("invalid track %d", trackID)
	}
	i := m.cursors[trackID]
	if i >= len(samples) {
		return ports.Sample{}, io.EOF
	}
	m.cursors[trackID] = i + 1
	s := samples[i]
	m.currentTime = float64(s.Timestamp) / float64(m.TrackInfos[trackID].Timescale)
	return s, nil
}

func (m *Demuxer) SeekToTime(seconds float64) error {
	duration := m.Duration()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.SeekCalls = append(m.SeekCalls, seconds)
	if seconds < 0 {
		seconds = 0
	}
	if seconds > duration {
		seconds = duration
	}

	for trackID, samples := range m.Samples {
		info := m.TrackInfos[trackID]
		target := uint64(seconds * float64(info.Timescale))
		if info.Type == ports.TrackVideo {
			i := sort.Search(len(samples), func(i int) bool { return samples[i].Timestamp > target }) - 1
			for i > 0 && !samples[i].IsKeyframe {
				i--
			}
			if i < 0 {
				i = 0
			}
			m.cursors[trackID] = i
		} else {
			m.cursors[trackID] = sort.Search(len(samples), func(i int) bool { return samples[i].Timestamp >= target })
		}
	}
	m.currentTime = seconds
	return nil
}

func (m *Demuxer) ParameterSets(trackID int) (sps, pps [][]byte, err error) {
	if trackID < 0 || trackID >= len(m.TrackInfos) || m.TrackInfos[trackID].Codec != ports.CodecH264 {
		return nil, nil, fmt.Errorf("track %d is not H.264", trackID)
	}
	return m.SPS, m.PPS, nil
}

var _ ports.Demuxer = (*Demuxer)(nil)
