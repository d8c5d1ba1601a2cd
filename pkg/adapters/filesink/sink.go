// Package filesink writes decoded output to files for inspection.
package filesink

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/user/h264plugin/pkg/ports"
)

// Sink saves each video frame as a PNG and collects PCM into a WAV file
// written on Close.
type Sink struct {
	baseDir  string
	fs       ports.FileSystem
	renderer ports.Renderer

	mu         sync.Mutex
	pcm        bytes.Buffer
	sampleRate int
	channels   int
	closed     bool
}

// New creates a new Sink.
func New(baseDir string, fs ports.FileSystem, renderer ports.Renderer) *Sink {
	return &Sink{
		baseDir:  baseDir,
		fs:       fs,
		renderer: renderer,
	}
}

// Enabled returns true as this sink saves output.
func (s *Sink) Enabled() bool {
	return true
}

// SaveVideoFrame encodes the frame as frames/frame-NNNN.png.
func (s *Sink) SaveVideoFrame(index int, frame *ports.VideoFrame) error {
	if !frame.IsValid() {
		return fmt.Errorf("frame %d: no picture", index)
	}
	dir := filepath.Join(s.baseDir, "frames")
	if err := s.fs.MkdirAll(dir); err != nil {
		return err
	}
	data, err := s.renderer.EncodeImage(frame.ToRGBA(), ports.FormatPNG, 0)
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", index, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("frame-%04d.png", index))
	return s.fs.WriteFile(path, data)
}

// SaveAudioFrame buffers the frame's samples. The first frame fixes the
// output format; frames in another format are rejected.
func (s *Sink) SaveAudioFrame(index int, frame *ports.AudioFrame) error {
	if !frame.IsValid() {
		return fmt.Errorf("audio frame %d: no samples", index)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sampleRate == 0 {
		s.sampleRate = frame.SampleRate
		s.channels = frame.Channels
	} else if frame.SampleRate != s.sampleRate || frame.Channels != s.channels {
		return fmt.Errorf("audio frame %d: format %d Hz/%d ch differs from %d Hz/%d ch",
			index, frame.SampleRate, frame.Channels, s.sampleRate, s.channels)
	}
	return binary.Write(&s.pcm, binary.LittleEndian, frame.Samples)
}

// SaveSummary saves the run summary as summary.json.
func (s *Sink) SaveSummary(data []byte) error {
	return s.fs.WriteFile(filepath.Join(s.baseDir, "summary.json"), data)
}

// Close writes audio.wav when any audio was saved. Later calls do nothing.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.pcm.Len() == 0 {
		return nil
	}
	wav := encodeWAV(s.pcm.Bytes(), s.sampleRate, s.channels)
	return s.fs.WriteFile(filepath.Join(s.baseDir, "audio.wav"), wav)
}

// encodeWAV prefixes 16-bit little-endian PCM with a canonical RIFF header.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// Ensure Sink implements ports.FrameSink
var _ ports.FrameSink = (*Sink)(nil)
