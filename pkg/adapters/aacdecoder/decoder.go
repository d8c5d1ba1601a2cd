// Package aacdecoder decodes raw AAC access units to 16-bit PCM by wrapping
// them in ADTS headers and piping them through ffmpeg.
package aacdecoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Eyevinn/mp4ff/aac"
	"github.com/user/h264plugin/pkg/adapters/ffmpegproc"
	"github.com/user/h264plugin/pkg/adapters/logger"
	"github.com/user/h264plugin/pkg/ports"
)

var (
	// ErrNotInitialized is returned when decoder methods are called before initialization.
	ErrNotInitialized = errors.New("aacdecoder: decoder not initialized")

	// ErrNotConfigured is returned when Decode is called before Configure.
	ErrNotConfigured = errors.New("aacdecoder: decoder not configured")

	// ErrInvalidConfig is returned for an unparsable AudioSpecificConfig.
	ErrInvalidConfig = errors.New("aacdecoder: invalid AudioSpecificConfig")
)

// DefaultFrameTimeout is how long Decode waits for the first PCM block.
const DefaultFrameTimeout = 30 * time.Millisecond

// Options configures the decoder.
type Options struct {
	FFmpegPath   string
	FrameTimeout time.Duration
	Logger       ports.Logger
}

// Decoder implements ports.AudioDecoder.
type Decoder struct {
	opts Options
	log  ports.Logger

	mu          sync.Mutex
	initialized bool
	ffmpegPath  string
	proc        *ffmpegproc.Process

	configured bool
	objectType byte
	chanConfig byte
	sampleRate int
	channels   int
}

var _ ports.AudioDecoder = (*Decoder)(nil)

// New creates a new AAC decoder.
func New(opts Options) *Decoder {
	if opts.FrameTimeout <= 0 {
		opts.FrameTimeout = DefaultFrameTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNoop()
	}
	return &Decoder{opts: opts, log: log.WithComponent("aac")}
}

// Init locates ffmpeg.
func (d *Decoder) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}
	if d.opts.FFmpegPath != "" {
		ffmpegproc.SetFFmpegPath(d.opts.FFmpegPath)
	}
	path, err := ffmpegproc.FindFFmpeg()
	if err != nil {
		return err
	}
	d.ffmpegPath = path
	d.initialized = true
	return nil
}

// Configure parses an AudioSpecificConfig and prepares the output format.
func (d *Decoder) Configure(asc []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return ErrNotInitialized
	}

	cfg, err := aac.DecodeAudioSpecificConfig(bytes.NewReader(asc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	d.closeProcess()
	d.objectType = cfg.ObjectType
	d.chanConfig = cfg.ChannelConfiguration
	d.sampleRate = cfg.SamplingFrequency
	d.channels = outputChannels(cfg.ChannelConfiguration)
	d.configured = true

	d.log.Debug("AAC configured: %d Hz, %d channels", d.sampleRate, d.channels)
	return nil
}

func (d *Decoder) start() error {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-probesize", "32", "-analyzeduration", "0",
		"-f", "adts", "-i", "pipe:0",
		"-f", "s16le",
		"-ac", strconv.Itoa(d.channels),
		"-ar", strconv.Itoa(d.sampleRate),
		"pipe:1",
	}
	// One chunk per 1024-sample AAC frame.
	chunk := 1024 * d.channels * 2
	proc, err := ffmpegproc.Start(d.ffmpegPath, args, chunk)
	if err != nil {
		return err
	}
	d.proc = proc
	return nil
}

// ADTS returns au prefixed with an ADTS header for the configured stream.
func (d *Decoder) ADTS(au []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.adts(au)
}

func (d *Decoder) adts(au []byte) ([]byte, error) {
	if !d.configured {
		return nil, ErrNotConfigured
	}
	hdr, err := aac.NewADTSHeader(d.sampleRate, d.chanConfig, d.objectType, uint16(len(au)))
	if err != nil {
		return nil, fmt.Errorf("build ADTS header: %w", err)
	}
	return append(hdr.Encode(), au...), nil
}

// Decode decodes one raw access unit. PCM is returned as soon as ffmpeg
// produces it, which lags the input by a frame or two.
func (d *Decoder) Decode(au []byte) (*ports.AudioFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil, ErrNotInitialized
	}
	if !d.configured {
		return nil, ErrNotConfigured
	}
	if len(au) == 0 {
		return nil, nil
	}

	packet, err := d.adts(au)
	if err != nil {
		return nil, err
	}

	if d.proc == nil {
		if err := d.start(); err != nil {
			return nil, err
		}
	}
	if err := d.proc.Write(packet); err != nil {
		d.closeProcess()
		return nil, fmt.Errorf("decode AAC: %w", err)
	}

	var pcm []byte
	if chunk, ok := d.proc.Receive(d.opts.FrameTimeout); ok {
		pcm = append(pcm, chunk...)
		for {
			more, ok := d.proc.Receive(0)
			if !ok {
				break
			}
			pcm = append(pcm, more...)
		}
	}
	if len(pcm) == 0 {
		return nil, nil
	}
	return d.frame(pcm), nil
}

func (d *Decoder) frame(pcm []byte) *ports.AudioFrame {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return &ports.AudioFrame{
		Samples:    samples,
		SampleRate: d.sampleRate,
		Channels:   d.channels,
	}
}

// Info returns the configured output format.
func (d *Decoder) Info() (sampleRate, channels, bitsPerSample int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured {
		return 0, 0, 0, false
	}
	return d.sampleRate, d.channels, 16, true
}

// Reset drops buffered audio; Configure must be called again.
func (d *Decoder) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	d.closeProcess()
	d.configured = false
	return nil
}

// Close releases decoder resources.
func (d *Decoder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeProcess()
	d.configured = false
	d.initialized = false
}

func (d *Decoder) closeProcess() {
	if d.proc != nil {
		d.proc.Close()
		d.proc = nil
	}
}
