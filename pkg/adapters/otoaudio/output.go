// Package otoaudio plays decoded PCM through the system audio device using
// oto.
package otoaudio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/user/h264plugin/pkg/adapters/logger"
	"github.com/user/h264plugin/pkg/ports"
)

// ErrNotOpen is returned by Write before Open.
var ErrNotOpen = errors.New("audio output not open")

// oto allows a single context per process.
var (
	ctxOnce    sync.Once
	ctx        *oto.Context
	ctxErr     error
	ctxRate    int
	ctxChannel int
)

func sharedContext(sampleRate, channels int) (*oto.Context, error) {
	ctxOnce.Do(func() {
		c, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			ctxErr = fmt.Errorf("create oto context: %w", err)
			return
		}
		<-ready
		ctx, ctxRate, ctxChannel = c, sampleRate, channels
	})
	if ctxErr != nil {
		return nil, ctxErr
	}
	if sampleRate != ctxRate || channels != ctxChannel {
		return nil, fmt.Errorf("audio device already open at %d Hz/%d ch", ctxRate, ctxChannel)
	}
	return ctx, nil
}

// Output implements ports.AudioOutput. Frames written are streamed to an
// oto player through a pipe.
type Output struct {
	log ports.Logger

	mu     sync.Mutex
	player *oto.Player
	pw     *io.PipeWriter
}

// New creates an Output.
func New(log ports.Logger) *Output {
	if log == nil {
		log = logger.NewNoop()
	}
	return &Output{log: log.WithComponent("audio")}
}

// Open starts a player. Opening an open Output is a no-op.
func (o *Output) Open(sampleRate, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		return nil
	}
	c, err := sharedContext(sampleRate, channels)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	o.player = c.NewPlayer(pr)
	o.pw = pw
	o.player.Play()
	o.log.Debug("Audio output opened: %d Hz, %d channels", sampleRate, channels)
	return nil
}

// Write blocks until the player has taken the frame's samples.
func (o *Output) Write(frame *ports.AudioFrame) error {
	if !frame.IsValid() {
		return nil
	}

	o.mu.Lock()
	pw := o.pw
	o.mu.Unlock()
	if pw == nil {
		return ErrNotOpen
	}

	if _, err := pw.Write(encodePCM(nil, frame.Samples)); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	return nil
}

// Close stops the player. The shared context stays alive for later Opens.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pw != nil {
		o.pw.Close()
		o.pw = nil
	}
	if o.player != nil {
		err := o.player.Close()
		o.player = nil
		return err
	}
	return nil
}

// encodePCM writes samples as little-endian bytes into dst, reusing its
// capacity.
func encodePCM(dst []byte, samples []int16) []byte {
	n := len(samples) * 2
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(s))
	}
	return dst
}

// Ensure Output implements ports.AudioOutput
var _ ports.AudioOutput = (*Output)(nil)
