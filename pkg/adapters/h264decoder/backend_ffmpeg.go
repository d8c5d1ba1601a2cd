package h264decoder

import (
	"fmt"
	"image"
	"strconv"
	"time"

	"github.com/user/h264plugin/pkg/adapters/ffmpegproc"
)

// ffmpegBackend decodes by piping Annex B into a long-lived ffmpeg process
// and reading raw yuv420p pictures back. ffmpeg holds a picture until it
// sees the start of the next access unit, so output lags input.
type ffmpegBackend struct {
	ffmpegPath string
	timeout    time.Duration

	proc      *ffmpegproc.Process
	width     int
	height    int
	paramSets []byte
}

func newFFmpegBackend(ffmpegPath string, timeout time.Duration) *ffmpegBackend {
	return &ffmpegBackend{ffmpegPath: ffmpegPath, timeout: timeout}
}

func (b *ffmpegBackend) name() Backend { return BackendFFmpeg }

func (b *ffmpegBackend) init() error {
	if b.ffmpegPath != "" {
		ffmpegproc.SetFFmpegPath(b.ffmpegPath)
	}
	path, err := ffmpegproc.FindFFmpeg()
	if err != nil {
		return err
	}
	b.ffmpegPath = path
	return nil
}

func (b *ffmpegBackend) args() []string {
	size := strconv.Itoa(b.width) + "x" + strconv.Itoa(b.height)
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-probesize", "32", "-analyzeduration", "0",
		"-fflags", "nobuffer", "-flags", "low_delay",
		"-threads", "1",
		"-f", "h264", "-i", "pipe:0",
		"-vsync", "passthrough",
		"-f", "rawvideo", "-pix_fmt", "yuv420p", "-s", size,
		"pipe:1",
	}
}

func (b *ffmpegBackend) configure(width, height int, paramSets []byte) error {
	if b.proc != nil && (width != b.width || height != b.height) {
		// A new picture size needs a new output chunk size.
		b.proc.Close()
		b.proc = nil
	}
	b.width, b.height = width, height
	b.paramSets = paramSets
	return nil
}

func (b *ffmpegBackend) start() error {
	proc, err := ffmpegproc.Start(b.ffmpegPath, b.args(), yuv420Size(b.width, b.height))
	if err != nil {
		return err
	}
	b.proc = proc
	return nil
}

func (b *ffmpegBackend) send(data []byte) error {
	if b.width == 0 || b.height == 0 {
		return fmt.Errorf("%w: no parameter sets received", errSkipFrame)
	}

	if b.proc == nil {
		if err := b.start(); err != nil {
			return err
		}
		// A fresh process has not seen the cached parameter sets.
		if len(b.paramSets) > 0 {
			if err := b.proc.Write(b.paramSets); err != nil {
				return err
			}
		}
	}

	if err := b.proc.Write(data); err != nil {
		return err
	}
	return nil
}

func (b *ffmpegBackend) receive(pool *framePool) (*image.YCbCr, error) {
	if b.proc == nil {
		return nil, nil
	}

	chunk, ok := b.proc.Receive(b.timeout)
	if !ok {
		if b.proc.Exited() {
			stderr := b.proc.Stderr()
			b.proc.Close()
			b.proc = nil
			return nil, fmt.Errorf("ffmpeg exited: %s", stderr)
		}
		return nil, nil
	}

	img := pool.get(b.width, b.height)
	if !fillYCbCr(img, chunk) {
		return nil, fmt.Errorf("short picture (%d bytes)", len(chunk))
	}
	return img, nil
}

func (b *ffmpegBackend) flush() ([]*image.YCbCr, error) {
	if b.proc == nil {
		return nil, nil
	}

	chunks, err := b.proc.Drain(5 * time.Second)
	b.proc.Close()
	b.proc = nil

	imgs := make([]*image.YCbCr, 0, len(chunks))
	for _, chunk := range chunks {
		img := newYCbCr(b.width, b.height)
		if fillYCbCr(img, chunk) {
			imgs = append(imgs, img)
		}
	}
	return imgs, err
}

func (b *ffmpegBackend) reset() error {
	if b.proc != nil {
		b.proc.Close()
		b.proc = nil
	}
	b.width, b.height = 0, 0
	b.paramSets = nil
	return nil
}

func (b *ffmpegBackend) close() {
	b.reset()
}
