// Package h264decoder provides H.264 video decoding behind ports.VideoDecoder.
// - native: the plugin_h264 shared library (see pkg/nativelib)
// - videotoolbox: VideoToolbox on macOS (cgo)
// - mediafoundation: the Media Foundation H.264 MFT on Windows (cgo)
// - ffmpeg: a long-lived ffmpeg process fed Annex B on stdin
// - auto: native when the library loads, then the platform decoder, then ffmpeg
package h264decoder

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/user/h264plugin/pkg/adapters/logger"
	"github.com/user/h264plugin/pkg/ports"
)

var (
	// ErrNotInitialized is returned when decoder methods are called before initialization.
	ErrNotInitialized = errors.New("h264decoder: decoder not initialized")

	// ErrDecodeFailed is returned when decoding a frame fails.
	ErrDecodeFailed = errors.New("h264decoder: decode failed")

	// ErrEmptyInput is returned for a zero-length buffer.
	ErrEmptyInput = errors.New("h264decoder: empty input")

	// ErrUnknownBackend is returned for an unrecognised backend name.
	ErrUnknownBackend = errors.New("h264decoder: unknown backend")

	// ErrPlatformNotSupported is returned when a platform decoder is
	// requested on an OS that does not provide it.
	ErrPlatformNotSupported = errors.New("h264decoder: platform decoder not supported")

	// errSkipFrame marks a recoverable condition: the input is dropped and
	// decoding continues with the next access unit. Decode reports it as
	// ports.ErrFrameDropped.
	errSkipFrame = errors.New("h264decoder: frame skipped")
)

// Backend names a decoding implementation.
type Backend string

const (
	BackendAuto            Backend = "auto"
	BackendNative          Backend = "native"
	BackendVideoToolbox    Backend = "videotoolbox"
	BackendMediaFoundation Backend = "mediafoundation"
	BackendFFmpeg          Backend = "ffmpeg"
)

// ParseBackend parses a backend name. Empty means auto.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendNative, BackendVideoToolbox, BackendMediaFoundation, BackendFFmpeg:
		return Backend(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}

// DefaultFrameTimeout is how long Decode waits for ffmpeg to emit a picture.
const DefaultFrameTimeout = 50 * time.Millisecond

// Options configures the decoder.
type Options struct {
	Backend Backend

	// FFmpegPath overrides ffmpeg discovery for the ffmpeg backend.
	FFmpegPath string

	// LibraryPath is tried first when loading plugin_h264.
	LibraryPath string

	// FrameTimeout bounds the wait for a picture after each access unit.
	FrameTimeout time.Duration

	Logger ports.Logger
}

// backend is implemented by each decoding implementation.
type backend interface {
	name() Backend
	init() error
	// configure is called whenever the cached parameter sets change.
	configure(width, height int, paramSets []byte) error
	send(data []byte) error
	receive(pool *framePool) (*image.YCbCr, error)
	flush() ([]*image.YCbCr, error)
	reset() error
	close()
}

// Decoder decodes H.264 access units in Annex B format.
type Decoder struct {
	opts Options
	log  ports.Logger

	mu      sync.Mutex
	backend backend
	pool    framePool

	sps    [][]byte
	pps    [][]byte
	width  int
	height int
}

var _ ports.VideoDecoder = (*Decoder)(nil)

// New creates a new H.264 decoder.
func New(opts Options) *Decoder {
	if opts.Backend == "" {
		opts.Backend = BackendAuto
	}
	if opts.FrameTimeout <= 0 {
		opts.FrameTimeout = DefaultFrameTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNoop()
	}
	return &Decoder{
		opts: opts,
		log:  log.WithComponent("h264"),
	}
}

// Init selects and initializes the backend. Calling Init on an
// initialized decoder is a no-op.
func (d *Decoder) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.backend != nil {
		return nil
	}

	b, err := d.selectBackend()
	if err != nil {
		return err
	}
	d.backend = b
	d.log.Debug("Decoder backend: %s", b.name())
	return nil
}

func (d *Decoder) selectBackend() (backend, error) {
	switch d.opts.Backend {
	case BackendNative:
		b := newNativeBackend(d.opts.LibraryPath)
		if err := b.init(); err != nil {
			return nil, err
		}
		return b, nil

	case BackendVideoToolbox, BackendMediaFoundation:
		if d.opts.Backend != platformBackend {
			return nil, fmt.Errorf("%w: %s", ErrPlatformNotSupported, d.opts.Backend)
		}
		b := newPlatformBackend()
		if err := b.init(); err != nil {
			return nil, err
		}
		return b, nil

	case BackendFFmpeg:
		b := newFFmpegBackend(d.opts.FFmpegPath, d.opts.FrameTimeout)
		if err := b.init(); err != nil {
			return nil, err
		}
		return b, nil

	case BackendAuto:
		nb := newNativeBackend(d.opts.LibraryPath)
		nativeErr := nb.init()
		if nativeErr == nil {
			return nb, nil
		}
		d.log.Debug("Native decoder unavailable: %v", nativeErr)

		if platformBackend != "" {
			pb := newPlatformBackend()
			err := pb.init()
			if err == nil {
				return pb, nil
			}
			d.log.Debug("Platform decoder unavailable: %v", err)
		}

		fb := newFFmpegBackend(d.opts.FFmpegPath, d.opts.FrameTimeout)
		if err := fb.init(); err != nil {
			return nil, fmt.Errorf("no H.264 backend available: native: %v; ffmpeg: %w", nativeErr, err)
		}
		return fb, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, d.opts.Backend)
	}
}

// Backend returns the backend in use, or the requested one before Init.
func (d *Decoder) Backend() Backend {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.backend != nil {
		return d.backend.name()
	}
	return d.opts.Backend
}

// Decode feeds one Annex B access unit. Buffers holding only parameter
// sets are cached and yield no frame. The returned frame's buffer is reused
// after a few further calls; use VideoFrame.Clone to keep it.
func (d *Decoder) Decode(data []byte) (*ports.VideoFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.backend == nil {
		return nil, ErrNotInitialized
	}
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	units := ClassifyNALUs(data)
	if len(units.SPS) > 0 || len(units.PPS) > 0 {
		if err := d.updateParameterSets(units); err != nil {
			d.log.Warn("Invalid parameter sets: %v", err)
		}
	}

	if err := d.backend.send(data); err != nil {
		return nil, d.handleError(err)
	}

	if !units.HasSlice {
		return nil, nil
	}

	img, err := d.backend.receive(&d.pool)
	if err != nil {
		return nil, d.handleError(err)
	}
	if img == nil {
		return nil, nil
	}
	return d.frame(img), nil
}

// handleError reports recoverable failures as dropped frames and resets the
// backend on fatal ones.
func (d *Decoder) handleError(err error) error {
	if errors.Is(err, errSkipFrame) {
		d.log.Debug("Frame skipped: %v", err)
		return fmt.Errorf("%w: %v", ports.ErrFrameDropped, err)
	}

	d.log.Warn("Decode error, flushing decoder: %v", err)
	if resetErr := d.backend.reset(); resetErr != nil {
		d.log.Error("Decoder reset failed: %v", resetErr)
	} else if d.width > 0 {
		if cfgErr := d.backend.configure(d.width, d.height, ParameterSetsAnnexB(d.sps, d.pps)); cfgErr != nil {
			d.log.Error("Decoder reconfigure failed: %v", cfgErr)
		}
	}
	return fmt.Errorf("%w: %v", ErrDecodeFailed, err)
}

func (d *Decoder) updateParameterSets(units NALUSummary) error {
	if len(units.SPS) > 0 {
		d.sps = cloneNALUs(units.SPS)
	}
	if len(units.PPS) > 0 {
		d.pps = cloneNALUs(units.PPS)
	}

	if len(units.SPS) > 0 {
		w, h, err := spsDimensions(units.SPS[0])
		if err != nil {
			return err
		}
		if w != d.width || h != d.height {
			d.log.Debug("Picture size %dx%d", w, h)
		}
		d.width, d.height = w, h
	}

	if d.width == 0 {
		return nil
	}
	return d.backend.configure(d.width, d.height, ParameterSetsAnnexB(d.sps, d.pps))
}

func cloneNALUs(nalus [][]byte) [][]byte {
	out := make([][]byte, len(nalus))
	for i, n := range nalus {
		out[i] = append([]byte(nil), n...)
	}
	return out
}

func (d *Decoder) frame(img *image.YCbCr) *ports.VideoFrame {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	d.width, d.height = w, h
	return &ports.VideoFrame{
		Image:    img,
		Width:    w,
		Height:   h,
		YStride:  img.YStride,
		UVStride: img.CStride,
	}
}

// Flush returns pictures still held by the backend.
func (d *Decoder) Flush() ([]*ports.VideoFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.backend == nil {
		return nil, ErrNotInitialized
	}

	imgs, err := d.backend.flush()
	frames := make([]*ports.VideoFrame, 0, len(imgs))
	for _, img := range imgs {
		frames = append(frames, d.frame(img))
	}
	if err != nil {
		return frames, fmt.Errorf("flush: %w", err)
	}
	return frames, nil
}

// Dimensions returns the last known picture size.
func (d *Decoder) Dimensions() (width, height int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height, d.width > 0 && d.height > 0
}

// Reset drops reference pictures and cached parameter sets.
func (d *Decoder) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.backend == nil {
		return ErrNotInitialized
	}
	d.sps, d.pps = nil, nil
	d.width, d.height = 0, 0
	d.pool.clear()
	return d.backend.reset()
}

// Close releases decoder resources.
func (d *Decoder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.backend != nil {
		d.backend.close()
		d.backend = nil
	}
	d.pool.clear()
}
