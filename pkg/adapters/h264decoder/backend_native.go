package h264decoder

import (
	"fmt"
	"image"

	"github.com/user/h264plugin/pkg/h264err"
	"github.com/user/h264plugin/pkg/nativelib"
)

// nativeBackend decodes through the plugin_h264 shared library.
type nativeBackend struct {
	libraryPath string
	pending     bool
	width       int
	height      int
	initialized bool
}

func newNativeBackend(libraryPath string) *nativeBackend {
	return &nativeBackend{libraryPath: libraryPath}
}

func (b *nativeBackend) name() Backend { return BackendNative }

func (b *nativeBackend) init() error {
	if err := nativelib.Load(nativelib.Options{Path: b.libraryPath}); err != nil {
		return err
	}
	if err := nativelib.InitDecoder(); err != nil {
		return fmt.Errorf("init native decoder: %w", err)
	}
	b.initialized = true
	return nil
}

func (b *nativeBackend) configure(width, height int, paramSets []byte) error {
	b.width, b.height = width, height
	return nil
}

func (b *nativeBackend) send(data []byte) error {
	got, err := nativelib.DecodeFrame(data)
	if err != nil {
		// The library rejects slices it cannot place, e.g. before any SPS/PPS.
		if h264err.Is(err, h264err.InvalidParam) {
			return fmt.Errorf("%w: %v", errSkipFrame, err)
		}
		return err
	}
	b.pending = got
	return nil
}

func (b *nativeBackend) receive(pool *framePool) (*image.YCbCr, error) {
	if !b.pending {
		return nil, nil
	}
	b.pending = false

	w, h := b.width, b.height
	if w <= 0 || h <= 0 {
		w, h = 16, 16
	}
	dst := pool.get(w, h)
	img, ok, err := nativelib.Frame(dst)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if img != dst {
		pool.replaceLast(img)
	}
	return img, nil
}

// flush has nothing to return: the library emits pictures synchronously.
func (b *nativeBackend) flush() ([]*image.YCbCr, error) {
	return nil, nil
}

func (b *nativeBackend) reset() error {
	b.pending = false
	if b.initialized {
		nativelib.CleanupDecoder()
	}
	if err := nativelib.InitDecoder(); err != nil {
		b.initialized = false
		return err
	}
	b.initialized = true
	return nil
}

func (b *nativeBackend) close() {
	if b.initialized {
		nativelib.CleanupDecoder()
		b.initialized = false
	}
}
