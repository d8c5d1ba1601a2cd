// Package nativelib loads the plugin_h264 shared library and exposes its
// decoder entry points. The library is loaded at most once per process by
// an explicit call to Load.
package nativelib

import (
	"errors"
	"image"
	"sync"

	"github.com/user/h264plugin/pkg/h264err"
)

// EnvLibPath overrides the library search when set.
const EnvLibPath = "PLUGIN_H264_LIB_PATH"

// LibName is the base name of the shared library.
const LibName = "plugin_h264"

var (
	// ErrPlatformNotSupported is returned where shared libraries cannot be loaded.
	ErrPlatformNotSupported = errors.New("nativelib: platform not supported")

	// ErrLibraryNotFound is returned when no candidate path could be opened.
	ErrLibraryNotFound = errors.New("nativelib: library not found")
)

// Options controls the library search.
type Options struct {
	// Path is tried before any other location when non-empty.
	Path string
}

var (
	loadOnce sync.Once
	loadErr  error
	loaded   bool
	libPath  string

	// callMu serialises calls into the library; the C side keeps one
	// global decoder context.
	callMu sync.Mutex
)

// Load opens the library and binds its symbols. Only the first call does
// any work; later calls return the first result.
func Load(opts Options) error {
	loadOnce.Do(func() {
		callMu.Lock()
		defer callMu.Unlock()

		path, err := loadLibrary(candidatePaths(opts))
		if err != nil {
			loadErr = h264err.Wrap(h264err.LibraryNotLoaded, "load", err)
			return
		}
		libPath = path
		loaded = true
	})
	return loadErr
}

// Loaded reports whether Load succeeded.
func Loaded() bool {
	callMu.Lock()
	defer callMu.Unlock()
	return loaded
}

// Path returns the path the library was loaded from.
func Path() string {
	callMu.Lock()
	defer callMu.Unlock()
	return libPath
}

func errNotLoaded(op string) error {
	return h264err.New(h264err.LibraryNotLoaded, op, "plugin_h264 has not been loaded")
}

// resultError converts a negative library status into an error.
func resultError(op string, status int32) error {
	code := h264err.Code(-status)
	if code <= h264err.None || code > h264err.LibraryNotLoaded {
		code = h264err.DecodeFailed
	}
	return h264err.Newf(code, op, "plugin_h264 returned %d", status)
}

// InitDecoder creates the library's decoder context.
func InitDecoder() error {
	callMu.Lock()
	defer callMu.Unlock()
	if !loaded {
		return errNotLoaded("init")
	}
	if status := callInit(); status < 0 {
		return resultError("init", status)
	}
	return nil
}

// CleanupDecoder releases the library's decoder context.
func CleanupDecoder() error {
	callMu.Lock()
	defer callMu.Unlock()
	if !loaded {
		return errNotLoaded("cleanup")
	}
	callCleanup()
	return nil
}

// DecodeFrame feeds an Annex B buffer to the library. It reports whether a
// picture became available through Frame.
func DecodeFrame(data []byte) (bool, error) {
	callMu.Lock()
	defer callMu.Unlock()
	if !loaded {
		return false, errNotLoaded("decode")
	}
	if len(data) == 0 {
		return false, h264err.New(h264err.InvalidParam, "decode", "empty input")
	}
	status := callDecode(data)
	if status < 0 {
		return false, resultError("decode", status)
	}
	return status > 0, nil
}

// Frame copies the library's current picture into dst, reallocating it when
// the size changed. ok is false when no picture is available.
func Frame(dst *image.YCbCr) (out *image.YCbCr, ok bool, err error) {
	callMu.Lock()
	defer callMu.Unlock()
	if !loaded {
		return dst, false, errNotLoaded("frame")
	}
	return callFrame(dst)
}

// compactYCbCr returns dst when it already matches w x h, else a new image.
func compactYCbCr(dst *image.YCbCr, w, h int) *image.YCbCr {
	if dst != nil && dst.Rect.Dx() == w && dst.Rect.Dy() == h &&
		dst.SubsampleRatio == image.YCbCrSubsampleRatio420 {
		return dst
	}
	return image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
}

// reset forgets a previous Load. Tests only.
func reset() {
	callMu.Lock()
	defer callMu.Unlock()
	unloadLibrary()
	loadOnce = sync.Once{}
	loadErr = nil
	loaded = false
	libPath = ""
}
