//go:build darwin || linux

package nativelib

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
)

var libHandle uintptr

// plugin_h264 function pointers
var (
	pluginInitDecoder    func() int32
	pluginCleanupDecoder func()
	pluginDecodeFrame    func(data uintptr, length int32) int32
	pluginGetFrame       func(y, u, v, yStride, uvStride, width, height uintptr) int32
)

func sharedLibName() string {
	if runtime.GOOS == "darwin" {
		return "lib" + LibName + ".dylib"
	}
	return "lib" + LibName + ".so"
}

func candidatePaths(opts Options) []string {
	var paths []string
	libName := sharedLibName()

	if opts.Path != "" {
		paths = append(paths, opts.Path)
	}
	if envPath := os.Getenv(EnvLibPath); envPath != "" {
		paths = append(paths, envPath)
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, libName),
			filepath.Join(exeDir, "..", "lib", libName),
		)
	}

	if wd, err := os.Getwd(); err == nil {
		paths = append(paths,
			filepath.Join(wd, libName),
			filepath.Join(wd, "lib", libName),
		)
	}

	switch runtime.GOOS {
	case "darwin":
		paths = append(paths,
			libName,
			"/usr/local/lib/"+libName,
			"/opt/homebrew/lib/"+libName,
		)
	case "linux":
		paths = append(paths,
			libName,
			"/usr/local/lib/"+libName,
			"/usr/lib/"+libName,
		)
	}

	return paths
}

func loadLibrary(paths []string) (string, error) {
	var lastErr error
	for _, path := range paths {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		if err := checkSymbols(handle); err != nil {
			purego.Dlclose(handle)
			lastErr = err
			continue
		}
		libHandle = handle
		registerSymbols(handle)
		return path, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrLibraryNotFound, lastErr)
	}
	return "", ErrLibraryNotFound
}

// checkSymbols verifies every entry point exists. RegisterLibFunc panics on
// a missing symbol, so look them up first.
func checkSymbols(handle uintptr) error {
	for _, name := range []string{
		"plugin_h264_init_decoder",
		"plugin_h264_cleanup_decoder",
		"plugin_h264_decode_frame",
		"plugin_h264_get_frame",
	} {
		if _, err := purego.Dlsym(handle, name); err != nil {
			return fmt.Errorf("missing symbol %s: %w", name, err)
		}
	}
	return nil
}

func registerSymbols(handle uintptr) {
	purego.RegisterLibFunc(&pluginInitDecoder, handle, "plugin_h264_init_decoder")
	purego.RegisterLibFunc(&pluginCleanupDecoder, handle, "plugin_h264_cleanup_decoder")
	purego.RegisterLibFunc(&pluginDecodeFrame, handle, "plugin_h264_decode_frame")
	purego.RegisterLibFunc(&pluginGetFrame, handle, "plugin_h264_get_frame")
}

func unloadLibrary() {
	if libHandle != 0 {
		purego.Dlclose(libHandle)
		libHandle = 0
	}
}

func callInit() int32 {
	return pluginInitDecoder()
}

func callCleanup() {
	pluginCleanupDecoder()
}

func callDecode(data []byte) int32 {
	status := pluginDecodeFrame(uintptr(unsafe.Pointer(&data[0])), int32(len(data)))
	runtime.KeepAlive(data)
	return status
}

func callFrame(dst *image.YCbCr) (*image.YCbCr, bool, error) {
	var outY, outU, outV uintptr
	var yStride, uvStride, width, height int32

	status := pluginGetFrame(
		uintptr(unsafe.Pointer(&outY)),
		uintptr(unsafe.Pointer(&outU)),
		uintptr(unsafe.Pointer(&outV)),
		uintptr(unsafe.Pointer(&yStride)),
		uintptr(unsafe.Pointer(&uvStride)),
		uintptr(unsafe.Pointer(&width)),
		uintptr(unsafe.Pointer(&height)),
	)
	if status < 0 {
		return dst, false, resultError("frame", status)
	}
	if status == 0 || outY == 0 || width <= 0 || height <= 0 {
		return dst, false, nil
	}

	w, h := int(width), int(height)
	img := compactYCbCr(dst, w, h)

	for row := 0; row < h; row++ {
		src := unsafe.Slice((*byte)(unsafe.Pointer(outY+uintptr(row*int(yStride)))), w)
		copy(img.Y[row*img.YStride:row*img.YStride+w], src)
	}

	uvW := (w + 1) / 2
	uvH := (h + 1) / 2
	for row := 0; row < uvH; row++ {
		srcU := unsafe.Slice((*byte)(unsafe.Pointer(outU+uintptr(row*int(uvStride)))), uvW)
		srcV := unsafe.Slice((*byte)(unsafe.Pointer(outV+uintptr(row*int(uvStride)))), uvW)
		copy(img.Cb[row*img.CStride:row*img.CStride+uvW], srcU)
		copy(img.Cr[row*img.CStride:row*img.CStride+uvW], srcV)
	}

	return img, true, nil
}
