//go:build !darwin && !linux

package nativelib

import "image"

func candidatePaths(opts Options) []string {
	return nil
}

func loadLibrary(paths []string) (string, error) {
	return "", ErrPlatformNotSupported
}

func unloadLibrary() {}

func callInit() int32 { return 0 }

func callCleanup() {}

func callDecode(data []byte) int32 { return 0 }

func callFrame(dst *image.YCbCr) (*image.YCbCr, bool, error) {
	return dst, false, ErrPlatformNotSupported
}
