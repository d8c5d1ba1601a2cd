//go:build !(darwin && cgo) && !(windows && cgo)

package h264decoder

// platformBackend is empty where no OS decoder is built in.
const platformBackend Backend = ""

func newPlatformBackend() backend {
	return nil
}
