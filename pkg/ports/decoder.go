package ports

import (
	"errors"
	"io"
)

// ErrFrameDropped is returned by VideoDecoder.Decode when the access unit
// just fed was discarded without producing a picture. The codec state is
// intact and decoding continues with the next access unit.
var ErrFrameDropped = errors.New("frame dropped")

// VideoDecoder abstracts an H.264 decoding context.
type VideoDecoder interface {
	// Init allocates codec state. Calling Init on an initialised decoder is a no-op.
	Init() error

	// Decode feeds one Annex B access unit (or parameter sets) to the codec.
	// A nil frame with a nil error means the codec needs more input. An
	// error wrapping ErrFrameDropped means the input was discarded.
	Decode(data []byte) (*VideoFrame, error)

	// Flush returns pictures the codec is still holding, in output order.
	Flush() ([]*VideoFrame, error)

	// Dimensions returns the last known picture size.
	Dimensions() (width, height int, ok bool)

	// Reset drops reference pictures and cached parameter sets.
	Reset() error

	// Close releases codec resources.
	Close()
}

// AudioDecoder abstracts an AAC decoding context.
type AudioDecoder interface {
	// Init allocates codec state.
	Init() error

	// Configure sets the AudioSpecificConfig used for subsequent access units.
	Configure(asc []byte) error

	// Decode decodes one raw access unit. A nil frame with a nil error
	// means no PCM is available yet.
	Decode(au []byte) (*AudioFrame, error)

	// Info returns the configured output format.
	Info() (sampleRate, channels, bitsPerSample int, ok bool)

	// Reset drops buffered state; Configure must be called again.
	Reset() error

	// Close releases codec resources.
	Close()
}

// Demuxer abstracts reading tracks and samples from a container.
type Demuxer interface {
	// Open parses the container. Any previously opened input is closed.
	Open(r io.ReadSeeker) error

	// Close releases the input.
	Close()

	// Tracks returns information about all tracks.
	Tracks() []TrackInfo

	// Duration returns the longest track duration in seconds.
	Duration() float64

	// CurrentTime returns the timestamp of the last sample read, in seconds.
	CurrentTime() float64

	// ReadNextSample returns the next sample of a track, or io.EOF.
	ReadNextSample(trackID int) (Sample, error)

	// SeekToTime repositions every track cursor.
	SeekToTime(seconds float64) error

	// ParameterSets returns the SPS and PPS NAL units of an H.264 track.
	ParameterSets(trackID int) (sps, pps [][]byte, err error)
}
