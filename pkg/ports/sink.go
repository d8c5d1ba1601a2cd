package ports

// FrameSink receives decoded output for inspection.
type FrameSink interface {
	// Enabled returns true if the sink stores anything.
	Enabled() bool

	// SaveVideoFrame stores a decoded picture.
	SaveVideoFrame(index int, frame *VideoFrame) error

	// SaveAudioFrame appends decoded PCM.
	SaveAudioFrame(index int, frame *AudioFrame) error

	// SaveSummary stores a JSON summary of the run.
	SaveSummary(data []byte) error

	// Close flushes buffered output.
	Close() error
}

// AudioOutput plays decoded PCM.
type AudioOutput interface {
	// Open prepares the device for 16-bit interleaved PCM in the given format.
	Open(sampleRate, channels int) error

	// Write queues a frame for playback. It may block while the device
	// buffer is full.
	Write(frame *AudioFrame) error

	// Close stops playback and releases the device.
	Close() error
}
