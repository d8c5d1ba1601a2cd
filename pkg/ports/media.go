package ports

import (
	"image"
	"image/draw"
)

// TrackType identifies the kind of media a track carries.
type TrackType int

const (
	TrackUnknown TrackType = iota
	TrackVideo
	TrackAudio
)

// String returns the track type name.
func (t TrackType) String() string {
	switch t {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// CodecType identifies the codec of a track.
type CodecType int

const (
	CodecUnknown CodecType = iota
	CodecH264
	CodecAAC
)

// String returns the codec name.
func (c CodecType) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecAAC:
		return "aac"
	default:
		return "unknown"
	}
}

// TrackInfo describes one track of an opened container.
type TrackInfo struct {
	Type      TrackType
	Codec     CodecType
	TrackID   int     // index into the demuxer's track list
	Duration  float64 // seconds
	Timescale uint32

	// Video only
	Width  int
	Height int

	// Audio only
	SampleRate int
	Channels   int
	// DecoderConfig holds the AudioSpecificConfig for AAC tracks, when present.
	DecoderConfig []byte

	SampleCount int
}

// Sample is one access unit read from a track.
type Sample struct {
	Data       []byte
	Timestamp  uint64 // decode time in track timescale units
	Duration   uint32
	IsKeyframe bool
}

// VideoFrame is a decoded picture in planar YUV 4:2:0.
type VideoFrame struct {
	Image      *image.YCbCr
	Width      int
	Height     int
	YStride    int
	UVStride   int
	Timestamp  float64 // seconds
	IsKeyframe bool
}

// IsValid reports whether the frame carries a picture.
func (f *VideoFrame) IsValid() bool {
	return f != nil && f.Image != nil && f.Width > 0 && f.Height > 0
}

// Clone returns a deep copy whose planes are not shared with the decoder.
func (f *VideoFrame) Clone() *VideoFrame {
	if f == nil {
		return nil
	}
	c := *f
	if f.Image != nil {
		img := *f.Image
		img.Y = append([]byte(nil), f.Image.Y...)
		img.Cb = append([]byte(nil), f.Image.Cb...)
		img.Cr = append([]byte(nil), f.Image.Cr...)
		c.Image = &img
	}
	return &c
}

// ToRGBA converts the frame to RGBA, e.g. for texture upload or PNG output.
func (f *VideoFrame) ToRGBA() *image.RGBA {
	if !f.IsValid() {
		return nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	draw.Draw(dst, dst.Bounds(), f.Image, f.Image.Bounds().Min, draw.Src)
	return dst
}

// AudioFrame is a block of decoded, interleaved 16-bit PCM.
type AudioFrame struct {
	Samples    []int16
	SampleRate int
	Channels   int
	Timestamp  float64 // seconds
}

// IsValid reports whether the frame carries samples.
func (f *AudioFrame) IsValid() bool {
	return f != nil && len(f.Samples) > 0 && f.SampleRate > 0 && f.Channels > 0
}

// DurationSeconds returns how long the frame plays.
func (f *AudioFrame) DurationSeconds() float64 {
	if !f.IsValid() {
		return 0
	}
	return float64(len(f.Samples)/f.Channels) / float64(f.SampleRate)
}
