package filesink

import (
	"encoding/binary"
	"errors"
	"image"
	"path/filepath"
	"testing"

	"github.com/user/h264plugin/pkg/mocks"
	"github.com/user/h264plugin/pkg/ports"
)

// testBaseDir is a platform-independent base directory for tests
var testBaseDir = filepath.Join("out")

func testFrame(w, h int) *ports.VideoFrame {
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	return &ports.VideoFrame{
		Image:    img,
		Width:    w,
		Height:   h,
		YStride:  img.YStride,
		UVStride: img.CStride,
	}
}

func TestSink_Enabled(t *testing.T) {
	sink := New(testBaseDir, mocks.NewFileSystem(), &mocks.Renderer{})

	if !sink.Enabled() {
		t.Error("expected Enabled to return true")
	}
}

func TestSink_SaveVideoFrame(t *testing.T) {
	fs := mocks.NewFileSystem()
	var encoded image.Image
	renderer := &mocks.Renderer{
		EncodeImageFunc: func(img image.Image, format ports.ImageFormat, quality int) ([]byte, error) {
			if format != ports.FormatPNG {
				t.Errorf("expected PNG, got %v", format)
			}
			encoded = img
			return []byte("png"), nil
		},
	}
	sink := New(testBaseDir, fs, renderer)

	if err := sink.SaveVideoFrame(7, testFrame(32, 16)); err != nil {
		t.Fatalf("SaveVideoFrame failed: %v", err)
	}

	path := filepath.Join(testBaseDir, "frames", "frame-0007.png")
	saved, ok := fs.GetFile(path)
	if !ok {
		t.Fatalf("expected file to be saved at %s", path)
	}
	if string(saved) != "png" {
		t.Errorf("expected %q, got %q", "png", saved)
	}
	if encoded == nil || encoded.Bounds().Dx() != 32 || encoded.Bounds().Dy() != 16 {
		t.Errorf("expected a 32x16 image to be encoded, got %v", encoded)
	}
}

func TestSink_SaveVideoFrame_Invalid(t *testing.T) {
	sink := New(testBaseDir, mocks.NewFileSystem(), &mocks.Renderer{})

	if err := sink.SaveVideoFrame(0, nil); err == nil {
		t.Error("expected error for nil frame")
	}
	if err := sink.SaveVideoFrame(0, &ports.VideoFrame{}); err == nil {
		t.Error("expected error for empty frame")
	}
}

func TestSink_SaveVideoFrame_EncodeError(t *testing.T) {
	renderer := &mocks.Renderer{
		EncodeImageFunc: func(image.Image, ports.ImageFormat, int) ([]byte, error) {
			return nil, errors.New("boom")
		},
	}
	sink := New(testBaseDir, mocks.NewFileSystem(), renderer)

	if err := sink.SaveVideoFrame(0, testFrame(8, 8)); err == nil {
		t.Error("expected error from encoder")
	}
}

func TestSink_AudioWrittenOnClose(t *testing.T) {
	fs := mocks.NewFileSystem()
	sink := New(testBaseDir, fs, &mocks.Renderer{})

	frames := []*ports.AudioFrame{
		{Samples: []int16{1, -1, 2, -2}, SampleRate: 48000, Channels: 2},
		{Samples: []int16{3, -3}, SampleRate: 48000, Channels: 2},
	}
	for i, f := range frames {
		if err := sink.SaveAudioFrame(i, f); err != nil {
			t.Fatalf("SaveAudioFrame(%d) failed: %v", i, err)
		}
	}

	path := filepath.Join(testBaseDir, "audio.wav")
	if _, ok := fs.GetFile(path); ok {
		t.Fatal("audio.wav should not exist before Close")
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	wav, ok := fs.GetFile(path)
	if !ok {
		t.Fatalf("expected file to be saved at %s", path)
	}
	if len(wav) != 44+12 {
		t.Fatalf("wav is %d bytes, want %d", len(wav), 44+12)
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Errorf("bad header: %q", wav[:44])
	}
	if ch := binary.LittleEndian.Uint16(wav[22:]); ch != 2 {
		t.Errorf("channels = %d, want 2", ch)
	}
	if rate := binary.LittleEndian.Uint32(wav[24:]); rate != 48000 {
		t.Errorf("sample rate = %d, want 48000", rate)
	}
	if size := binary.LittleEndian.Uint32(wav[40:]); size != 12 {
		t.Errorf("data size = %d, want 12", size)
	}
	if s := int16(binary.LittleEndian.Uint16(wav[44+2:])); s != -1 {
		t.Errorf("second sample = %d, want -1", s)
	}

	// Close is idempotent.
	if err := sink.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestSink_AudioFormatChange(t *testing.T) {
	sink := New(testBaseDir, mocks.NewFileSystem(), &mocks.Renderer{})

	sink.SaveAudioFrame(0, &ports.AudioFrame{Samples: []int16{0, 0}, SampleRate: 44100, Channels: 2})
	err := sink.SaveAudioFrame(1, &ports.AudioFrame{Samples: []int16{0}, SampleRate: 22050, Channels: 1})
	if err == nil {
		t.Error("expected error for a format change")
	}
}

func TestSink_CloseWithoutAudio(t *testing.T) {
	fs := mocks.NewFileSystem()
	sink := New(testBaseDir, fs, &mocks.Renderer{})

	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(fs.GetAllFiles()) != 0 {
		t.Errorf("expected no files, got %d", len(fs.GetAllFiles()))
	}
}

func TestSink_SaveSummary(t *testing.T) {
	fs := mocks.NewFileSystem()
	sink := New(testBaseDir, fs, &mocks.Renderer{})

	data := []byte(`{"video_frames": 20}`)
	if err := sink.SaveSummary(data); err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}

	saved, ok := fs.GetFile(filepath.Join(testBaseDir, "summary.json"))
	if !ok || string(saved) != string(data) {
		t.Errorf("expected %q, got %q", data, saved)
	}
}
