package contactsheet

import (
	"errors"
	"image"
	"testing"

	"github.com/user/h264plugin/pkg/mocks"
	"github.com/user/h264plugin/pkg/ports"
)

func frameAt(ts float64, key bool) *ports.VideoFrame {
	img := image.NewYCbCr(image.Rect(0, 0, 64, 48), image.YCbCrSubsampleRatio420)
	return &ports.VideoFrame{
		Image:      img,
		Width:      64,
		Height:     48,
		YStride:    img.YStride,
		UVStride:   img.CStride,
		Timestamp:  ts,
		IsKeyframe: key,
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		seconds float64
		key     bool
		want    string
	}{
		{0, false, "00:00.000"},
		{1.5, true, "00:01.500 K"},
		{61.0405, false, "01:01.041"},
		{-2, false, "00:00.000"},
		{599.9999, false, "10:00.000"},
	}
	for _, tt := range tests {
		if got := Label(tt.seconds, tt.key); got != tt.want {
			t.Errorf("Label(%v, %v) = %q, want %q", tt.seconds, tt.key, got, tt.want)
		}
	}
}

func TestSheet_Layout(t *testing.T) {
	r := &mocks.Renderer{}
	s := New(r, Options{Columns: 3, ThumbWidth: 32, Padding: 4, FontSize: 10})

	for i := 0; i < 5; i++ {
		if err := s.Add(frameAt(float64(i)*0.5, i%2 == 0)); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if s.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", s.Len())
	}

	// 32x24 thumbnails, 16px labels, 3 columns x 2 rows.
	w, h := s.Size()
	if w != 4+3*(32+4) || h != 4+2*(24+16+4) {
		t.Errorf("Size() = %dx%d, want %dx%d", w, h, 4+3*36, 4+2*44)
	}

	img, err := s.Render()
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
		t.Errorf("image is %dx%d, want %dx%d", b.Dx(), b.Dy(), w, h)
	}

	if len(r.Canvases) != 1 {
		t.Fatalf("expected one canvas, got %d", len(r.Canvases))
	}
	c := r.Canvases[0]
	wantPos := []image.Point{{4, 4}, {40, 4}, {76, 4}, {4, 48}, {40, 48}}
	if len(c.Images) != len(wantPos) {
		t.Fatalf("drew %d thumbnails, want %d", len(c.Images), len(wantPos))
	}
	for i, p := range wantPos {
		if c.Images[i] != p {
			t.Errorf("thumbnail %d at %v, want %v", i, c.Images[i], p)
		}
	}
	wantText := []string{"00:00.000 K", "00:00.500", "00:01.000 K", "00:01.500", "00:02.000 K"}
	for i, txt := range wantText {
		if c.Texts[i] != txt {
			t.Errorf("label %d = %q, want %q", i, c.Texts[i], txt)
		}
	}
}

func TestSheet_FewerFramesThanColumns(t *testing.T) {
	s := New(&mocks.Renderer{}, Options{Columns: 8, ThumbWidth: 64, Padding: 0, FontSize: 10})
	s.Add(frameAt(0, true))
	s.Add(frameAt(1, false))

	w, _ := s.Size()
	if w != 128 {
		t.Errorf("width = %d, want 128", w)
	}
}

func TestSheet_Empty(t *testing.T) {
	s := New(&mocks.Renderer{}, Options{})
	if _, err := s.Render(); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
	if _, err := s.Encode(ports.FormatPNG); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestSheet_AddInvalid(t *testing.T) {
	s := New(&mocks.Renderer{}, Options{})
	if err := s.Add(nil); err == nil {
		t.Error("expected error for nil frame")
	}
	if s.Len() != 0 {
		t.Error("invalid frame should not be added")
	}
}

func TestSheet_Encode(t *testing.T) {
	var gotFormat ports.ImageFormat = -1
	r := &mocks.Renderer{
		EncodeImageFunc: func(img image.Image, format ports.ImageFormat, quality int) ([]byte, error) {
			gotFormat = format
			return []byte("jpeg"), nil
		},
	}
	s := New(r, DefaultOptions())
	s.Add(frameAt(0, true))

	data, err := s.Encode(ports.FormatJPEG)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(data) != "jpeg" || gotFormat != ports.FormatJPEG {
		t.Errorf("Encode returned %q with format %v", data, gotFormat)
	}
}
