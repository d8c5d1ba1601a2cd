// Package contactsheet lays out decoded frames as a grid of labelled
// thumbnails.
package contactsheet

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/user/h264plugin/pkg/ports"
)

// ErrEmpty is returned by Render when no frame was added.
var ErrEmpty = errors.New("contact sheet has no frames")

// Options controls the sheet layout.
type Options struct {
	Columns    int
	ThumbWidth int
	Padding    int
	FontSize   float64
	FontPath   string
	Background color.Color
	LabelColor color.Color
	// KeyframeColor outlines thumbnails of keyframes.
	KeyframeColor color.Color
}

// DefaultOptions returns a four-column layout of 160px thumbnails.
func DefaultOptions() Options {
	return Options{
		Columns:       4,
		ThumbWidth:    160,
		Padding:       8,
		FontSize:      12,
		Background:    color.RGBA{R: 32, G: 32, B: 32, A: 255},
		LabelColor:    color.White,
		KeyframeColor: color.RGBA{R: 230, G: 160, B: 0, A: 255},
	}
}

type thumb struct {
	img       image.Image
	timestamp float64
	keyframe  bool
}

// Sheet collects thumbnails. All thumbnails share the size of the first
// frame scaled to ThumbWidth.
type Sheet struct {
	r      ports.Renderer
	opts   Options
	thumbW int
	thumbH int
	thumbs []thumb
}

// New creates a Sheet. Zero option fields take their defaults.
func New(r ports.Renderer, opts Options) *Sheet {
	def := DefaultOptions()
	if opts.Columns <= 0 {
		opts.Columns = def.Columns
	}
	if opts.ThumbWidth <= 0 {
		opts.ThumbWidth = def.ThumbWidth
	}
	if opts.Padding < 0 {
		opts.Padding = 0
	}
	if opts.FontSize <= 0 {
		opts.FontSize = def.FontSize
	}
	if opts.Background == nil {
		opts.Background = def.Background
	}
	if opts.LabelColor == nil {
		opts.LabelColor = def.LabelColor
	}
	if opts.KeyframeColor == nil {
		opts.KeyframeColor = def.KeyframeColor
	}
	return &Sheet{r: r, opts: opts}
}

// Add scales frame into a thumbnail.
func (s *Sheet) Add(frame *ports.VideoFrame) error {
	if !frame.IsValid() {
		return fmt.Errorf("contact sheet: frame has no picture")
	}
	if s.thumbW == 0 {
		s.thumbW = s.opts.ThumbWidth
		s.thumbH = frame.Height * s.thumbW / frame.Width
		if s.thumbH < 1 {
			s.thumbH = 1
		}
	}
	s.thumbs = append(s.thumbs, thumb{
		img:       s.r.ResizeImage(frame.Image, s.thumbW, s.thumbH),
		timestamp: frame.Timestamp,
		keyframe:  frame.IsKeyframe,
	})
	return nil
}

// Len returns the number of thumbnails added.
func (s *Sheet) Len() int {
	return len(s.thumbs)
}

func (s *Sheet) labelHeight() int {
	return int(s.opts.FontSize*1.6 + 0.5)
}

// Size returns the rendered sheet dimensions.
func (s *Sheet) Size() (width, height int) {
	n := len(s.thumbs)
	if n == 0 {
		return 0, 0
	}
	cols := s.opts.Columns
	if n < cols {
		cols = n
	}
	rows := (n + cols - 1) / cols
	pad := s.opts.Padding
	width = pad + cols*(s.thumbW+pad)
	height = pad + rows*(s.thumbH+s.labelHeight()+pad)
	return width, height
}

// Render draws the sheet.
func (s *Sheet) Render() (image.Image, error) {
	if len(s.thumbs) == 0 {
		return nil, ErrEmpty
	}

	width, height := s.Size()
	canvas := s.r.CreateCanvas(width, height, s.opts.Background)
	pad := s.opts.Padding
	labelH := s.labelHeight()
	style := ports.TextStyle{
		FontSize: s.opts.FontSize,
		FontPath: s.opts.FontPath,
		Color:    s.opts.LabelColor,
		Align:    ports.AlignCenter,
	}

	for i, th := range s.thumbs {
		col := i % s.opts.Columns
		row := i / s.opts.Columns
		x := pad + col*(s.thumbW+pad)
		y := pad + row*(s.thumbH+labelH+pad)

		canvas.DrawImage(th.img, x, y)
		if th.keyframe {
			canvas.DrawRectStroke(x, y, s.thumbW, s.thumbH, s.opts.KeyframeColor, 2)
		}
		canvas.DrawText(Label(th.timestamp, th.keyframe), x+s.thumbW/2, y+s.thumbH+labelH/2, style)
	}
	return canvas.ToImage(), nil
}

// Encode renders the sheet and encodes it.
func (s *Sheet) Encode(format ports.ImageFormat) ([]byte, error) {
	img, err := s.Render()
	if err != nil {
		return nil, err
	}
	return s.r.EncodeImage(img, format, 90)
}

// Label formats a timestamp as mm:ss.mmm, marking keyframes.
func Label(seconds float64, keyframe bool) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	label := fmt.Sprintf("%02d:%02d.%03d", ms/60000, ms/1000%60, ms%1000)
	if keyframe {
		label += " K"
	}
	return label
}
