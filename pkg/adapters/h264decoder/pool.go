package h264decoder

import "image"

// poolSize is the number of output buffers rotated between Decode calls.
// A returned frame stays valid until poolSize further frames are produced.
const poolSize = 3

// framePool rotates compact (stride == width) YUV 4:2:0 buffers.
type framePool struct {
	bufs [poolSize]*image.YCbCr
	next int
}

// get returns the next buffer, reallocating it when the size changed.
func (p *framePool) get(w, h int) *image.YCbCr {
	i := p.next
	p.next = (p.next + 1) % poolSize

	b := p.bufs[i]
	if b == nil || b.Rect.Dx() != w || b.Rect.Dy() != h {
		b = newYCbCr(w, h)
		p.bufs[i] = b
	}
	return b
}

// replaceLast swaps the buffer handed out by the last get.
func (p *framePool) replaceLast(img *image.YCbCr) {
	p.bufs[(p.next+poolSize-1)%poolSize] = img
}

func (p *framePool) clear() {
	p.bufs = [poolSize]*image.YCbCr{}
	p.next = 0
}

func newYCbCr(w, h int) *image.YCbCr {
	return image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
}

// yuv420Size is the byte size of a packed yuv420p picture.
func yuv420Size(w, h int) int {
	cw, ch := (w+1)/2, (h+1)/2
	return w*h + 2*cw*ch
}

// fillYCbCr copies a packed yuv420p picture into img.
func fillYCbCr(img *image.YCbCr, raw []byte) bool {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if len(raw) < yuv420Size(w, h) {
		return false
	}
	cw, ch := (w+1)/2, (h+1)/2

	ySize := w * h
	cSize := cw * ch
	for row := 0; row < h; row++ {
		copy(img.Y[row*img.YStride:row*img.YStride+w], raw[row*w:(row+1)*w])
	}
	for row := 0; row < ch; row++ {
		copy(img.Cb[row*img.CStride:row*img.CStride+cw], raw[ySize+row*cw:ySize+(row+1)*cw])
		copy(img.Cr[row*img.CStride:row*img.CStride+cw], raw[ySize+cSize+row*cw:ySize+cSize+(row+1)*cw])
	}
	return true
}

// fillYCbCrNV12 copies an NV12 picture, a Y plane followed by interleaved
// Cb/Cr samples, into img.
func fillYCbCrNV12(img *image.YCbCr, y []byte, yStride int, uv []byte, uvStride int) bool {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w <= 0 || h <= 0 {
		return false
	}
	cw, ch := (w+1)/2, (h+1)/2
	if yStride < w || uvStride < 2*cw ||
		len(y) < (h-1)*yStride+w || len(uv) < (ch-1)*uvStride+2*cw {
		return false
	}

	for row := 0; row < h; row++ {
		copy(img.Y[row*img.YStride:row*img.YStride+w], y[row*yStride:row*yStride+w])
	}
	for row := 0; row < ch; row++ {
		src := uv[row*uvStride:]
		cb := img.Cb[row*img.CStride:]
		cr := img.Cr[row*img.CStride:]
		for x := 0; x < cw; x++ {
			cb[x] = src[2*x]
			cr[x] = src[2*x+1]
		}
	}
	return true
}
