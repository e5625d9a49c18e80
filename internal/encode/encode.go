// Package encode turns captured frames into JPEG bytes at the configured
// target resolution and quality.
package encode

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Encoder resizes and JPEG-encodes frames. Safe for use by a single
// goroutine; the acquisition loop owns one instance.
type Encoder struct {
	width   int
	height  int
	quality int
}

// New creates an encoder for the given target dimensions and JPEG quality
// (0-100). A zero width or height disables resizing.
func New(width, height, quality int) *Encoder {
	return &Encoder{width: width, height: height, quality: quality}
}

// Encode resizes img to the target dimensions if they differ and encodes
// the result as JPEG. Resampling uses bilinear filtering; the exact filter
// is not contractual, only that downscaling stays cheap.
func (e *Encoder) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("encode: nil frame")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("encode: empty frame (%dx%d)", b.Dx(), b.Dy())
	}

	if e.width > 0 && e.height > 0 && (b.Dx() != e.width || b.Dy() != e.height) {
		dst := image.NewRGBA(image.Rect(0, 0, e.width, e.height))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("encode: jpeg encode failed: %w", err)
	}
	return buf.Bytes(), nil
}
