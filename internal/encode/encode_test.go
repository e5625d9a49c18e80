package encode

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

// gradient fills an image with position-dependent colors so resampling has
// real data to work on
func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), 0x40, 0xFF})
		}
	}
	return img
}

func decodeDims(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not valid JPEG: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestEncodeResizes(t *testing.T) {
	enc := New(40, 30, 80)
	data, err := enc.Encode(gradient(100, 80))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if w, h := decodeDims(t, data); w != 40 || h != 30 {
		t.Errorf("encoded frame is %dx%d, want 40x30", w, h)
	}
}

func TestEncodeSkipsResizeWhenDimensionsMatch(t *testing.T) {
	enc := New(40, 30, 80)
	data, err := enc.Encode(gradient(40, 30))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if w, h := decodeDims(t, data); w != 40 || h != 30 {
		t.Errorf("encoded frame is %dx%d, want 40x30", w, h)
	}
}

func TestEncodeZeroTargetDisablesResize(t *testing.T) {
	enc := New(0, 0, 80)
	data, err := enc.Encode(gradient(10, 10))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if w, h := decodeDims(t, data); w != 10 || h != 10 {
		t.Errorf("encoded frame is %dx%d, want untouched 10x10", w, h)
	}
}

func TestEncodeRejectsBadFrames(t *testing.T) {
	enc := New(40, 30, 80)

	if _, err := enc.Encode(nil); err == nil {
		t.Error("Encode(nil) did not fail")
	}
	if _, err := enc.Encode(image.NewRGBA(image.Rect(0, 0, 0, 0))); err == nil {
		t.Error("Encode(empty image) did not fail")
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	enc := New(16, 16, 70)
	img := gradient(16, 16)

	a, err := enc.Encode(img)
	if err != nil {
		t.Fatal(err)
	}
	b, err := enc.Encode(img)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("identical input produced different JPEG bytes")
	}
}
