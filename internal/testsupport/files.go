package testsupport

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Pattern renders a deterministic test image. Seeds produce visibly distinct
// layouts; variant nudges a small patch so the result stays perceptually close
// to the same seed with variant 0.
func Pattern(seed, variant int) image.Image {
	const size = 128
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			var v uint8
			switch seed % 4 {
			case 0:
				v = uint8(x * 2)
			case 1:
				v = uint8(y * 2)
			case 2:
				if (x/16+y/16)%2 == 0 {
					v = 230
				} else {
					v = 20
				}
			default:
				dx, dy := x-size/2, y-size/2
				if dx*dx+dy*dy < (size/3)*(size/3) {
					v = 220
				} else {
					v = 30
				}
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: uint8(int(v) + seed*7), A: 255})
		}
	}
	for i := 0; i < variant; i++ {
		img.Set(i%size, (i*3)%size, color.RGBA{R: 255, A: 255})
	}
	return img
}

// PNG encodes a deterministic pattern.
func PNG(t testing.TB, seed, variant int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, Pattern(seed, variant)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// JPEG encodes a deterministic pattern at the given quality.
func JPEG(t testing.TB, seed, quality int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Pattern(seed, 0), &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}
