package fingerprint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// FrameExtractor returns an encoded still image taken from video data.
type FrameExtractor interface {
	FirstFrame(ctx context.Context, data []byte) ([]byte, error)
}

// Computer turns media bytes into fingerprints.
type Computer struct {
	frames FrameExtractor
}

// NewComputer builds a Computer. frames may be nil, in which case video input
// fails at the frame stage.
func NewComputer(frames FrameExtractor) *Computer {
	return &Computer{frames: frames}
}

// Compute returns the perceptual hash of data. Identical input yields an
// identical fingerprint.
func (c *Computer) Compute(ctx context.Context, data []byte, kind MediaKind) (Fingerprint, error) {
	size := len(data)
	if err := checkSize(data); err != nil {
		return 0, err
	}

	if kind == KindVideo {
		if c == nil || c.frames == nil {
			return 0, decodeError(size, StageFrame, errors.New("no frame extractor configured"))
		}
		frame, err := c.frames.FirstFrame(ctx, data)
		if err != nil {
			return 0, decodeError(size, StageFrame, err)
		}
		if len(frame) == 0 {
			return 0, decodeError(size, StageFrame, errors.New("extractor returned no frame"))
		}
		fp, ferr := hashImage(frame)
		if ferr != nil {
			// Report against the original payload size.
			ferr.Size = size
			return 0, ferr
		}
		return fp, nil
	}

	fp, ferr := hashImage(data)
	if ferr != nil {
		return 0, ferr
	}
	return fp, nil
}

func checkSize(data []byte) error {
	switch {
	case len(data) == 0:
		return decodeError(0, StageEmpty, nil)
	case len(data) < MinInputSize:
		return decodeError(len(data), StageTooSmall, nil)
	}
	return nil
}

func hashImage(data []byte) (fp Fingerprint, derr *DecodeError) {
	size := len(data)
	stage := StageDecode
	defer func() {
		if r := recover(); r != nil {
			fp = 0
			derr = decodeError(size, stage, fmt.Errorf("panic: %v", r))
		}
	}()

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, decodeError(size, StageDecode, err)
	}

	stage = StageTransform
	flat := flatten(img)
	hash, err := goimagehash.PerceptionHash(flat)
	if err != nil {
		return 0, decodeError(size, StageTransform, err)
	}
	return Fingerprint(hash.GetHash()), nil
}

// flatten composites img over an opaque white canvas.
func flatten(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), img, bounds.Min, draw.Over)
	return canvas
}
