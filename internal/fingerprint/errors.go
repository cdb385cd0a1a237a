package fingerprint

import (
	"fmt"

	"memecat/internal/services"
)

// Stage names where fingerprinting can fail.
const (
	StageEmpty     = "empty"
	StageTooSmall  = "too_small"
	StageDecode    = "decode"
	StageFrame     = "frame"
	StageTransform = "transform"
)

// MinInputSize is the smallest payload considered a plausible media file.
const MinInputSize = 100

// DecodeError reports a fingerprinting failure for an input of Size bytes.
type DecodeError struct {
	Size  int
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fingerprint %s (%d bytes)", e.Stage, e.Size)
	}
	return fmt.Sprintf("fingerprint %s (%d bytes): %v", e.Stage, e.Size, e.Err)
}

// Unwrap exposes both the marker and the cause to errors.Is.
func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrDecodeFailure}
	}
	return []error{services.ErrDecodeFailure, e.Err}
}

func decodeError(size int, stage string, err error) *DecodeError {
	return &DecodeError{Size: size, Stage: stage, Err: err}
}
