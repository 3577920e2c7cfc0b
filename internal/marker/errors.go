package marker

import (
	"errors"
	"fmt"
)

// ErrRejected is wrapped by every per-candidate failure. Rejections are
// expected during detection and never abort a frame.
var ErrRejected = errors.New("marker: candidate rejected")

// ErrDegenerateQuad rejects candidates with zero area or a singular
// unit-square mapping.
var ErrDegenerateQuad = fmt.Errorf("%w: degenerate quadrilateral", ErrRejected)

// Configuration errors.
var (
	ErrGridWidth      = errors.New("invalid grid width")
	ErrBorderFraction = errors.New("invalid border fraction")
	ErrIDOutOfRange   = errors.New("identity out of range")
)

// SampleOutOfBoundsError reports a sample point that fell outside the image.
type SampleOutOfBoundsError struct {
	X, Y          float64
	Width, Height int
}

func (e *SampleOutOfBoundsError) Error() string {
	return fmt.Sprintf("marker: sample (%.1f, %.1f) outside %dx%d image", e.X, e.Y, e.Width, e.Height)
}

func (e *SampleOutOfBoundsError) Unwrap() error { return ErrRejected }

// InsufficientBorderContrastError reports a border band that is not black
// enough to be a marker.
type InsufficientBorderContrastError struct {
	BlackFraction float64
	Required      float64
}

func (e *InsufficientBorderContrastError) Error() string {
	return fmt.Sprintf("marker: border %.0f%% black, need %.0f%%", 100*e.BlackFraction, 100*e.Required)
}

func (e *InsufficientBorderContrastError) Unwrap() error { return ErrRejected }

// AmbiguousOrientationError reports that the corner cells matched the
// orientation pattern under zero or several rotations.
type AmbiguousOrientationError struct {
	Matches int
}

func (e *AmbiguousOrientationError) Error() string {
	return fmt.Sprintf("marker: orientation matched %d rotations, need exactly 1", e.Matches)
}

func (e *AmbiguousOrientationError) Unwrap() error { return ErrRejected }
