package face

import (
	"errors"
	"fmt"
)

// Failure classes for the face engine. Callers branch on these to decide
// between "retry the request" and "retake the photo".
var (
	// ErrNoFace means the backend processed the image but found no usable
	// face (none at all, or more than one where exactly one is required).
	ErrNoFace = errors.New("no usable face in image")

	// ErrDecode means the payload is not a decodable image. Not retryable
	// without a new capture.
	ErrDecode = errors.New("image could not be decoded")

	// ErrService means the face-analysis backend is unreachable, overloaded
	// or returned a 5xx. Retryable with the same capture.
	ErrService = errors.New("face service unavailable")

	// ErrDetection means the detection pre-check itself failed (decode or
	// backend failure). The UI should prompt a retry rather than a
	// reposition.
	ErrDetection = errors.New("face detection failed")

	// ErrTooLarge means the encoded payload exceeds the configured size
	// limit. Not retryable without a new capture.
	ErrTooLarge = errors.New("image exceeds size limit")
)

// NoFaceError reports which image lacked a usable face, wrapping ErrNoFace.
type NoFaceError struct {
	Image  string // "profile" or "current"
	Reason string // "none" or "multiple"
}

func (e *NoFaceError) Error() string {
	if e.Reason == "multiple" {
		return fmt.Sprintf("multiple faces found in %s image", e.Image)
	}
	return fmt.Sprintf("no face found in %s image", e.Image)
}

func (e *NoFaceError) Unwrap() error { return ErrNoFace }
