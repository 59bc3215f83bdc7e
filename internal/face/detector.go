package face

import (
	"context"
	"fmt"
)

// Detector answers whether an image contains at least one face. Used by the
// capture session's live pre-check; downstream logic needs no coordinates.
type Detector interface {
	Detect(ctx context.Context, imageData []byte) (bool, error)
}

// ServiceDetector implements Detector against the face-analysis backend.
type ServiceDetector struct {
	client *Client
}

// NewServiceDetector wraps a Client as a Detector.
func NewServiceDetector(client *Client) *ServiceDetector {
	return &ServiceDetector{client: client}
}

// Detect reports face presence. Decode and backend failures come back as
// ErrDetection so the caller can tell "retry" apart from "no face found";
// either way the boolean is false.
func (d *ServiceDetector) Detect(ctx context.Context, imageData []byte) (bool, error) {
	if err := ValidateImage(imageData, 0); err != nil {
		return false, fmt.Errorf("%w: %v", ErrDetection, err)
	}

	normalized, err := NormalizeImage(imageData, MaxUploadDimension)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDetection, err)
	}

	faces, err := d.client.DetectFaces(ctx, normalized)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	return len(faces) > 0, nil
}

// CountFaces reports the number of detected faces, for callers that need the
// count (the detect endpoint echoes it back to the UI).
func (d *ServiceDetector) CountFaces(ctx context.Context, imageData []byte) (int, error) {
	if err := ValidateImage(imageData, 0); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	normalized, err := NormalizeImage(imageData, MaxUploadDimension)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	faces, err := d.client.DetectFaces(ctx, normalized)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	return len(faces), nil
}
