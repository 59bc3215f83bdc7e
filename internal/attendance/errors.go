package attendance

import (
	"errors"
	"fmt"
)

// Precondition failures. All of these fire before any face comparison runs.
var (
	// ErrAlreadyMarked means a record already exists for the (user, class)
	// pair. Attendance is idempotent per class session.
	ErrAlreadyMarked = errors.New("attendance already marked for this class")

	// ErrMissingReference means the user has never enrolled a face and
	// therefore cannot be verified.
	ErrMissingReference = errors.New("no reference image enrolled for user")

	// ErrMissingLocation means no usable geolocation accompanied the
	// capture.
	ErrMissingLocation = errors.New("location is required to mark attendance")

	// ErrClassNotFound means the class session does not exist.
	ErrClassNotFound = errors.New("class session not found")
)

// MismatchError is returned when the face comparison ran but scored below
// the acceptance threshold. Nothing is written; the caller may retry with a
// fresh capture.
type MismatchError struct {
	Percentage float64
	Threshold  float64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("face does not match: %.2f%% is below the %.0f%% threshold", e.Percentage, e.Threshold)
}

// IsMismatch reports whether err is a below-threshold comparison and
// returns the scored percentage.
func IsMismatch(err error) (*MismatchError, bool) {
	var mismatch *MismatchError
	if errors.As(err, &mismatch) {
		return mismatch, true
	}
	return nil, false
}
