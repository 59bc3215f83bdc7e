// Package attendance turns a face capture into a committed attendance
// record, enforcing the precondition and threshold policy in one place.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/veriface/attendance/internal/database"
	"github.com/veriface/attendance/internal/face"
)

// Location is a geographic fix attached to a capture. Zero coordinates are
// treated as "no location" because browsers report exactly that when the
// permission is denied.
type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
}

// Valid reports whether the location carries a usable fix.
func (l Location) Valid() bool {
	return l.Latitude != 0 || l.Longitude != 0
}

// Comparer scores a reference image against a captured still.
type Comparer interface {
	CompareDetailed(ctx context.Context, referenceImage, capturedImage []byte) (*face.Comparison, error)
}

// Decision is the committed outcome of a successful attendance attempt. The
// captured embedding rides along so callers can refresh the in-memory
// reference index with the rolled version.
type Decision struct {
	RecordID          string
	Status            database.Status
	MatchPercentage   float64
	ReferenceVersion  int
	CapturedEmbedding []float32
}

// Engine gates attendance on face verification. Thresholds and the grace
// period come from configuration; the engine itself decides, the stores
// commit.
type Engine struct {
	matcher Comparer
	records database.RecordStore
	users   database.UserStore

	threshold   float64       // minimum accepted match percentage
	gracePeriod time.Duration // Late after startTime + gracePeriod
}

// NewEngine builds a decision engine.
func NewEngine(matcher Comparer, records database.RecordStore, users database.UserStore, threshold float64, gracePeriod time.Duration) *Engine {
	return &Engine{
		matcher:     matcher,
		records:     records,
		users:       users,
		threshold:   threshold,
		gracePeriod: gracePeriod,
	}
}

// Decide runs the full gate for one capture. Preconditions are checked in a
// fixed order and short-circuit before any face comparison: already marked,
// then missing reference, then missing location. A below-threshold match
// returns *MismatchError and writes nothing.
//
// On acceptance the record, the rolled reference image and the user's
// last-attendance timestamp commit as one transaction.
func (e *Engine) Decide(ctx context.Context, userID string, class *database.StoredClass, capturedImage []byte, loc Location, now time.Time) (*Decision, error) {
	if class == nil {
		return nil, ErrClassNotFound
	}

	exists, err := e.records.Exists(ctx, userID, class.ID)
	if err != nil {
		return nil, fmt.Errorf("checking existing record: %w", err)
	}
	if exists {
		return nil, ErrAlreadyMarked
	}

	reference, err := e.users.CurrentReference(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading reference image: %w", err)
	}
	if reference == nil {
		return nil, ErrMissingReference
	}

	if !loc.Valid() {
		return nil, ErrMissingLocation
	}

	comparison, err := e.matcher.CompareDetailed(ctx, reference.Image, capturedImage)
	if err != nil {
		return nil, err
	}

	if comparison.MatchPercentage < e.threshold {
		return nil, &MismatchError{
			Percentage: comparison.MatchPercentage,
			Threshold:  e.threshold,
		}
	}

	status := database.StatusPresent
	if now.After(class.StartTime.Add(e.gracePeriod)) {
		status = database.StatusLate
	}

	record := database.StoredRecord{
		UserID:          userID,
		ClassID:         class.ID,
		SubjectID:       class.SubjectID,
		SubjectName:     class.SubjectName,
		TeacherID:       class.TeacherID,
		Timestamp:       now,
		Image:           capturedImage,
		Latitude:        loc.Latitude,
		Longitude:       loc.Longitude,
		LocationName:    loc.Name,
		MatchPercentage: comparison.MatchPercentage,
		Status:          status,
		Verified:        false,
	}
	newReference := database.ReferenceImage{
		UserID:    userID,
		Image:     capturedImage,
		Embedding: comparison.CapturedEmbedding,
	}

	recordID, err := e.records.Create(ctx, record, newReference)
	if err != nil {
		// A concurrent submit won the race after our pre-check.
		return nil, err
	}

	log.Printf("Attendance marked: user=%s class=%s status=%s match=%.2f%%", userID, class.ID, status, comparison.MatchPercentage)

	return &Decision{
		RecordID:          recordID,
		Status:            status,
		MatchPercentage:   comparison.MatchPercentage,
		ReferenceVersion:  reference.Version + 1,
		CapturedEmbedding: comparison.CapturedEmbedding,
	}, nil
}

// Sweep marks every enrolled user without a record for the class as Absent.
// It is meant to run after a session ends and is idempotent: users who
// already have a record are skipped. Returns the number of absences written.
func (e *Engine) Sweep(ctx context.Context, class *database.StoredClass, enrolledUserIDs []string, now time.Time) (int, error) {
	if class == nil {
		return 0, ErrClassNotFound
	}
	if !class.Ended(now) {
		return 0, fmt.Errorf("class %s has not ended yet", class.ID)
	}

	swept := 0
	for _, userID := range enrolledUserIDs {
		_, err := e.records.CreateAbsence(ctx, database.StoredRecord{
			UserID:      userID,
			ClassID:     class.ID,
			SubjectID:   class.SubjectID,
			SubjectName: class.SubjectName,
			TeacherID:   class.TeacherID,
			Timestamp:   now,
			Status:      database.StatusAbsent,
			Verified:    true,
		})
		if errors.Is(err, database.ErrDuplicateRecord) {
			continue
		}
		if err != nil {
			return swept, fmt.Errorf("sweeping user %s: %w", userID, err)
		}
		swept++
	}
	return swept, nil
}
