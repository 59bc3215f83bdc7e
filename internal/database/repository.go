package database

import (
	"context"
	"errors"
)

// Sentinel errors shared by all storage backends.
var (
	// ErrDuplicateRecord means a record for the same (user, class) already
	// exists. This is the authoritative uniqueness guard; the Exists
	// pre-check is only a fast-path UX optimization.
	ErrDuplicateRecord = errors.New("attendance record already exists for user and class")

	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSessionConflict means the subject already has an active or upcoming
	// session, violating the one-session-per-subject scheduling policy.
	ErrSessionConflict = errors.New("subject already has an active or upcoming session")

	// ErrConcurrentUpdate means a concurrent writer claimed the same
	// reference version for the user. The operation is safe to retry.
	ErrConcurrentUpdate = errors.New("concurrent reference update, retry")
)

// RecordStore persists attendance decisions.
type RecordStore interface {
	// Exists reports whether a record exists for (userID, classID).
	Exists(ctx context.Context, userID, classID string) (bool, error)

	// Create commits a record together with the rolling reference update as
	// one atomic unit: the record row, a new reference image version, and
	// the user's last-attendance timestamp all become visible together or
	// not at all. Returns ErrDuplicateRecord when a concurrent caller has
	// already created a record for the same (user, class).
	Create(ctx context.Context, record StoredRecord, newReference ReferenceImage) (string, error)

	// CreateAbsence inserts an Absent record without touching the user's
	// reference image (administrative sweep path). Returns
	// ErrDuplicateRecord if any record already exists for the pair.
	CreateAbsence(ctx context.Context, record StoredRecord) (string, error)

	// Get returns a record by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*StoredRecord, error)

	// List returns records matching the filter, newest first.
	List(ctx context.Context, filter RecordFilter) ([]StoredRecord, error)

	// Override mutates status and verified on an existing record (teacher
	// administrative action). Returns ErrNotFound for unknown IDs.
	Override(ctx context.Context, id string, status Status, verified bool) error
}

// UserStore persists user profiles and their versioned face references.
type UserStore interface {
	// Get returns a user by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*StoredUser, error)

	// Upsert creates or updates a user profile.
	Upsert(ctx context.Context, user StoredUser) error

	// CurrentReference returns the newest reference image version for the
	// user, or nil when the user has never enrolled a face.
	CurrentReference(ctx context.Context, userID string) (*ReferenceImage, error)

	// ReferenceHistory returns all reference versions for the user, oldest
	// first.
	ReferenceHistory(ctx context.Context, userID string) ([]ReferenceImage, error)

	// AddReference appends the next reference version for ref.UserID and
	// returns the assigned version number.
	AddReference(ctx context.Context, ref ReferenceImage) (int, error)

	// CurrentReferences returns the newest reference version of every
	// enrolled user, for building the similarity index.
	CurrentReferences(ctx context.Context) ([]ReferenceImage, error)
}

// ClassStore persists class sessions and subject enrollments.
type ClassStore interface {
	// Get returns a class session by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*StoredClass, error)

	// Create schedules a session. Returns ErrSessionConflict when the
	// subject already has a session that has not ended yet.
	Create(ctx context.Context, class StoredClass) error

	// List returns sessions matching the filter, by start time.
	List(ctx context.Context, filter ClassFilter) ([]StoredClass, error)

	// Enroll registers a user for a subject. Idempotent.
	Enroll(ctx context.Context, userID, subjectID string) error

	// EnrolledUserIDs returns the users enrolled in a subject.
	EnrolledUserIDs(ctx context.Context, subjectID string) ([]string, error)
}
