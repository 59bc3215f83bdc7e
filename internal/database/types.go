package database

import (
	"time"
)

// Role identifies what a user may do in the system.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Status is the derived attendance outcome for one (user, class) pair.
type Status string

const (
	StatusPresent Status = "Present"
	StatusLate    Status = "Late"
	// StatusAbsent is only ever assigned by the administrative sweep or a
	// teacher override, never by the decision engine.
	StatusAbsent Status = "Absent"
)

// StoredUser is a user profile row.
type StoredUser struct {
	ID               string
	Name             string
	Email            string
	Role             Role
	Department       string
	Semester         int
	LastAttendanceAt *time.Time
	CreatedAt        time.Time
}

// ReferenceImage is one version of a user's stored face reference. Versions
// are append-only: a new accepted capture becomes the next version and the
// prior versions stay recoverable for audit or rollback.
type ReferenceImage struct {
	ID        int64
	UserID    string
	Version   int
	Image     []byte    // encoded still image (JPEG)
	Embedding []float32 // cached face embedding for the image
	CreatedAt time.Time
}

// StoredClass is one scheduled class session. The half-open interval
// [StartTime, EndTime) defines "ongoing".
type StoredClass struct {
	ID          string
	SubjectID   string
	SubjectName string
	Department  string
	TeacherID   string
	StartTime   time.Time
	EndTime     time.Time
	CreatedAt   time.Time
}

// Ongoing reports whether the session is in progress at the given instant.
func (c *StoredClass) Ongoing(now time.Time) bool {
	return !now.Before(c.StartTime) && now.Before(c.EndTime)
}

// Ended reports whether the session is over at the given instant.
func (c *StoredClass) Ended(now time.Time) bool {
	return !now.Before(c.EndTime)
}

// StoredRecord is one committed attendance decision. At most one record
// exists per (UserID, ClassID); the storage layer enforces this.
type StoredRecord struct {
	ID              string
	UserID          string
	ClassID         string
	SubjectID       string
	SubjectName     string
	TeacherID       string
	Timestamp       time.Time
	Image           []byte // the captured still used for comparison
	Latitude        float64
	Longitude       float64
	LocationName    string
	MatchPercentage float64
	Status          Status
	Verified        bool
	CreatedAt       time.Time
}

// RecordFilter narrows record listings. Zero values mean "no filter".
type RecordFilter struct {
	UserID  string
	ClassID string
	Limit   int
	Offset  int
}

// ClassFilter narrows class listings. Zero values mean "no filter".
type ClassFilter struct {
	SubjectID string
	TeacherID string
	Day       time.Time // when non-zero, sessions starting on this calendar day
}
