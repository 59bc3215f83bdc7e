// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veriface/attendance/internal/database"
)

// MockRecordStore is an in-memory implementation of database.RecordStore.
// Uniqueness of (user, class) is enforced under the store lock, so it is
// safe to hammer from concurrent goroutines in tests.
type MockRecordStore struct {
	mu      sync.RWMutex
	records map[string]*database.StoredRecord
	users   *MockUserStore // when set, Create rolls the reference here

	// Error injection
	ExistsError   error
	CreateError   error
	GetError      error
	ListError     error
	OverrideError error
}

// NewMockRecordStore creates a new mock record store. The user store is
// optional; when provided, Create appends the reference version to it the
// way the real transactional implementation does.
func NewMockRecordStore(users *MockUserStore) *MockRecordStore {
	return &MockRecordStore{
		records: make(map[string]*database.StoredRecord),
		users:   users,
	}
}

// AddRecord seeds a record directly.
func (m *MockRecordStore) AddRecord(record database.StoredRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = &record
}

// Exists reports whether a record exists for (userID, classID).
func (m *MockRecordStore) Exists(ctx context.Context, userID, classID string) (bool, error) {
	if m.ExistsError != nil {
		return false, m.ExistsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.find(userID, classID) != nil, nil
}

// Create inserts the record and rolls the reference atomically under the
// store lock.
func (m *MockRecordStore) Create(ctx context.Context, record database.StoredRecord, newReference database.ReferenceImage) (string, error) {
	if m.CreateError != nil {
		return "", m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.find(record.UserID, record.ClassID) != nil {
		return "", database.ErrDuplicateRecord
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	m.records[record.ID] = &record

	if m.users != nil {
		m.users.appendReference(newReference)
		m.users.touchLastAttendance(record.UserID, record.Timestamp)
	}
	return record.ID, nil
}

// CreateAbsence inserts an Absent record without touching references.
func (m *MockRecordStore) CreateAbsence(ctx context.Context, record database.StoredRecord) (string, error) {
	if m.CreateError != nil {
		return "", m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.find(record.UserID, record.ClassID) != nil {
		return "", database.ErrDuplicateRecord
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	m.records[record.ID] = &record
	return record.ID, nil
}

// Get returns a record by ID.
func (m *MockRecordStore) Get(ctx context.Context, id string) (*database.StoredRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

// List returns records matching the filter, newest first.
func (m *MockRecordStore) List(ctx context.Context, filter database.RecordFilter) ([]database.StoredRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []database.StoredRecord
	for _, record := range m.records {
		if filter.UserID != "" && record.UserID != filter.UserID {
			continue
		}
		if filter.ClassID != "" && record.ClassID != filter.ClassID {
			continue
		}
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(records) {
			return nil, nil
		}
		records = records[filter.Offset:]
	}
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

// Override mutates status and verified on an existing record.
func (m *MockRecordStore) Override(ctx context.Context, id string, status database.Status, verified bool) error {
	if m.OverrideError != nil {
		return m.OverrideError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return database.ErrNotFound
	}
	record.Status = status
	record.Verified = verified
	return nil
}

func (m *MockRecordStore) find(userID, classID string) *database.StoredRecord {
	for _, record := range m.records {
		if record.UserID == userID && record.ClassID == classID {
			return record
		}
	}
	return nil
}

// MockUserStore is an in-memory implementation of database.UserStore.
type MockUserStore struct {
	mu         sync.RWMutex
	users      map[string]*database.StoredUser
	references map[string][]database.ReferenceImage
	nextRefID  int64

	// Error injection
	GetError              error
	UpsertError           error
	CurrentReferenceError error
	AddReferenceError     error
	ListReferencesError   error
}

// NewMockUserStore creates a new mock user store.
func NewMockUserStore() *MockUserStore {
	return &MockUserStore{
		users:      make(map[string]*database.StoredUser),
		references: make(map[string][]database.ReferenceImage),
	}
}

// AddUser seeds a user directly.
func (m *MockUserStore) AddUser(user database.StoredUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = &user
}

// Get returns a user by ID.
func (m *MockUserStore) Get(ctx context.Context, id string) (*database.StoredUser, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

// Upsert creates or updates a user profile.
func (m *MockUserStore) Upsert(ctx context.Context, user database.StoredUser) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = &user
	return nil
}

// CurrentReference returns the newest reference version for the user.
func (m *MockUserStore) CurrentReference(ctx context.Context, userID string) (*database.ReferenceImage, error) {
	if m.CurrentReferenceError != nil {
		return nil, m.CurrentReferenceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	refs := m.references[userID]
	if len(refs) == 0 {
		return nil, nil
	}
	copied := refs[len(refs)-1]
	return &copied, nil
}

// ReferenceHistory returns all reference versions, oldest first.
func (m *MockUserStore) ReferenceHistory(ctx context.Context, userID string) ([]database.ReferenceImage, error) {
	if m.ListReferencesError != nil {
		return nil, m.ListReferencesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	refs := m.references[userID]
	out := make([]database.ReferenceImage, len(refs))
	copy(out, refs)
	return out, nil
}

// AddReference appends the next reference version.
func (m *MockUserStore) AddReference(ctx context.Context, ref database.ReferenceImage) (int, error) {
	if m.AddReferenceError != nil {
		return 0, m.AddReferenceError
	}
	return m.appendReference(ref), nil
}

// CurrentReferences returns the newest version per user.
func (m *MockUserStore) CurrentReferences(ctx context.Context) ([]database.ReferenceImage, error) {
	if m.ListReferencesError != nil {
		return nil, m.ListReferencesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var refs []database.ReferenceImage
	for _, versions := range m.references {
		if len(versions) > 0 {
			refs = append(refs, versions[len(versions)-1])
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].UserID < refs[j].UserID
	})
	return refs, nil
}

// ReferenceCount returns the number of stored versions for a user.
func (m *MockUserStore) ReferenceCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.references[userID])
}

func (m *MockUserStore) appendReference(ref database.ReferenceImage) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRefID++
	ref.ID = m.nextRefID
	ref.Version = len(m.references[ref.UserID]) + 1
	m.references[ref.UserID] = append(m.references[ref.UserID], ref)
	return ref.Version
}

func (m *MockUserStore) touchLastAttendance(userID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[userID]; ok {
		user.LastAttendanceAt = &at
	}
}

// MockClassStore is an in-memory implementation of database.ClassStore.
type MockClassStore struct {
	mu          sync.RWMutex
	classes     map[string]*database.StoredClass
	enrollments map[string]map[string]struct{} // subjectID -> userID set

	// Error injection
	GetError    error
	CreateError error
	ListError   error
	EnrollError error
}

// NewMockClassStore creates a new mock class store.
func NewMockClassStore() *MockClassStore {
	return &MockClassStore{
		classes:     make(map[string]*database.StoredClass),
		enrollments: make(map[string]map[string]struct{}),
	}
}

// AddClass seeds a class session directly.
func (m *MockClassStore) AddClass(class database.StoredClass) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[class.ID] = &class
}

// Get returns a class session by ID.
func (m *MockClassStore) Get(ctx context.Context, id string) (*database.StoredClass, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	class, ok := m.classes[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *class
	return &copied, nil
}

// Create schedules a session, enforcing one-unfinished-session-per-subject.
func (m *MockClassStore) Create(ctx context.Context, class database.StoredClass) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.classes {
		if existing.SubjectID == class.SubjectID && existing.EndTime.After(class.StartTime) {
			return database.ErrSessionConflict
		}
	}
	m.classes[class.ID] = &class
	return nil
}

// List returns sessions matching the filter, by start time.
func (m *MockClassStore) List(ctx context.Context, filter database.ClassFilter) ([]database.StoredClass, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var classes []database.StoredClass
	for _, class := range m.classes {
		if filter.SubjectID != "" && class.SubjectID != filter.SubjectID {
			continue
		}
		if filter.TeacherID != "" && class.TeacherID != filter.TeacherID {
			continue
		}
		if !filter.Day.IsZero() {
			y1, m1, d1 := filter.Day.Date()
			y2, m2, d2 := class.StartTime.Date()
			if y1 != y2 || m1 != m2 || d1 != d2 {
				continue
			}
		}
		classes = append(classes, *class)
	}
	sort.Slice(classes, func(i, j int) bool {
		return classes[i].StartTime.Before(classes[j].StartTime)
	})
	return classes, nil
}

// Enroll registers a user for a subject. Idempotent.
func (m *MockClassStore) Enroll(ctx context.Context, userID, subjectID string) error {
	if m.EnrollError != nil {
		return m.EnrollError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enrollments[subjectID] == nil {
		m.enrollments[subjectID] = make(map[string]struct{})
	}
	m.enrollments[subjectID][userID] = struct{}{}
	return nil
}

// EnrolledUserIDs returns the users enrolled in a subject.
func (m *MockClassStore) EnrolledUserIDs(ctx context.Context, subjectID string) ([]string, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.enrollments[subjectID]))
	for id := range m.enrollments[subjectID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
