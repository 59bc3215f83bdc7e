package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/veriface/attendance/internal/database"
	"github.com/veriface/attendance/internal/database/mock"
	"github.com/veriface/attendance/internal/face"
)

// stubComparer returns a fixed percentage and counts calls, so tests can
// assert that preconditions short-circuit before any comparison.
type stubComparer struct {
	percentage float64
	err        error
	calls      atomic.Int64
}

func (s *stubComparer) CompareDetailed(ctx context.Context, referenceImage, capturedImage []byte) (*face.Comparison, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &face.Comparison{
		MatchPercentage:   s.percentage,
		CapturedEmbedding: []float32{0.5, 0.5},
	}, nil
}

func testClass(start time.Time) *database.StoredClass {
	return &database.StoredClass{
		ID:          "class-1",
		SubjectID:   "cse-3-3",
		SubjectName: "DBMS",
		TeacherID:   "teacher-1",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
	}
}

func newTestEngine(comparer *stubComparer) (*Engine, *mock.MockRecordStore, *mock.MockUserStore) {
	users := mock.NewMockUserStore()
	records := mock.NewMockRecordStore(users)
	engine := NewEngine(comparer, records, users, 70.0, 15*time.Minute)
	return engine, records, users
}

func enrollUser(t *testing.T, users *mock.MockUserStore, userID string) {
	t.Helper()
	users.AddUser(database.StoredUser{ID: userID, Role: database.RoleStudent})
	if _, err := users.AddReference(context.Background(), database.ReferenceImage{
		UserID:    userID,
		Image:     []byte("reference-image"),
		Embedding: []float32{1, 0},
	}); err != nil {
		t.Fatalf("Failed to enroll user: %v", err)
	}
}

func TestDecideAccepts(t *testing.T) {
	comparer := &stubComparer{percentage: 87.42}
	engine, records, users := newTestEngine(comparer)
	enrollUser(t, users, "user-1")

	start := time.Now()
	decision, err := engine.Decide(context.Background(), "user-1", testClass(start), []byte("captured"), Location{Latitude: 12.97, Longitude: 77.59, Name: "Campus"}, start.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if decision.Status != database.StatusPresent {
		t.Errorf("Expected Present, got %s", decision.Status)
	}
	if decision.MatchPercentage != 87.42 {
		t.Errorf("Expected 87.42, got %v", decision.MatchPercentage)
	}
	if decision.ReferenceVersion != 2 {
		t.Errorf("Expected reference version 2, got %d", decision.ReferenceVersion)
	}

	record, err := records.Get(context.Background(), decision.RecordID)
	if err != nil {
		t.Fatalf("Failed to load record: %v", err)
	}
	if record.Verified {
		t.Error("Expected new record to be unverified")
	}
	if record.Status != database.StatusPresent {
		t.Errorf("Expected Present, got %s", record.Status)
	}
	if record.LocationName != "Campus" {
		t.Errorf("Expected location name, got %q", record.LocationName)
	}

	// The accepted capture becomes the new reference version.
	current, err := users.CurrentReference(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Failed to load reference: %v", err)
	}
	if current.Version != 2 || string(current.Image) != "captured" {
		t.Errorf("Expected rolled reference v2, got v%d %q", current.Version, current.Image)
	}
}

func TestDecideThresholdBoundary(t *testing.T) {
	tests := []struct {
		name       string
		percentage float64
		accept     bool
	}{
		{"WellAbove", 99.99, true},
		{"ExactThreshold", 70.0, true},
		{"JustBelow", 69.99, false},
		{"WellBelow", 12.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comparer := &stubComparer{percentage: tt.percentage}
			engine, records, users := newTestEngine(comparer)
			enrollUser(t, users, "user-1")

			start := time.Now()
			_, err := engine.Decide(context.Background(), "user-1", testClass(start), []byte("captured"), Location{Latitude: 1, Longitude: 1}, start)
			if tt.accept {
				if err != nil {
					t.Fatalf("Expected acceptance at %v%%, got %v", tt.percentage, err)
				}
				return
			}

			mismatch, ok := IsMismatch(err)
			if !ok {
				t.Fatalf("Expected MismatchError, got %v", err)
			}
			if mismatch.Percentage != tt.percentage {
				t.Errorf("Expected literal percentage %v, got %v", tt.percentage, mismatch.Percentage)
			}

			// Nothing written on rejection.
			all, _ := records.List(context.Background(), database.RecordFilter{})
			if len(all) != 0 {
				t.Errorf("Expected no records after rejection, got %d", len(all))
			}
			if users.ReferenceCount("user-1") != 1 {
				t.Error("Expected reference untouched after rejection")
			}
		})
	}
}

func TestDecideLateDerivation(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
		status database.Status
	}{
		{"OnTime", time.Minute, database.StatusPresent},
		{"JustInsideGrace", 14*time.Minute + 59*time.Second, database.StatusPresent},
		{"ExactGraceBoundary", 15 * time.Minute, database.StatusPresent},
		{"JustLate", 15*time.Minute + time.Second, database.StatusLate},
		{"VeryLate", 45 * time.Minute, database.StatusLate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _, users := newTestEngine(&stubComparer{percentage: 95})
			enrollUser(t, users, "user-1")

			start := time.Now()
			decision, err := engine.Decide(context.Background(), "user-1", testClass(start), []byte("captured"), Location{Latitude: 1, Longitude: 1}, start.Add(tt.offset))
			if err != nil {
				t.Fatalf("Decide failed: %v", err)
			}
			if decision.Status != tt.status {
				t.Errorf("Expected %s at offset %v, got %s", tt.status, tt.offset, decision.Status)
			}
		})
	}
}

func TestDecidePreconditionOrder(t *testing.T) {
	start := time.Now()

	t.Run("AlreadyMarkedFirst", func(t *testing.T) {
		comparer := &stubComparer{percentage: 95}
		engine, records, users := newTestEngine(comparer)
		enrollUser(t, users, "user-1")
		records.AddRecord(database.StoredRecord{
			ID: "existing", UserID: "user-1", ClassID: "class-1",
			Status: database.StatusPresent, Timestamp: start,
		})

		// No reference and no location would also fail, but already-marked
		// must win.
		_, err := engine.Decide(context.Background(), "user-1", testClass(start), []byte("captured"), Location{}, start)
		if !errors.Is(err, ErrAlreadyMarked) {
			t.Fatalf("Expected ErrAlreadyMarked, got %v", err)
		}
		if comparer.calls.Load() != 0 {
			t.Error("Expected no comparison for precondition failure")
		}
	})

	t.Run("MissingReferenceBeforeLocation", func(t *testing.T) {
		comparer := &stubComparer{percentage: 95}
		engine, _, users := newTestEngine(comparer)
		users.AddUser(database.StoredUser{ID: "user-1"})

		_, err := engine.Decide(context.Background(), "user-1", testClass(start), []byte("captured"), Location{}, start)
		if !errors.Is(err, ErrMissingReference) {
			t.Fatalf("Expected ErrMissingReference, got %v", err)
		}
		if comparer.calls.Load() != 0 {
			t.Error("Expected no comparison for precondition failure")
		}
	})

	t.Run("MissingLocation", func(t *testing.T) {
		comparer := &stubComparer{percentage: 95}
		engine, _, users := newTestEngine(comparer)
		enrollUser(t, users, "user-1")

		_, err := engine.Decide(context.Background(), "user-1", testClass(start), []byte("captured"), Location{}, start)
		if !errors.Is(err, ErrMissingLocation) {
			t.Fatalf("Expected ErrMissingLocation, got %v", err)
		}
		if comparer.calls.Load() != 0 {
			t.Error("Expected no comparison for precondition failure")
		}
	})

	t.Run("NilClass", func(t *testing.T) {
		engine, _, _ := newTestEngine(&stubComparer{percentage: 95})
		_, err := engine.Decide(context.Background(), "user-1", nil, []byte("captured"), Location{Latitude: 1, Longitude: 1}, start)
		if !errors.Is(err, ErrClassNotFound) {
			t.Fatalf("Expected ErrClassNotFound, got %v", err)
		}
	})
}

func TestDecideComparerFailurePropagates(t *testing.T) {
	wantErr := &face.NoFaceError{Image: "current", Reason: "none"}
	engine, records, users := newTestEngine(&stubComparer{err: wantErr})
	enrollUser(t, users, "user-1")

	start := time.Now()
	_, err := engine.Decide(context.Background(), "user-1", testClass(start), []byte("captured"), Location{Latitude: 1, Longitude: 1}, start)
	if !errors.Is(err, face.ErrNoFace) {
		t.Fatalf("Expected ErrNoFace, got %v", err)
	}

	all, _ := records.List(context.Background(), database.RecordFilter{})
	if len(all) != 0 {
		t.Errorf("Expected no records after comparison failure, got %d", len(all))
	}
}

func TestDecideConcurrentDoubleSubmit(t *testing.T) {
	engine, records, users := newTestEngine(&stubComparer{percentage: 95})
	enrollUser(t, users, "user-1")

	start := time.Now()
	const attempts = 16

	var wg sync.WaitGroup
	var accepted, duplicate atomic.Int64
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Decide(context.Background(), "user-1", testClass(start), []byte("captured"), Location{Latitude: 1, Longitude: 1}, start)
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, database.ErrDuplicateRecord), errors.Is(err, ErrAlreadyMarked):
				duplicate.Add(1)
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != 1 {
		t.Errorf("Expected exactly 1 accepted submit, got %d", accepted.Load())
	}
	if accepted.Load()+duplicate.Load() != attempts {
		t.Errorf("Expected %d total outcomes, got %d", attempts, accepted.Load()+duplicate.Load())
	}

	all, _ := records.List(context.Background(), database.RecordFilter{UserID: "user-1"})
	if len(all) != 1 {
		t.Errorf("Expected exactly 1 record, got %d", len(all))
	}
}

func TestSweep(t *testing.T) {
	start := time.Now().Add(-2 * time.Hour)
	class := testClass(start)

	t.Run("MarksMissingUsersAbsent", func(t *testing.T) {
		engine, records, users := newTestEngine(&stubComparer{percentage: 95})
		enrollUser(t, users, "user-1")

		// user-1 attended; user-2 and user-3 did not.
		if _, err := engine.Decide(context.Background(), "user-1", class, []byte("captured"), Location{Latitude: 1, Longitude: 1}, start.Add(5*time.Minute)); err != nil {
			t.Fatalf("Decide failed: %v", err)
		}

		now := time.Now()
		swept, err := engine.Sweep(context.Background(), class, []string{"user-1", "user-2", "user-3"}, now)
		if err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}
		if swept != 2 {
			t.Errorf("Expected 2 absences, got %d", swept)
		}

		all, _ := records.List(context.Background(), database.RecordFilter{ClassID: "class-1"})
		if len(all) != 3 {
			t.Fatalf("Expected 3 records, got %d", len(all))
		}
		for _, record := range all {
			if record.UserID != "user-1" && record.Status != database.StatusAbsent {
				t.Errorf("Expected Absent for %s, got %s", record.UserID, record.Status)
			}
		}

		// Idempotent: a second sweep writes nothing.
		swept, err = engine.Sweep(context.Background(), class, []string{"user-1", "user-2", "user-3"}, now)
		if err != nil {
			t.Fatalf("Second sweep failed: %v", err)
		}
		if swept != 0 {
			t.Errorf("Expected 0 absences on second sweep, got %d", swept)
		}
	})

	t.Run("RefusesOngoingClass", func(t *testing.T) {
		engine, _, _ := newTestEngine(&stubComparer{percentage: 95})
		ongoing := testClass(time.Now())
		_, err := engine.Sweep(context.Background(), ongoing, []string{"user-1"}, time.Now().Add(5*time.Minute))
		if err == nil {
			t.Fatal("Expected error sweeping an ongoing class")
		}
	})
}

func TestDecideStoreErrorPropagates(t *testing.T) {
	engine, records, users := newTestEngine(&stubComparer{percentage: 95})
	enrollUser(t, users, "user-1")
	records.ExistsError = fmt.Errorf("connection refused")

	start := time.Now()
	_, err := engine.Decide(context.Background(), "user-1", testClass(start), []byte("captured"), Location{Latitude: 1, Longitude: 1}, start)
	if err == nil {
		t.Fatal("Expected store error to propagate")
	}
}
