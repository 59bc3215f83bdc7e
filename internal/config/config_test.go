package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.FaceService.URL != "http://localhost:8000" {
		t.Errorf("expected default face service URL, got %q", cfg.FaceService.URL)
	}
	if cfg.FaceService.Timeout != 30*time.Second {
		t.Errorf("expected 30s face service timeout, got %v", cfg.FaceService.Timeout)
	}
	if cfg.Attendance.MatchThreshold != 70.0 {
		t.Errorf("expected 70.0 match threshold, got %v", cfg.Attendance.MatchThreshold)
	}
	if cfg.Attendance.GracePeriod != 15*time.Minute {
		t.Errorf("expected 15m grace period, got %v", cfg.Attendance.GracePeriod)
	}
	if cfg.Attendance.MaxImageBytes != 5<<20 {
		t.Errorf("expected 5 MiB image limit, got %d", cfg.Attendance.MaxImageBytes)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected 25 max open conns, got %d", cfg.Database.MaxOpenConns)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "85.5")
	t.Setenv("GRACE_PERIOD", "10m")
	t.Setenv("FACE_SERVICE_URL", "http://faces:9000")

	cfg := Load()

	if cfg.Attendance.MatchThreshold != 85.5 {
		t.Errorf("expected overridden threshold 85.5, got %v", cfg.Attendance.MatchThreshold)
	}
	if cfg.Attendance.GracePeriod != 10*time.Minute {
		t.Errorf("expected overridden grace period 10m, got %v", cfg.Attendance.GracePeriod)
	}
	if cfg.FaceService.URL != "http://faces:9000" {
		t.Errorf("expected overridden face service URL, got %q", cfg.FaceService.URL)
	}
}

func TestLoadInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "150")     // out of range
	t.Setenv("GRACE_PERIOD", "not-a-time") // unparseable
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "-3")

	cfg := Load()

	if cfg.Attendance.MatchThreshold != 70.0 {
		t.Errorf("expected fallback threshold 70.0, got %v", cfg.Attendance.MatchThreshold)
	}
	if cfg.Attendance.GracePeriod != 15*time.Minute {
		t.Errorf("expected fallback grace period, got %v", cfg.Attendance.GracePeriod)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected fallback max open conns, got %d", cfg.Database.MaxOpenConns)
	}
}

func TestEmbeddedSubjectCatalog(t *testing.T) {
	cfg := Load()

	cse, ok := cfg.Subjects.Departments["CSE"]
	if !ok {
		t.Fatal("expected CSE department in embedded catalog")
	}
	sem3 := cse[3]
	if len(sem3) != 4 {
		t.Fatalf("expected 4 subjects for CSE semester 3, got %d", len(sem3))
	}
	if sem3[3] != "DBMS" {
		t.Errorf("expected DBMS as last CSE/3 subject, got %q", sem3[3])
	}
}
