package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/veriface/attendance/internal/database"
)

func sampleRecord(id, classID string, status database.Status, pct float64) database.StoredRecord {
	return database.StoredRecord{
		ID:              id,
		UserID:          "user-1",
		ClassID:         classID,
		SubjectID:       "cse-3-3",
		SubjectName:     "DBMS",
		TeacherID:       "teacher-1",
		Timestamp:       time.Date(2026, 3, 10, 9, 5, 0, 0, time.UTC),
		Latitude:        12.97,
		Longitude:       77.59,
		LocationName:    "Campus",
		MatchPercentage: pct,
		Status:          status,
	}
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.Write(sampleRecord("r1", "class-1", database.StatusPresent, 87.42)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Write(sampleRecord("r2", "class-1", database.StatusLate, 73.5)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse output: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "record_id" {
		t.Errorf("Expected header row, got %v", rows[0])
	}
	if rows[1][0] != "r1" || rows[1][7] != "Present" || rows[1][8] != "87.42" {
		t.Errorf("Unexpected first row: %v", rows[1])
	}
	if rows[2][6] != "2026-03-10T09:05:00Z" {
		t.Errorf("Expected RFC3339 timestamp, got %q", rows[2][6])
	}
}

func TestWriterEmptyFlush(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Expected no output without rows, got %q", buf.String())
	}
}

func TestSummarize(t *testing.T) {
	records := []database.StoredRecord{
		sampleRecord("r1", "class-1", database.StatusPresent, 90),
		sampleRecord("r2", "class-1", database.StatusLate, 70),
		sampleRecord("r3", "class-1", database.StatusAbsent, 0),
		sampleRecord("r4", "class-2", database.StatusPresent, 85),
	}

	summaries := Summarize(records)
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 classes, got %d", len(summaries))
	}

	s := summaries["class-1"]
	if s.Total != 3 || s.Present != 1 || s.Late != 1 || s.Absent != 1 {
		t.Errorf("Unexpected counters: %+v", s)
	}
	// Absent records carry no score and stay out of the average.
	if s.Average != 80 {
		t.Errorf("Expected average 80, got %v", s.Average)
	}

	if summaries["class-2"].Average != 85 {
		t.Errorf("Expected average 85, got %v", summaries["class-2"].Average)
	}
}
