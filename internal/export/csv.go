// Package export renders attendance data into flat files for
// record-keeping and spreadsheet import.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/veriface/attendance/internal/database"
)

// csvHeader is the fixed column order of the record export.
var csvHeader = []string{
	"record_id", "user_id", "class_id", "subject_id", "subject_name",
	"teacher_id", "marked_at", "status", "match_percentage",
	"latitude", "longitude", "location_name", "verified",
}

// Writer streams attendance records as CSV rows.
type Writer struct {
	csv     *csv.Writer
	started bool
}

// NewWriter wraps an io.Writer as a CSV record exporter.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// Write appends one record, emitting the header before the first row.
func (w *Writer) Write(record database.StoredRecord) error {
	if !w.started {
		if err := w.csv.Write(csvHeader); err != nil {
			return fmt.Errorf("writing CSV header: %w", err)
		}
		w.started = true
	}

	row := []string{
		record.ID,
		record.UserID,
		record.ClassID,
		record.SubjectID,
		record.SubjectName,
		record.TeacherID,
		record.Timestamp.UTC().Format(time.RFC3339),
		string(record.Status),
		strconv.FormatFloat(record.MatchPercentage, 'f', 2, 64),
		strconv.FormatFloat(record.Latitude, 'f', -1, 64),
		strconv.FormatFloat(record.Longitude, 'f', -1, 64),
		record.LocationName,
		strconv.FormatBool(record.Verified),
	}
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("writing CSV row: %w", err)
	}
	return nil
}

// Flush drains buffered rows. Must be called once after the last Write.
func (w *Writer) Flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}
	return nil
}

// Summary aggregates one class session's records.
type Summary struct {
	ClassID string
	Total   int
	Present int
	Late    int
	Absent  int
	Average float64 // mean match percentage over Present and Late records
}

// Summarize computes per-class counters from a record listing.
func Summarize(records []database.StoredRecord) map[string]*Summary {
	summaries := make(map[string]*Summary)
	matchTotals := make(map[string]float64)
	matchCounts := make(map[string]int)

	for _, record := range records {
		s, ok := summaries[record.ClassID]
		if !ok {
			s = &Summary{ClassID: record.ClassID}
			summaries[record.ClassID] = s
		}
		s.Total++
		switch record.Status {
		case database.StatusPresent:
			s.Present++
		case database.StatusLate:
			s.Late++
		case database.StatusAbsent:
			s.Absent++
		}
		if record.Status != database.StatusAbsent {
			matchTotals[record.ClassID] += record.MatchPercentage
			matchCounts[record.ClassID]++
		}
	}

	for classID, s := range summaries {
		if matchCounts[classID] > 0 {
			s.Average = matchTotals[classID] / float64(matchCounts[classID])
		}
	}
	return summaries
}
