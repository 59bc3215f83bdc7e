package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/veriface/attendance/internal/database"
)

// RecordStore is the PostgreSQL implementation of database.RecordStore.
type RecordStore struct {
	pool *Pool
}

// NewRecordStore creates a record store backed by the pool.
func NewRecordStore(pool *Pool) *RecordStore {
	return &RecordStore{pool: pool}
}

const recordColumns = `id, user_id, class_id, subject_id, subject_name, teacher_id,
	marked_at, image, latitude, longitude, location_name, match_percentage,
	status, verified, created_at`

// Exists reports whether a record exists for (userID, classID). This is a
// fast-path check only; the unique constraint is the real guard.
func (s *RecordStore) Exists(ctx context.Context, userID, classID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance_records WHERE user_id = $1 AND class_id = $2
		)
	`, userID, classID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking record existence: %w", err)
	}
	return exists, nil
}

// Create inserts the record, appends the next reference image version and
// bumps the user's last-attendance timestamp in a single transaction.
func (s *RecordStore) Create(ctx context.Context, record database.StoredRecord, newReference database.ReferenceImage) (string, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if err := insertRecord(ctx, tx, record); err != nil {
		return "", err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reference_images (user_id, version, image, embedding)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3
		FROM reference_images WHERE user_id = $1
	`, newReference.UserID, newReference.Image, vectorValue(newReference.Embedding))
	if isUniqueViolation(err, "reference_images_user_version_key") {
		// A concurrent mark in another class claimed this version number.
		return "", database.ErrConcurrentUpdate
	}
	if err != nil {
		return "", fmt.Errorf("appending reference version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users SET last_attendance_at = $2 WHERE id = $1
	`, record.UserID, record.Timestamp)
	if err != nil {
		return "", fmt.Errorf("updating last attendance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing attendance record: %w", err)
	}

	return record.ID, nil
}

// CreateAbsence inserts an Absent record without touching reference images.
func (s *RecordStore) CreateAbsence(ctx context.Context, record database.StoredRecord) (string, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if err := insertRecord(ctx, tx, record); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing absence record: %w", err)
	}

	return record.ID, nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, record database.StoredRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_records (
			id, user_id, class_id, subject_id, subject_name, teacher_id,
			marked_at, image, latitude, longitude, location_name,
			match_percentage, status, verified
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		record.ID, record.UserID, record.ClassID, record.SubjectID,
		record.SubjectName, record.TeacherID, record.Timestamp, record.Image,
		record.Latitude, record.Longitude, record.LocationName,
		record.MatchPercentage, string(record.Status), record.Verified,
	)
	if isUniqueViolation(err, "attendance_records_user_class_key") {
		return database.ErrDuplicateRecord
	}
	if err != nil {
		return fmt.Errorf("inserting attendance record: %w", err)
	}
	return nil
}

// Get returns a record by ID, or database.ErrNotFound.
func (s *RecordStore) Get(ctx context.Context, id string) (*database.StoredRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records WHERE id = $1
	`, id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying attendance record: %w", err)
	}
	return record, nil
}

// List returns records matching the filter, newest first.
func (s *RecordStore) List(ctx context.Context, filter database.RecordFilter) ([]database.StoredRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records`

	var conditions []string
	var args []any
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY marked_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []database.StoredRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning attendance record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attendance records: %w", err)
	}
	return records, nil
}

// Override mutates status and verified on an existing record.
func (s *RecordStore) Override(ctx context.Context, id string, status database.Status, verified bool) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE attendance_records SET status = $2, verified = $3 WHERE id = $1
	`, id, string(status), verified)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking override result: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*database.StoredRecord, error) {
	var record database.StoredRecord
	var status string
	err := row.Scan(
		&record.ID, &record.UserID, &record.ClassID, &record.SubjectID,
		&record.SubjectName, &record.TeacherID, &record.Timestamp,
		&record.Image, &record.Latitude, &record.Longitude,
		&record.LocationName, &record.MatchPercentage, &status,
		&record.Verified, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Status = database.Status(status)
	return &record, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" && pqErr.Constraint == constraint
}
