package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/veriface/attendance/internal/database"
)

// ClassStore is the PostgreSQL implementation of database.ClassStore.
type ClassStore struct {
	pool *Pool
}

// NewClassStore creates a class store backed by the pool.
func NewClassStore(pool *Pool) *ClassStore {
	return &ClassStore{pool: pool}
}

const classColumns = `id, subject_id, subject_name, department, teacher_id,
	start_time, end_time, created_at`

// Get returns a class session by ID, or database.ErrNotFound.
func (s *ClassStore) Get(ctx context.Context, id string) (*database.StoredClass, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+classColumns+`
		FROM class_sessions WHERE id = $1
	`, id)

	class, err := scanClass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying class session: %w", err)
	}
	return class, nil
}

// Create schedules a session. A subject can only have one session that has
// not ended yet; scheduling a second returns database.ErrSessionConflict.
func (s *ClassStore) Create(ctx context.Context, class database.StoredClass) error {
	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Serialize creates per subject so two concurrent callers cannot both
	// pass the conflict check. The lock releases with the transaction.
	if _, err := tx.ExecContext(ctx, `
		SELECT pg_advisory_xact_lock(hashtext($1))
	`, class.SubjectID); err != nil {
		return fmt.Errorf("locking subject schedule: %w", err)
	}

	var conflict bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM class_sessions
			WHERE subject_id = $1 AND end_time > $2
		)
	`, class.SubjectID, class.StartTime).Scan(&conflict)
	if err != nil {
		return fmt.Errorf("checking session conflict: %w", err)
	}
	if conflict {
		return database.ErrSessionConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO class_sessions (
			id, subject_id, subject_name, department, teacher_id,
			start_time, end_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		class.ID, class.SubjectID, class.SubjectName, class.Department,
		class.TeacherID, class.StartTime, class.EndTime,
	)
	if err != nil {
		return fmt.Errorf("inserting class session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing class session: %w", err)
	}
	return nil
}

// List returns sessions matching the filter, by start time.
func (s *ClassStore) List(ctx context.Context, filter database.ClassFilter) ([]database.StoredClass, error) {
	query := `SELECT ` + classColumns + ` FROM class_sessions`

	var conditions []string
	var args []any
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)))
	}
	if !filter.Day.IsZero() {
		args = append(args, filter.Day)
		conditions = append(conditions, fmt.Sprintf("start_time::date = ($%d)::date", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY start_time ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []database.StoredClass
	for rows.Next() {
		class, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning class session: %w", err)
		}
		classes = append(classes, *class)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating class sessions: %w", err)
	}
	return classes, nil
}

// Enroll registers a user for a subject. Idempotent.
func (s *ClassStore) Enroll(ctx context.Context, userID, subjectID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO enrollments (user_id, subject_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, subject_id) DO NOTHING
	`, userID, subjectID)
	if err != nil {
		return fmt.Errorf("enrolling user: %w", err)
	}
	return nil
}

// EnrolledUserIDs returns the users enrolled in a subject.
func (s *ClassStore) EnrolledUserIDs(ctx context.Context, subjectID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id FROM enrollments WHERE subject_id = $1 ORDER BY user_id
	`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning enrollment: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating enrollments: %w", err)
	}
	return ids, nil
}

func scanClass(row rowScanner) (*database.StoredClass, error) {
	var class database.StoredClass
	err := row.Scan(
		&class.ID, &class.SubjectID, &class.SubjectName, &class.Department,
		&class.TeacherID, &class.StartTime, &class.EndTime, &class.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &class, nil
}
