package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/veriface/attendance/internal/database"
)

// UserStore is the PostgreSQL implementation of database.UserStore.
type UserStore struct {
	pool *Pool
}

// NewUserStore creates a user store backed by the pool.
func NewUserStore(pool *Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Get returns a user by ID, or database.ErrNotFound.
func (s *UserStore) Get(ctx context.Context, id string) (*database.StoredUser, error) {
	var user database.StoredUser
	var role string
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, role, department, semester, last_attendance_at, created_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID, &user.Name, &user.Email, &role, &user.Department,
		&user.Semester, &user.LastAttendanceAt, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	user.Role = database.Role(role)
	return &user, nil
}

// Upsert creates or updates a user profile.
func (s *UserStore) Upsert(ctx context.Context, user database.StoredUser) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, role, department, semester)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			department = EXCLUDED.department,
			semester = EXCLUDED.semester
	`, user.ID, user.Name, user.Email, string(user.Role), user.Department, user.Semester)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

const referenceColumns = `id, user_id, version, image, embedding, created_at`

// CurrentReference returns the newest reference version for the user, or
// nil when the user has never enrolled a face.
func (s *UserStore) CurrentReference(ctx context.Context, userID string) (*database.ReferenceImage, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+referenceColumns+`
		FROM reference_images
		WHERE user_id = $1
		ORDER BY version DESC
		LIMIT 1
	`, userID)

	ref, err := scanReference(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying current reference: %w", err)
	}
	return ref, nil
}

// ReferenceHistory returns all reference versions for the user, oldest first.
func (s *UserStore) ReferenceHistory(ctx context.Context, userID string) ([]database.ReferenceImage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+referenceColumns+`
		FROM reference_images
		WHERE user_id = $1
		ORDER BY version ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectReferences(rows)
}

// AddReference appends the next reference version and returns it.
func (s *UserStore) AddReference(ctx context.Context, ref database.ReferenceImage) (int, error) {
	var version int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO reference_images (user_id, version, image, embedding)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3
		FROM reference_images WHERE user_id = $1
		RETURNING version
	`, ref.UserID, ref.Image, vectorValue(ref.Embedding)).Scan(&version)
	if isUniqueViolation(err, "reference_images_user_version_key") {
		return 0, database.ErrConcurrentUpdate
	}
	if err != nil {
		return 0, fmt.Errorf("appending reference: %w", err)
	}
	return version, nil
}

// CurrentReferences returns the newest reference version of every enrolled
// user, for building the in-memory similarity index.
func (s *UserStore) CurrentReferences(ctx context.Context) ([]database.ReferenceImage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (user_id) ` + referenceColumns + `
		FROM reference_images
		ORDER BY user_id, version DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectReferences(rows)
}

func scanReference(row rowScanner) (*database.ReferenceImage, error) {
	var ref database.ReferenceImage
	var embedding nullVector
	err := row.Scan(&ref.ID, &ref.UserID, &ref.Version, &ref.Image, &embedding, &ref.CreatedAt)
	if err != nil {
		return nil, err
	}
	ref.Embedding = embedding.slice()
	return &ref, nil
}

func collectReferences(rows *sql.Rows) ([]database.ReferenceImage, error) {
	var refs []database.ReferenceImage
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reference image: %w", err)
		}
		refs = append(refs, *ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reference images: %w", err)
	}
	return refs, nil
}
