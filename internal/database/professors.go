package database

import (
	"context"

	"github.com/google/uuid"
)

const getProfessor = `-- name: GetProfessor :one
SELECT id, full_name, email, created_at FROM professors
WHERE id = $1
`

func (q *Queries) GetProfessor(ctx context.Context, id uuid.UUID) (Professor, error) {
	row := q.db.QueryRow(ctx, getProfessor, id)
	var i Professor
	err := row.Scan(
		&i.ID,
		&i.FullName,
		&i.Email,
		&i.CreatedAt,
	)
	return i, err
}

// NO KEY UPDATE serializes batch creation per professor without blocking sale
// inserts, whose foreign key checks only take KEY SHARE on the professor row.
const lockProfessorForBatch = `-- name: LockProfessorForBatch :one
SELECT id, full_name, email, created_at FROM professors
WHERE id = $1
FOR NO KEY UPDATE
`

func (q *Queries) LockProfessorForBatch(ctx context.Context, id uuid.UUID) (Professor, error) {
	row := q.db.QueryRow(ctx, lockProfessorForBatch, id)
	var i Professor
	err := row.Scan(
		&i.ID,
		&i.FullName,
		&i.Email,
		&i.CreatedAt,
	)
	return i, err
}

const setLockTimeout = `-- name: SetLockTimeout :exec
SELECT set_config('lock_timeout', $1, true)
`

// SetLockTimeout applies lock_timeout to the current transaction only.
func (q *Queries) SetLockTimeout(ctx context.Context, timeout string) error {
	_, err := q.db.Exec(ctx, setLockTimeout, timeout)
	return err
}

const createProfessor = `-- name: CreateProfessor :one
INSERT INTO professors (full_name, email)
VALUES ($1, $2)
ON CONFLICT (email) DO UPDATE SET full_name = EXCLUDED.full_name
RETURNING id, full_name, email, created_at
`

type CreateProfessorParams struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

func (q *Queries) CreateProfessor(ctx context.Context, arg CreateProfessorParams) (Professor, error) {
	row := q.db.QueryRow(ctx, createProfessor, arg.FullName, arg.Email)
	var i Professor
	err := row.Scan(
		&i.ID,
		&i.FullName,
		&i.Email,
		&i.CreatedAt,
	)
	return i, err
}

const createCourse = `-- name: CreateCourse :one
INSERT INTO courses (professor_id, title)
VALUES ($1, $2)
RETURNING id, professor_id, title, active, created_at
`

type CreateCourseParams struct {
	ProfessorID uuid.UUID `json:"professor_id"`
	Title       string    `json:"title"`
}

func (q *Queries) CreateCourse(ctx context.Context, arg CreateCourseParams) (Course, error) {
	row := q.db.QueryRow(ctx, createCourse, arg.ProfessorID, arg.Title)
	var i Course
	err := row.Scan(
		&i.ID,
		&i.ProfessorID,
		&i.Title,
		&i.Active,
		&i.CreatedAt,
	)
	return i, err
}
