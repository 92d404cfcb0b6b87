package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createPayoutBatch = `-- name: CreatePayoutBatch :one
INSERT INTO payout_batches (professor_id, total_amount, sales_count, status)
VALUES ($1, $2, $3, 'PENDING')
RETURNING id, professor_id, total_amount, sales_count, status, created_at, paid_at, reference_number
`

type CreatePayoutBatchParams struct {
	ProfessorID uuid.UUID      `json:"professor_id"`
	TotalAmount pgtype.Numeric `json:"total_amount"`
	SalesCount  int32          `json:"sales_count"`
}

func (q *Queries) CreatePayoutBatch(ctx context.Context, arg CreatePayoutBatchParams) (PayoutBatch, error) {
	row := q.db.QueryRow(ctx, createPayoutBatch, arg.ProfessorID, arg.TotalAmount, arg.SalesCount)
	var i PayoutBatch
	err := row.Scan(
		&i.ID,
		&i.ProfessorID,
		&i.TotalAmount,
		&i.SalesCount,
		&i.Status,
		&i.CreatedAt,
		&i.PaidAt,
		&i.ReferenceNumber,
	)
	return i, err
}

// PayoutBatchRow is a batch joined with its professor's display name.
type PayoutBatchRow struct {
	ID              uuid.UUID          `json:"id"`
	ProfessorID     uuid.UUID          `json:"professor_id"`
	TotalAmount     pgtype.Numeric     `json:"total_amount"`
	SalesCount      int32              `json:"sales_count"`
	Status          PayoutBatchStatus  `json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
	PaidAt          pgtype.Timestamptz `json:"paid_at"`
	ReferenceNumber pgtype.Text        `json:"reference_number"`
	ProfessorName   string             `json:"professor_name"`
}

const getPayoutBatch = `-- name: GetPayoutBatch :one
SELECT b.id, b.professor_id, b.total_amount, b.sales_count, b.status, b.created_at, b.paid_at, b.reference_number,
       p.full_name AS professor_name
FROM payout_batches b
JOIN professors p ON p.id = b.professor_id
WHERE b.id = $1
`

func (q *Queries) GetPayoutBatch(ctx context.Context, id uuid.UUID) (PayoutBatchRow, error) {
	row := q.db.QueryRow(ctx, getPayoutBatch, id)
	var i PayoutBatchRow
	err := row.Scan(
		&i.ID,
		&i.ProfessorID,
		&i.TotalAmount,
		&i.SalesCount,
		&i.Status,
		&i.CreatedAt,
		&i.PaidAt,
		&i.ReferenceNumber,
		&i.ProfessorName,
	)
	return i, err
}

// Compare-and-swap on status: returns no rows unless the batch was PENDING.
const markPayoutBatchPaid = `-- name: MarkPayoutBatchPaid :one
WITH paid AS (
    UPDATE payout_batches
    SET status = 'PAID', paid_at = now(), reference_number = $2
    WHERE id = $1 AND status = 'PENDING'
    RETURNING id, professor_id, total_amount, sales_count, status, created_at, paid_at, reference_number
)
SELECT paid.id, paid.professor_id, paid.total_amount, paid.sales_count, paid.status, paid.created_at,
       paid.paid_at, paid.reference_number, p.full_name AS professor_name
FROM paid
JOIN professors p ON p.id = paid.professor_id
`

type MarkPayoutBatchPaidParams struct {
	ID              uuid.UUID `json:"id"`
	ReferenceNumber string    `json:"reference_number"`
}

func (q *Queries) MarkPayoutBatchPaid(ctx context.Context, arg MarkPayoutBatchPaidParams) (PayoutBatchRow, error) {
	row := q.db.QueryRow(ctx, markPayoutBatchPaid, arg.ID, arg.ReferenceNumber)
	var i PayoutBatchRow
	err := row.Scan(
		&i.ID,
		&i.ProfessorID,
		&i.TotalAmount,
		&i.SalesCount,
		&i.Status,
		&i.CreatedAt,
		&i.PaidAt,
		&i.ReferenceNumber,
		&i.ProfessorName,
	)
	return i, err
}

const listPayoutBatches = `-- name: ListPayoutBatches :many
SELECT b.id, b.professor_id, b.total_amount, b.sales_count, b.status, b.created_at, b.paid_at, b.reference_number,
       p.full_name AS professor_name
FROM payout_batches b
JOIN professors p ON p.id = b.professor_id
WHERE ($1::text IS NULL OR b.status = $1::text)
  AND ($2::uuid IS NULL OR b.professor_id = $2::uuid)
ORDER BY b.created_at DESC, b.id DESC
`

type ListPayoutBatchesParams struct {
	Status      pgtype.Text `json:"status"`
	ProfessorID pgtype.UUID `json:"professor_id"`
}

func (q *Queries) ListPayoutBatches(ctx context.Context, arg ListPayoutBatchesParams) ([]PayoutBatchRow, error) {
	rows, err := q.db.Query(ctx, listPayoutBatches, arg.Status, arg.ProfessorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PayoutBatchRow
	for rows.Next() {
		var i PayoutBatchRow
		if err := rows.Scan(
			&i.ID,
			&i.ProfessorID,
			&i.TotalAmount,
			&i.SalesCount,
			&i.Status,
			&i.CreatedAt,
			&i.PaidAt,
			&i.ReferenceNumber,
			&i.ProfessorName,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
