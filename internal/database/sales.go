package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createSale = `-- name: CreateSale :one
INSERT INTO sales (course_id, student_id, professor_id, total_price, professor_earnings, admin_earnings)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, course_id, student_id, professor_id, total_price, professor_earnings, admin_earnings, sale_date, payout_batch_id
`

type CreateSaleParams struct {
	CourseID          uuid.UUID      `json:"course_id"`
	StudentID         uuid.UUID      `json:"student_id"`
	ProfessorID       uuid.UUID      `json:"professor_id"`
	TotalPrice        pgtype.Numeric `json:"total_price"`
	ProfessorEarnings pgtype.Numeric `json:"professor_earnings"`
	AdminEarnings     pgtype.Numeric `json:"admin_earnings"`
}

func (q *Queries) CreateSale(ctx context.Context, arg CreateSaleParams) (Sale, error) {
	row := q.db.QueryRow(ctx, createSale,
		arg.CourseID,
		arg.StudentID,
		arg.ProfessorID,
		arg.TotalPrice,
		arg.ProfessorEarnings,
		arg.AdminEarnings,
	)
	var i Sale
	err := row.Scan(
		&i.ID,
		&i.CourseID,
		&i.StudentID,
		&i.ProfessorID,
		&i.TotalPrice,
		&i.ProfessorEarnings,
		&i.AdminEarnings,
		&i.SaleDate,
		&i.PayoutBatchID,
	)
	return i, err
}

const listUnbatchedSalesForUpdate = `-- name: ListUnbatchedSalesForUpdate :many
SELECT id, course_id, student_id, professor_id, total_price, professor_earnings, admin_earnings, sale_date, payout_batch_id
FROM sales
WHERE professor_id = $1 AND payout_batch_id IS NULL
ORDER BY sale_date, id
FOR UPDATE
`

func (q *Queries) ListUnbatchedSalesForUpdate(ctx context.Context, professorID uuid.UUID) ([]Sale, error) {
	rows, err := q.db.Query(ctx, listUnbatchedSalesForUpdate, professorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Sale
	for rows.Next() {
		var i Sale
		if err := rows.Scan(
			&i.ID,
			&i.CourseID,
			&i.StudentID,
			&i.ProfessorID,
			&i.TotalPrice,
			&i.ProfessorEarnings,
			&i.AdminEarnings,
			&i.SaleDate,
			&i.PayoutBatchID,
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

// Only rows still unclaimed are touched; the caller compares the affected count
// against its snapshot.
const claimSales = `-- name: ClaimSales :execrows
UPDATE sales
SET payout_batch_id = $1
WHERE id = ANY($2::uuid[]) AND payout_batch_id IS NULL
`

type ClaimSalesParams struct {
	BatchID uuid.UUID   `json:"batch_id"`
	SaleIDs []uuid.UUID `json:"sale_ids"`
}

func (q *Queries) ClaimSales(ctx context.Context, arg ClaimSalesParams) (int64, error) {
	result, err := q.db.Exec(ctx, claimSales, arg.BatchID, arg.SaleIDs)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listSalesByBatch = `-- name: ListSalesByBatch :many
SELECT id, course_id, student_id, professor_id, total_price, professor_earnings, admin_earnings, sale_date, payout_batch_id
FROM sales
WHERE payout_batch_id = $1
ORDER BY sale_date DESC, id DESC
`

func (q *Queries) ListSalesByBatch(ctx context.Context, batchID uuid.UUID) ([]Sale, error) {
	rows, err := q.db.Query(ctx, listSalesByBatch, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Sale
	for rows.Next() {
		var i Sale
		if err := rows.Scan(
			&i.ID,
			&i.CourseID,
			&i.StudentID,
			&i.ProfessorID,
			&i.TotalPrice,
			&i.ProfessorEarnings,
			&i.AdminEarnings,
			&i.SaleDate,
			&i.PayoutBatchID,
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

const listSales = `-- name: ListSales :many
SELECT s.id, s.course_id, s.student_id, s.professor_id, s.total_price, s.professor_earnings, s.admin_earnings,
       s.sale_date, s.payout_batch_id, p.full_name AS professor_name, c.title AS course_title, b.status AS batch_status
FROM sales s
JOIN professors p ON p.id = s.professor_id
JOIN courses c ON c.id = s.course_id
LEFT JOIN payout_batches b ON b.id = s.payout_batch_id
WHERE ($1::uuid IS NULL OR s.professor_id = $1::uuid)
  AND ($2::text IS NULL
       OR ($2::text = 'paid' AND b.status = 'PAID')
       OR ($2::text = 'pending' AND (b.id IS NULL OR b.status = 'PENDING')))
  AND ($3::timestamptz IS NULL OR s.sale_date >= $3::timestamptz)
  AND ($4::timestamptz IS NULL OR s.sale_date < $4::timestamptz)
  AND ($5::timestamptz IS NULL OR (s.sale_date, s.id) < ($5::timestamptz, $6::uuid))
ORDER BY s.sale_date DESC, s.id DESC
LIMIT $7
`

// ListSalesParams filters are optional: an invalid pgtype value means "no filter".
// AfterSaleDate/AfterID form a keyset cursor over (sale_date, id) descending.
type ListSalesParams struct {
	ProfessorID   pgtype.UUID        `json:"professor_id"`
	PayoutStatus  pgtype.Text        `json:"payout_status"`
	DateFrom      pgtype.Timestamptz `json:"date_from"`
	DateTo        pgtype.Timestamptz `json:"date_to"`
	AfterSaleDate pgtype.Timestamptz `json:"after_sale_date"`
	AfterID       pgtype.UUID        `json:"after_id"`
	Limit         int32              `json:"limit"`
}

type ListSalesRow struct {
	ID                uuid.UUID      `json:"id"`
	CourseID          uuid.UUID      `json:"course_id"`
	StudentID         uuid.UUID      `json:"student_id"`
	ProfessorID       uuid.UUID      `json:"professor_id"`
	TotalPrice        pgtype.Numeric `json:"total_price"`
	ProfessorEarnings pgtype.Numeric `json:"professor_earnings"`
	AdminEarnings     pgtype.Numeric `json:"admin_earnings"`
	SaleDate          time.Time      `json:"sale_date"`
	PayoutBatchID     pgtype.UUID    `json:"payout_batch_id"`
	ProfessorName     string         `json:"professor_name"`
	CourseTitle       string         `json:"course_title"`
	BatchStatus       pgtype.Text    `json:"batch_status"`
}

func (q *Queries) ListSales(ctx context.Context, arg ListSalesParams) ([]ListSalesRow, error) {
	rows, err := q.db.Query(ctx, listSales,
		arg.ProfessorID,
		arg.PayoutStatus,
		arg.DateFrom,
		arg.DateTo,
		arg.AfterSaleDate,
		arg.AfterID,
		arg.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListSalesRow
	for rows.Next() {
		var i ListSalesRow
		if err := rows.Scan(
			&i.ID,
			&i.CourseID,
			&i.StudentID,
			&i.ProfessorID,
			&i.TotalPrice,
			&i.ProfessorEarnings,
			&i.AdminEarnings,
			&i.SaleDate,
			&i.PayoutBatchID,
			&i.ProfessorName,
			&i.CourseTitle,
			&i.BatchStatus,
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

const listPendingSummaries = `-- name: ListPendingSummaries :many
SELECT p.id AS professor_id, p.full_name AS professor_name,
       SUM(s.professor_earnings)::numeric(14,2) AS total_owed,
       COUNT(*) AS sales_count
FROM sales s
JOIN professors p ON p.id = s.professor_id
WHERE s.payout_batch_id IS NULL
GROUP BY p.id, p.full_name
HAVING SUM(s.professor_earnings) > 0
ORDER BY p.full_name, p.id
`

type ListPendingSummariesRow struct {
	ProfessorID   uuid.UUID      `json:"professor_id"`
	ProfessorName string         `json:"professor_name"`
	TotalOwed     pgtype.Numeric `json:"total_owed"`
	SalesCount    int64          `json:"sales_count"`
}

func (q *Queries) ListPendingSummaries(ctx context.Context) ([]ListPendingSummariesRow, error) {
	rows, err := q.db.Query(ctx, listPendingSummaries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListPendingSummariesRow
	for rows.Next() {
		var i ListPendingSummariesRow
		if err := rows.Scan(
			&i.ProfessorID,
			&i.ProfessorName,
			&i.TotalOwed,
			&i.SalesCount,
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

const getPendingSummaryForProfessor = `-- name: GetPendingSummaryForProfessor :one
SELECT p.id AS professor_id, p.full_name AS professor_name,
       COALESCE(SUM(s.professor_earnings), 0)::numeric(14,2) AS total_owed,
       COUNT(s.id) AS sales_count
FROM professors p
LEFT JOIN sales s ON s.professor_id = p.id AND s.payout_batch_id IS NULL
WHERE p.id = $1
GROUP BY p.id, p.full_name
`

func (q *Queries) GetPendingSummaryForProfessor(ctx context.Context, professorID uuid.UUID) (ListPendingSummariesRow, error) {
	row := q.db.QueryRow(ctx, getPendingSummaryForProfessor, professorID)
	var i ListPendingSummariesRow
	err := row.Scan(
		&i.ProfessorID,
		&i.ProfessorName,
		&i.TotalOwed,
		&i.SalesCount,
	)
	return i, err
}
