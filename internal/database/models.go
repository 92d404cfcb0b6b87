package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type PayoutBatchStatus string

const (
	PayoutBatchStatusPENDING PayoutBatchStatus = "PENDING"
	PayoutBatchStatusPAID    PayoutBatchStatus = "PAID"
)

type Professor struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Course struct {
	ID          uuid.UUID `json:"id"`
	ProfessorID uuid.UUID `json:"professor_id"`
	Title       string    `json:"title"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type Sale struct {
	ID                uuid.UUID      `json:"id"`
	CourseID          uuid.UUID      `json:"course_id"`
	StudentID         uuid.UUID      `json:"student_id"`
	ProfessorID       uuid.UUID      `json:"professor_id"`
	TotalPrice        pgtype.Numeric `json:"total_price"`
	ProfessorEarnings pgtype.Numeric `json:"professor_earnings"`
	AdminEarnings     pgtype.Numeric `json:"admin_earnings"`
	SaleDate          time.Time      `json:"sale_date"`
	PayoutBatchID     pgtype.UUID    `json:"payout_batch_id"`
}

type PayoutBatch struct {
	ID              uuid.UUID          `json:"id"`
	ProfessorID     uuid.UUID          `json:"professor_id"`
	TotalAmount     pgtype.Numeric     `json:"total_amount"`
	SalesCount      int32              `json:"sales_count"`
	Status          PayoutBatchStatus  `json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
	PaidAt          pgtype.Timestamptz `json:"paid_at"`
	ReferenceNumber pgtype.Text        `json:"reference_number"`
}
