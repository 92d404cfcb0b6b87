package service

import (
	"time"

	"github.com/coursehub/payout-api/internal/database"
	"github.com/coursehub/payout-api/internal/enum"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale is one completed course purchase with its fixed revenue split.
type Sale struct {
	ID                uuid.UUID       `json:"id"`
	CourseID          uuid.UUID       `json:"course_id"`
	CourseTitle       string          `json:"course_title,omitempty"`
	StudentID         uuid.UUID       `json:"student_id"`
	ProfessorID       uuid.UUID       `json:"professor_id"`
	ProfessorName     string          `json:"professor_name,omitempty"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	ProfessorEarnings decimal.Decimal `json:"professor_earnings"`
	AdminEarnings     decimal.Decimal `json:"admin_earnings"`
	SaleDate          time.Time       `json:"sale_date"`
	PayoutBatchID     *uuid.UUID      `json:"payout_batch_id"`
	PayoutStatus      string          `json:"payout_status"`
}

// PayoutBatch groups a professor's claimed sales into one settlement obligation.
type PayoutBatch struct {
	ID              uuid.UUID       `json:"id"`
	ProfessorID     uuid.UUID       `json:"professor_id"`
	ProfessorName   string          `json:"professor_name"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	SalesCount      int             `json:"sales_count"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	PaidAt          *time.Time      `json:"paid_at"`
	ReferenceNumber *string         `json:"reference_number"`
}

// BatchDetail is a batch together with its member sales.
type BatchDetail struct {
	Batch PayoutBatch
	Sales []Sale
}

// PendingSummary is the live total a professor is owed from unbatched sales.
type PendingSummary struct {
	ProfessorID   uuid.UUID       `json:"professor_id"`
	ProfessorName string          `json:"professor_name"`
	TotalOwed     decimal.Decimal `json:"total_owed"`
	SalesCount    int             `json:"sales_count"`
}

// EarningsBucket aggregates sales within one reporting period.
type EarningsBucket struct {
	Start             time.Time       `json:"start"`
	SalesCount        int64           `json:"sales_count"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	ProfessorEarnings decimal.Decimal `json:"professor_earnings"`
	AdminEarnings     decimal.Decimal `json:"admin_earnings"`
}

// payoutStatusLabel derives a sale's payout status from its batch reference.
func payoutStatusLabel(batchID *uuid.UUID, batchStatus string) string {
	if batchID != nil && batchStatus == enum.BatchStatusPaid {
		return enum.PayoutStatusPaid
	}
	return enum.PayoutStatusPending
}

func saleFromDB(s database.Sale, batchStatus string) Sale {
	var batchID *uuid.UUID
	if s.PayoutBatchID.Valid {
		id := uuid.UUID(s.PayoutBatchID.Bytes)
		batchID = &id
	}
	return Sale{
		ID:                s.ID,
		CourseID:          s.CourseID,
		StudentID:         s.StudentID,
		ProfessorID:       s.ProfessorID,
		TotalPrice:        numericToDecimal(s.TotalPrice),
		ProfessorEarnings: numericToDecimal(s.ProfessorEarnings),
		AdminEarnings:     numericToDecimal(s.AdminEarnings),
		SaleDate:          s.SaleDate,
		PayoutBatchID:     batchID,
		PayoutStatus:      payoutStatusLabel(batchID, batchStatus),
	}
}

func saleFromListRow(r database.ListSalesRow) Sale {
	sale := saleFromDB(database.Sale{
		ID:                r.ID,
		CourseID:          r.CourseID,
		StudentID:         r.StudentID,
		ProfessorID:       r.ProfessorID,
		TotalPrice:        r.TotalPrice,
		ProfessorEarnings: r.ProfessorEarnings,
		AdminEarnings:     r.AdminEarnings,
		SaleDate:          r.SaleDate,
		PayoutBatchID:     r.PayoutBatchID,
	}, r.BatchStatus.String)
	sale.ProfessorName = r.ProfessorName
	sale.CourseTitle = r.CourseTitle
	return sale
}

func batchFromDB(b database.PayoutBatch, professorName string) PayoutBatch {
	return batchFromRow(database.PayoutBatchRow{
		ID:              b.ID,
		ProfessorID:     b.ProfessorID,
		TotalAmount:     b.TotalAmount,
		SalesCount:      b.SalesCount,
		Status:          b.Status,
		CreatedAt:       b.CreatedAt,
		PaidAt:          b.PaidAt,
		ReferenceNumber: b.ReferenceNumber,
		ProfessorName:   professorName,
	})
}

func batchFromRow(b database.PayoutBatchRow) PayoutBatch {
	out := PayoutBatch{
		ID:            b.ID,
		ProfessorID:   b.ProfessorID,
		ProfessorName: b.ProfessorName,
		TotalAmount:   numericToDecimal(b.TotalAmount),
		SalesCount:    int(b.SalesCount),
		Status:        string(b.Status),
		CreatedAt:     b.CreatedAt,
	}
	if b.PaidAt.Valid {
		t := b.PaidAt.Time
		out.PaidAt = &t
	}
	if b.ReferenceNumber.Valid {
		ref := b.ReferenceNumber.String
		out.ReferenceNumber = &ref
	}
	return out
}

func summaryFromRow(r database.ListPendingSummariesRow) PendingSummary {
	return PendingSummary{
		ProfessorID:   r.ProfessorID,
		ProfessorName: r.ProfessorName,
		TotalOwed:     numericToDecimal(r.TotalOwed),
		SalesCount:    int(r.SalesCount),
	}
}
