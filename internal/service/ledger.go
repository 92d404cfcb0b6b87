package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/coursehub/payout-api/internal/database"
	"github.com/coursehub/payout-api/internal/enum"
	"github.com/coursehub/payout-api/internal/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const (
	defaultSalesPageSize = 50
	maxSalesPageSize     = 200
)

// SaleStore defines the DB methods the ledger needs.
// Satisfied by *database.Queries.
type SaleStore interface {
	CreateSale(ctx context.Context, arg database.CreateSaleParams) (database.Sale, error)
	ListSales(ctx context.Context, arg database.ListSalesParams) ([]database.ListSalesRow, error)
}

// RecordSaleRequest is the input for recording a completed purchase.
type RecordSaleRequest struct {
	CourseID    uuid.UUID
	StudentID   uuid.UUID
	ProfessorID uuid.UUID
	TotalPrice  decimal.Decimal
}

// SaleFilter narrows sale listings. Zero values mean "any".
// DateTo is exclusive.
type SaleFilter struct {
	Status      string
	ProfessorID uuid.UUID
	DateFrom    time.Time
	DateTo      time.Time
}

func (f SaleFilter) validate() error {
	switch f.Status {
	case "", enum.PayoutStatusPending, enum.PayoutStatusPaid:
	default:
		return invalid("status", "must be pending or paid")
	}
	if !f.DateFrom.IsZero() && !f.DateTo.IsZero() && !f.DateFrom.Before(f.DateTo) {
		return invalid("date_to", "must be after date_from")
	}
	return nil
}

func (f SaleFilter) params(cursor *SaleCursor, limit int) database.ListSalesParams {
	p := database.ListSalesParams{Limit: int32(limit)}
	if f.ProfessorID != uuid.Nil {
		p.ProfessorID = pgtype.UUID{Bytes: f.ProfessorID, Valid: true}
	}
	if f.Status != "" {
		p.PayoutStatus = pgtype.Text{String: f.Status, Valid: true}
	}
	if !f.DateFrom.IsZero() {
		p.DateFrom = pgtype.Timestamptz{Time: f.DateFrom, Valid: true}
	}
	if !f.DateTo.IsZero() {
		p.DateTo = pgtype.Timestamptz{Time: f.DateTo, Valid: true}
	}
	if cursor != nil {
		p.AfterSaleDate = pgtype.Timestamptz{Time: cursor.SaleDate, Valid: true}
		p.AfterID = pgtype.UUID{Bytes: cursor.ID, Valid: true}
	}
	return p
}

// SaleCursor is the keyset position of the last sale on a page.
type SaleCursor struct {
	SaleDate time.Time
	ID       uuid.UUID
}

// Encode returns an opaque, URL-safe form of the cursor.
func (c SaleCursor) Encode() string {
	raw := c.SaleDate.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseSaleCursor decodes a cursor produced by Encode.
func ParseSaleCursor(s string) (*SaleCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, invalid("cursor", "is malformed")
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, invalid("cursor", "is malformed")
	}
	saleDate, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, invalid("cursor", "is malformed")
	}
	saleID, err := uuid.Parse(id)
	if err != nil {
		return nil, invalid("cursor", "is malformed")
	}
	return &SaleCursor{SaleDate: saleDate, ID: saleID}, nil
}

// SaleLedger records sales and serves them back in reverse chronological order.
type SaleLedger struct {
	store    SaleStore
	pending  *PendingAggregator
	notifier Notifier
	log      *logger.Logger
	pageSize int
}

// NewSaleLedger creates a SaleLedger. pending, notifier and log may be nil.
func NewSaleLedger(store SaleStore, pending *PendingAggregator, notifier Notifier, log *logger.Logger) *SaleLedger {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SaleLedger{
		store:    store,
		pending:  pending,
		notifier: notifier,
		log:      log.With("component", "sale_ledger"),
		pageSize: defaultSalesPageSize,
	}
}

// RecordSale splits the price 70/30 and stores the sale as pending payout.
func (l *SaleLedger) RecordSale(ctx context.Context, req RecordSaleRequest) (*Sale, error) {
	if req.CourseID == uuid.Nil {
		return nil, invalid("course_id", "is required")
	}
	if req.StudentID == uuid.Nil {
		return nil, invalid("student_id", "is required")
	}
	if req.ProfessorID == uuid.Nil {
		return nil, invalid("professor_id", "is required")
	}
	if err := validateSalePrice(req.TotalPrice); err != nil {
		return nil, err
	}

	professorEarnings, adminEarnings := SplitEarnings(req.TotalPrice)

	row, err := l.store.CreateSale(ctx, database.CreateSaleParams{
		CourseID:          req.CourseID,
		StudentID:         req.StudentID,
		ProfessorID:       req.ProfessorID,
		TotalPrice:        decimalToNumeric(req.TotalPrice),
		ProfessorEarnings: decimalToNumeric(professorEarnings),
		AdminEarnings:     decimalToNumeric(adminEarnings),
	})
	if err != nil {
		if nf := classifySaleFKViolation(err); nf != nil {
			return nil, nf
		}
		return nil, fmt.Errorf("create sale: %w", err)
	}

	sale := saleFromDB(row, "")
	l.pending.Invalidate(ctx)
	l.notifier.Notify(sale.ProfessorID, enum.EventSaleRecorded, sale)
	return &sale, nil
}

// classifySaleFKViolation maps foreign key violations on sales to not-found errors.
func classifySaleFKViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23503" {
		return nil
	}
	switch pgErr.ConstraintName {
	case "sales_professor_id_fkey":
		return ErrProfessorNotFound
	default:
		return ErrCourseNotFound
	}
}

// ListSales returns a lazy sequence over every sale matching filter, newest
// first. Rows are fetched a page at a time; each range starts from the top.
func (l *SaleLedger) ListSales(ctx context.Context, filter SaleFilter) iter.Seq2[Sale, error] {
	return func(yield func(Sale, error) bool) {
		var cursor *SaleCursor
		for {
			page, next, err := l.ListSalesPage(ctx, filter, cursor, l.pageSize)
			if err != nil {
				yield(Sale{}, err)
				return
			}
			for _, sale := range page {
				if !yield(sale, nil) {
					return
				}
			}
			if next == nil {
				return
			}
			cursor = next
		}
	}
}

// ListSalesPage returns up to limit sales after cursor and the cursor for the
// following page, or nil when this page is the last one.
func (l *SaleLedger) ListSalesPage(ctx context.Context, filter SaleFilter, cursor *SaleCursor, limit int) ([]Sale, *SaleCursor, error) {
	if err := filter.validate(); err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		limit = defaultSalesPageSize
	}
	if limit > maxSalesPageSize {
		limit = maxSalesPageSize
	}

	rows, err := l.store.ListSales(ctx, filter.params(cursor, limit+1))
	if err != nil {
		return nil, nil, fmt.Errorf("list sales: %w", err)
	}

	var next *SaleCursor
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[limit-1]
		next = &SaleCursor{SaleDate: last.SaleDate, ID: last.ID}
	}

	sales := make([]Sale, 0, len(rows))
	for _, r := range rows {
		sales = append(sales, saleFromListRow(r))
	}
	return sales, next, nil
}
