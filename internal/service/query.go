package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/coursehub/payout-api/internal/database"
	"github.com/coursehub/payout-api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/sync/errgroup"
)

// QueryStore defines the read-only DB methods behind reporting.
type QueryStore interface {
	ListPayoutBatches(ctx context.Context, arg database.ListPayoutBatchesParams) ([]database.PayoutBatchRow, error)
	GetEarningsBuckets(ctx context.Context, arg database.GetEarningsBucketsParams) ([]database.GetEarningsBucketsRow, error)
}

// BatchFilter narrows batch listings. Zero values mean "any".
type BatchFilter struct {
	Status      string
	ProfessorID uuid.UUID
}

// EarningsOverview bundles the dashboard figures fetched together.
type EarningsOverview struct {
	Daily   []EarningsBucket `json:"daily"`
	Monthly []EarningsBucket `json:"monthly"`
	Pending []PendingSummary `json:"pending"`
}

// QueryService is the read side for dashboards and reports.
type QueryService struct {
	store   QueryStore
	ledger  *SaleLedger
	pending *PendingAggregator
	loc     *time.Location
}

// NewQueryService creates a QueryService that buckets earnings in loc.
func NewQueryService(store QueryStore, ledger *SaleLedger, pending *PendingAggregator, loc *time.Location) *QueryService {
	if loc == nil {
		loc = time.UTC
	}
	return &QueryService{store: store, ledger: ledger, pending: pending, loc: loc}
}

// ListPendingSummaries returns what each professor is currently owed.
func (q *QueryService) ListPendingSummaries(ctx context.Context) ([]PendingSummary, error) {
	return q.pending.ComputePendingSummary(ctx)
}

// PendingSummaryFor returns one professor's pending total.
func (q *QueryService) PendingSummaryFor(ctx context.Context, professorID uuid.UUID) (*PendingSummary, error) {
	return q.pending.PendingSummaryFor(ctx, professorID)
}

// ListBatches returns batches newest first. Status matching is case-insensitive.
func (q *QueryService) ListBatches(ctx context.Context, filter BatchFilter) ([]PayoutBatch, error) {
	var params database.ListPayoutBatchesParams
	if filter.Status != "" {
		status := strings.ToUpper(filter.Status)
		if status != enum.BatchStatusPending && status != enum.BatchStatusPaid {
			return nil, invalid("status", "must be PENDING or PAID")
		}
		params.Status = pgtype.Text{String: status, Valid: true}
	}
	if filter.ProfessorID != uuid.Nil {
		params.ProfessorID = pgtype.UUID{Bytes: filter.ProfessorID, Valid: true}
	}

	rows, err := q.store.ListPayoutBatches(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list payout batches: %w", err)
	}
	out := make([]PayoutBatch, 0, len(rows))
	for _, r := range rows {
		out = append(out, batchFromRow(r))
	}
	return out, nil
}

// ListSales returns every matching sale, newest first.
func (q *QueryService) ListSales(ctx context.Context, filter SaleFilter) iter.Seq2[Sale, error] {
	return q.ledger.ListSales(ctx, filter)
}

// ListSalesPage returns one cursor page of matching sales.
func (q *QueryService) ListSalesPage(ctx context.Context, filter SaleFilter, cursor *SaleCursor, limit int) ([]Sale, *SaleCursor, error) {
	return q.ledger.ListSalesPage(ctx, filter, cursor, limit)
}

// DailyEarnings returns one bucket per day of now's month, zero-filled.
func (q *QueryService) DailyEarnings(ctx context.Context, now time.Time) ([]EarningsBucket, error) {
	local := now.In(q.loc)
	from := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, q.loc)
	to := from.AddDate(0, 1, 0)
	return q.earnings(ctx, from, to, "day", func(t time.Time) time.Time { return t.AddDate(0, 0, 1) })
}

// MonthlyEarnings returns one bucket per month of now's year, zero-filled.
func (q *QueryService) MonthlyEarnings(ctx context.Context, now time.Time) ([]EarningsBucket, error) {
	local := now.In(q.loc)
	from := time.Date(local.Year(), time.January, 1, 0, 0, 0, 0, q.loc)
	to := from.AddDate(1, 0, 0)
	return q.earnings(ctx, from, to, "month", func(t time.Time) time.Time { return t.AddDate(0, 1, 0) })
}

// EarningsOverview fetches daily, monthly and pending figures concurrently.
func (q *QueryService) EarningsOverview(ctx context.Context, now time.Time) (*EarningsOverview, error) {
	var out EarningsOverview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Daily, err = q.DailyEarnings(gctx, now)
		return err
	})
	g.Go(func() error {
		var err error
		out.Monthly, err = q.MonthlyEarnings(gctx, now)
		return err
	})
	g.Go(func() error {
		var err error
		out.Pending, err = q.ListPendingSummaries(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (q *QueryService) earnings(ctx context.Context, from, to time.Time, unit string, step func(time.Time) time.Time) ([]EarningsBucket, error) {
	rows, err := q.store.GetEarningsBuckets(ctx, database.GetEarningsBucketsParams{
		From:     from,
		To:       to,
		Unit:     unit,
		TimeZone: q.loc.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("get earnings buckets: %w", err)
	}

	// Buckets come back as local wall-clock timestamps without a zone.
	byDay := make(map[string]database.GetEarningsBucketsRow, len(rows))
	for _, r := range rows {
		byDay[r.Bucket.Format(time.DateOnly)] = r
	}

	var out []EarningsBucket
	for start := from; start.Before(to); start = step(start) {
		bucket := EarningsBucket{Start: start}
		if r, ok := byDay[start.Format(time.DateOnly)]; ok {
			bucket.SalesCount = r.SalesCount
			bucket.TotalPrice = numericToDecimal(r.TotalPrice)
			bucket.ProfessorEarnings = numericToDecimal(r.ProfessorEarnings)
			bucket.AdminEarnings = numericToDecimal(r.AdminEarnings)
		}
		out = append(out, bucket)
	}
	return out, nil
}

var salesCSVHeader = []string{
	"sale_id", "sale_date", "professor_id", "professor_name", "course_id", "course_title",
	"student_id", "total_price", "professor_earnings", "admin_earnings", "payout_batch_id", "payout_status",
}

// ExportSalesCSV streams every matching sale to w as CSV, newest first.
func (q *QueryService) ExportSalesCSV(ctx context.Context, filter SaleFilter, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(salesCSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for sale, err := range q.ListSales(ctx, filter) {
		if err != nil {
			return err
		}
		batchID := ""
		if sale.PayoutBatchID != nil {
			batchID = sale.PayoutBatchID.String()
		}
		if err := cw.Write([]string{
			sale.ID.String(),
			sale.SaleDate.In(q.loc).Format(time.RFC3339),
			sale.ProfessorID.String(),
			sale.ProfessorName,
			sale.CourseID.String(),
			sale.CourseTitle,
			sale.StudentID.String(),
			sale.TotalPrice.StringFixed(2),
			sale.ProfessorEarnings.StringFixed(2),
			sale.AdminEarnings.StringFixed(2),
			batchID,
			sale.PayoutStatus,
		}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
