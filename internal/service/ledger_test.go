package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coursehub/payout-api/internal/database"
	"github.com/coursehub/payout-api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

func validSaleRequest(price string) RecordSaleRequest {
	return RecordSaleRequest{
		CourseID:    uuid.New(),
		StudentID:   uuid.New(),
		ProfessorID: uuid.New(),
		TotalPrice:  decimal.RequireFromString(price),
	}
}

func echoCreateSale(ctx context.Context, arg database.CreateSaleParams) (database.Sale, error) {
	return database.Sale{
		ID:                uuid.New(),
		CourseID:          arg.CourseID,
		StudentID:         arg.StudentID,
		ProfessorID:       arg.ProfessorID,
		TotalPrice:        arg.TotalPrice,
		ProfessorEarnings: arg.ProfessorEarnings,
		AdminEarnings:     arg.AdminEarnings,
		SaleDate:          time.Now(),
	}, nil
}

func TestRecordSale_SplitsAndStoresPending(t *testing.T) {
	var got database.CreateSaleParams
	store := &mockSaleStore{
		createSaleFn: func(ctx context.Context, arg database.CreateSaleParams) (database.Sale, error) {
			got = arg
			return echoCreateSale(ctx, arg)
		},
	}
	cache := newMemCache()
	notifier := &recordingNotifier{}
	pending := NewPendingAggregator(&mockPendingStore{}, cache, nil)
	ledger := NewSaleLedger(store, pending, notifier, nil)

	sale, err := ledger.RecordSale(context.Background(), validSaleRequest("100.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !numericEquals(got.ProfessorEarnings, "70.00") {
		t.Errorf("stored professor earnings: got %v", numericToDecimal(got.ProfessorEarnings))
	}
	if !numericEquals(got.AdminEarnings, "30.00") {
		t.Errorf("stored admin earnings: got %v", numericToDecimal(got.AdminEarnings))
	}
	if sale.PayoutBatchID != nil {
		t.Error("new sale must not belong to a batch")
	}
	if sale.PayoutStatus != enum.PayoutStatusPending {
		t.Errorf("payout status: got %q", sale.PayoutStatus)
	}
	if cache.bumps != 1 {
		t.Errorf("cache bumps: got %d, want 1", cache.bumps)
	}
	if types := notifier.types(); len(types) != 1 || types[0] != enum.EventSaleRecorded {
		t.Errorf("events: got %v", types)
	}
}

func TestRecordSale_Validation(t *testing.T) {
	calls := 0
	store := &mockSaleStore{
		createSaleFn: func(ctx context.Context, arg database.CreateSaleParams) (database.Sale, error) {
			calls++
			return echoCreateSale(ctx, arg)
		},
	}
	ledger := NewSaleLedger(store, nil, nil, nil)

	tests := []struct {
		name  string
		mut   func(*RecordSaleRequest)
		field string
	}{
		{"zero price", func(r *RecordSaleRequest) { r.TotalPrice = decimal.Zero }, "total_price"},
		{"negative price", func(r *RecordSaleRequest) { r.TotalPrice = decimal.RequireFromString("-1") }, "total_price"},
		{"sub-cent price", func(r *RecordSaleRequest) { r.TotalPrice = decimal.RequireFromString("1.001") }, "total_price"},
		{"missing course", func(r *RecordSaleRequest) { r.CourseID = uuid.Nil }, "course_id"},
		{"missing student", func(r *RecordSaleRequest) { r.StudentID = uuid.Nil }, "student_id"},
		{"missing professor", func(r *RecordSaleRequest) { r.ProfessorID = uuid.Nil }, "professor_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSaleRequest("10.00")
			tt.mut(&req)
			_, err := ledger.RecordSale(context.Background(), req)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("field: got %+v, want %s", ve, tt.field)
			}
		})
	}
	if calls != 0 {
		t.Errorf("store called %d times for invalid input", calls)
	}
}

func TestRecordSale_ForeignKeyViolations(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{"sales_professor_id_fkey", ErrProfessorNotFound},
		{"sales_course_professor_fkey", ErrCourseNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			store := &mockSaleStore{
				createSaleFn: func(ctx context.Context, arg database.CreateSaleParams) (database.Sale, error) {
					return database.Sale{}, &pgconn.PgError{Code: "23503", ConstraintName: tt.constraint}
				},
			}
			notifier := &recordingNotifier{}
			ledger := NewSaleLedger(store, nil, notifier, nil)

			_, err := ledger.RecordSale(context.Background(), validSaleRequest("10.00"))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound classification, got %v", err)
			}
			if len(notifier.types()) != 0 {
				t.Error("no event expected on failure")
			}
		})
	}
}

func TestRecordSale_StoreErrorWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	store := &mockSaleStore{
		createSaleFn: func(ctx context.Context, arg database.CreateSaleParams) (database.Sale, error) {
			return database.Sale{}, boom
		},
	}
	ledger := NewSaleLedger(store, nil, nil, nil)

	_, err := ledger.RecordSale(context.Background(), validSaleRequest("10.00"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

// pagedSaleStore serves rows ordered newest first and honours the keyset cursor.
func pagedSaleStore(rows []database.ListSalesRow, calls *int) *mockSaleStore {
	return &mockSaleStore{
		listSalesFn: func(ctx context.Context, arg database.ListSalesParams) ([]database.ListSalesRow, error) {
			*calls++
			start := 0
			if arg.AfterID.Valid {
				for i, r := range rows {
					if r.ID == uuid.UUID(arg.AfterID.Bytes) {
						start = i + 1
						break
					}
				}
			}
			end := start + int(arg.Limit)
			if end > len(rows) {
				end = len(rows)
			}
			return rows[start:end], nil
		},
	}
}

func listRows(n int) []database.ListSalesRow {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := make([]database.ListSalesRow, n)
	for i := range rows {
		rows[i] = database.ListSalesRow{
			ID:                uuid.New(),
			ProfessorID:       uuid.New(),
			TotalPrice:        makeNumeric("10.00"),
			ProfessorEarnings: makeNumeric("7.00"),
			AdminEarnings:     makeNumeric("3.00"),
			SaleDate:          base.Add(-time.Duration(i) * time.Minute),
			ProfessorName:     "Ada",
			CourseTitle:       "Go",
		}
	}
	return rows
}

func TestListSales_IteratesAllPagesInOrder(t *testing.T) {
	rows := listRows(7)
	calls := 0
	ledger := NewSaleLedger(pagedSaleStore(rows, &calls), nil, nil, nil)
	ledger.pageSize = 3

	var got []uuid.UUID
	for sale, err := range ledger.ListSales(context.Background(), SaleFilter{}) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, sale.ID)
	}

	if len(got) != len(rows) {
		t.Fatalf("sales: got %d, want %d", len(got), len(rows))
	}
	for i := range rows {
		if got[i] != rows[i].ID {
			t.Fatalf("order mismatch at %d", i)
		}
	}
	if calls != 3 {
		t.Errorf("page fetches: got %d, want 3", calls)
	}
}

func TestListSales_RestartsAndStopsEarly(t *testing.T) {
	rows := listRows(5)
	calls := 0
	ledger := NewSaleLedger(pagedSaleStore(rows, &calls), nil, nil, nil)
	ledger.pageSize = 2
	seq := ledger.ListSales(context.Background(), SaleFilter{})

	for sale, err := range seq {
		if err != nil {
			t.Fatal(err)
		}
		if sale.ID != rows[0].ID {
			t.Fatalf("first element: got %s", sale.ID)
		}
		break
	}
	if calls != 1 {
		t.Fatalf("early break should fetch one page, got %d", calls)
	}

	count := 0
	for _, err := range seq {
		if err != nil {
			t.Fatal(err)
		}
		count++
	}
	if count != len(rows) {
		t.Fatalf("restart: got %d sales, want %d", count, len(rows))
	}
}

func TestListSales_YieldsStoreError(t *testing.T) {
	boom := errors.New("timeout")
	ledger := NewSaleLedger(&mockSaleStore{
		listSalesFn: func(ctx context.Context, arg database.ListSalesParams) ([]database.ListSalesRow, error) {
			return nil, boom
		},
	}, nil, nil, nil)

	for _, err := range ledger.ListSales(context.Background(), SaleFilter{}) {
		if !errors.Is(err, boom) {
			t.Fatalf("expected store error, got %v", err)
		}
		return
	}
	t.Fatal("sequence yielded nothing")
}

func TestListSalesPage_FilterParams(t *testing.T) {
	professorID := uuid.New()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	var got database.ListSalesParams
	ledger := NewSaleLedger(&mockSaleStore{
		listSalesFn: func(ctx context.Context, arg database.ListSalesParams) ([]database.ListSalesRow, error) {
			got = arg
			return nil, nil
		},
	}, nil, nil, nil)

	cursor := &SaleCursor{SaleDate: from, ID: uuid.New()}
	_, next, err := ledger.ListSalesPage(context.Background(), SaleFilter{
		Status:      enum.PayoutStatusPaid,
		ProfessorID: professorID,
		DateFrom:    from,
		DateTo:      to,
	}, cursor, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != nil {
		t.Error("empty page should have no next cursor")
	}
	if got.Limit != maxSalesPageSize+1 {
		t.Errorf("limit: got %d, want %d", got.Limit, maxSalesPageSize+1)
	}
	if got.PayoutStatus != (pgtype.Text{String: "paid", Valid: true}) {
		t.Errorf("status: got %+v", got.PayoutStatus)
	}
	if uuid.UUID(got.ProfessorID.Bytes) != professorID {
		t.Error("professor filter not applied")
	}
	if !got.DateFrom.Time.Equal(from) || !got.DateTo.Time.Equal(to) {
		t.Error("date range not applied")
	}
	if uuid.UUID(got.AfterID.Bytes) != cursor.ID || !got.AfterSaleDate.Valid {
		t.Error("cursor not applied")
	}
}

func TestListSalesPage_InvalidFilter(t *testing.T) {
	ledger := NewSaleLedger(&mockSaleStore{}, nil, nil, nil)
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, f := range []SaleFilter{
		{Status: "refunded"},
		{DateFrom: day, DateTo: day},
	} {
		if _, _, err := ledger.ListSalesPage(context.Background(), f, nil, 10); !errors.Is(err, ErrValidation) {
			t.Errorf("filter %+v: expected ErrValidation, got %v", f, err)
		}
	}
}

func TestSaleCursor_RoundTrip(t *testing.T) {
	c := SaleCursor{SaleDate: time.Date(2026, 2, 3, 4, 5, 6, 789, time.UTC), ID: uuid.New()}
	parsed, err := ParseSaleCursor(c.Encode())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.SaleDate.Equal(c.SaleDate) || parsed.ID != c.ID {
		t.Fatalf("round trip: got %+v, want %+v", parsed, c)
	}

	for _, bad := range []string{"%%%", "bm9waXBl", "MjAyNi0wMS0wMXxub3QtYS11dWlk"} {
		if _, err := ParseSaleCursor(bad); !errors.Is(err, ErrValidation) {
			t.Errorf("cursor %q: expected ErrValidation, got %v", bad, err)
		}
	}
}
