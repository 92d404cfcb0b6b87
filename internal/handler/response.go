package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/coursehub/payout-api/internal/logger"
	"github.com/coursehub/payout-api/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Use JSON tag names in error messages instead of Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// validationMessage renders the first failed rule as "<field> <problem>".
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "notblank":
		return fe.Field() + " is required"
	case "uuid", "uuid4":
		return fe.Field() + " must be a valid UUID"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fe.Field() + " is invalid"
	}
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// On failure it writes a 400 and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validationMessage(err)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// writeServiceError maps service errors to HTTP responses. Unknown errors are
// logged and hidden behind a generic 500.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, op string, err error) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Error(), "code": "validation_failed"})
	case errors.Is(err, service.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error(), "code": "validation_failed"})
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error(), "code": "not_found"})
	case errors.Is(err, service.ErrNoPendingSales):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "code": "no_pending_sales"})
	case errors.Is(err, service.ErrAlreadyPaid):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "code": "already_paid"})
	case errors.Is(err, service.ErrConcurrencyConflict):
		log.Warn(op+" conflict", "error", err)
		writeJSON(w, http.StatusConflict, map[string]string{"error": service.ErrConcurrencyConflict.Error(), "code": "concurrency_conflict"})
	default:
		log.Error(op+" failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error", "code": "internal"})
	}
}

// --- Response types ---

type saleResponse struct {
	ID                uuid.UUID  `json:"id"`
	CourseID          uuid.UUID  `json:"course_id"`
	CourseTitle       string     `json:"course_title,omitempty"`
	StudentID         uuid.UUID  `json:"student_id"`
	ProfessorID       uuid.UUID  `json:"professor_id"`
	ProfessorName     string     `json:"professor_name,omitempty"`
	TotalPrice        string     `json:"total_price"`
	ProfessorEarnings string     `json:"professor_earnings"`
	AdminEarnings     string     `json:"admin_earnings"`
	SaleDate          time.Time  `json:"sale_date"`
	PayoutBatchID     *uuid.UUID `json:"payout_batch_id"`
	PayoutStatus      string     `json:"payout_status"`
}

type batchResponse struct {
	ID              uuid.UUID  `json:"id"`
	ProfessorID     uuid.UUID  `json:"professor_id"`
	ProfessorName   string     `json:"professor_name"`
	TotalAmount     string     `json:"total_amount"`
	SalesCount      int        `json:"sales_count"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	PaidAt          *time.Time `json:"paid_at"`
	ReferenceNumber *string    `json:"reference_number"`
}

type batchDetailResponse struct {
	batchResponse
	Sales []saleResponse `json:"sales"`
}

type pendingSummaryResponse struct {
	ProfessorID   uuid.UUID `json:"professor_id"`
	ProfessorName string    `json:"professor_name"`
	TotalOwed     string    `json:"total_owed"`
	SalesCount    int       `json:"sales_count"`
}

type earningsBucketResponse struct {
	Start             string `json:"start"`
	SalesCount        int64  `json:"sales_count"`
	TotalPrice        string `json:"total_price"`
	ProfessorEarnings string `json:"professor_earnings"`
	AdminEarnings     string `json:"admin_earnings"`
}

type salesPageResponse struct {
	Sales      []saleResponse `json:"sales"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func toSaleResponse(s service.Sale) saleResponse {
	return saleResponse{
		ID:                s.ID,
		CourseID:          s.CourseID,
		CourseTitle:       s.CourseTitle,
		StudentID:         s.StudentID,
		ProfessorID:       s.ProfessorID,
		ProfessorName:     s.ProfessorName,
		TotalPrice:        s.TotalPrice.StringFixed(2),
		ProfessorEarnings: s.ProfessorEarnings.StringFixed(2),
		AdminEarnings:     s.AdminEarnings.StringFixed(2),
		SaleDate:          s.SaleDate,
		PayoutBatchID:     s.PayoutBatchID,
		PayoutStatus:      s.PayoutStatus,
	}
}

func toSaleResponses(sales []service.Sale) []saleResponse {
	resp := make([]saleResponse, len(sales))
	for i, s := range sales {
		resp[i] = toSaleResponse(s)
	}
	return resp
}

func toBatchResponse(b service.PayoutBatch) batchResponse {
	return batchResponse{
		ID:              b.ID,
		ProfessorID:     b.ProfessorID,
		ProfessorName:   b.ProfessorName,
		TotalAmount:     b.TotalAmount.StringFixed(2),
		SalesCount:      b.SalesCount,
		Status:          b.Status,
		CreatedAt:       b.CreatedAt,
		PaidAt:          b.PaidAt,
		ReferenceNumber: b.ReferenceNumber,
	}
}

func toBatchResponses(batches []service.PayoutBatch) []batchResponse {
	resp := make([]batchResponse, len(batches))
	for i, b := range batches {
		resp[i] = toBatchResponse(b)
	}
	return resp
}

func toPendingSummaryResponse(s service.PendingSummary) pendingSummaryResponse {
	return pendingSummaryResponse{
		ProfessorID:   s.ProfessorID,
		ProfessorName: s.ProfessorName,
		TotalOwed:     s.TotalOwed.StringFixed(2),
		SalesCount:    s.SalesCount,
	}
}

func toPendingSummaryResponses(summaries []service.PendingSummary) []pendingSummaryResponse {
	resp := make([]pendingSummaryResponse, len(summaries))
	for i, s := range summaries {
		resp[i] = toPendingSummaryResponse(s)
	}
	return resp
}

func toEarningsResponses(buckets []service.EarningsBucket, layout string) []earningsBucketResponse {
	resp := make([]earningsBucketResponse, len(buckets))
	for i, b := range buckets {
		resp[i] = earningsBucketResponse{
			Start:             b.Start.Format(layout),
			SalesCount:        b.SalesCount,
			TotalPrice:        b.TotalPrice.StringFixed(2),
			ProfessorEarnings: b.ProfessorEarnings.StringFixed(2),
			AdminEarnings:     b.AdminEarnings.StringFixed(2),
		}
	}
	return resp
}

// --- Query parsing ---

// parseSaleFilter reads status, professor_id, date_from and date_to. Dates are
// either RFC 3339 timestamps or YYYY-MM-DD days in loc; a day given as date_to
// includes that whole day.
func parseSaleFilter(r *http.Request, loc *time.Location) (service.SaleFilter, error) {
	q := r.URL.Query()
	f := service.SaleFilter{Status: strings.ToLower(q.Get("status"))}

	if s := q.Get("professor_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return f, fmt.Errorf("invalid professor_id")
		}
		f.ProfessorID = id
	}

	var err error
	if s := q.Get("date_from"); s != "" {
		if f.DateFrom, _, err = parseTimeParam(s, loc); err != nil {
			return f, fmt.Errorf("invalid date_from format")
		}
	}
	if s := q.Get("date_to"); s != "" {
		var dayOnly bool
		if f.DateTo, dayOnly, err = parseTimeParam(s, loc); err != nil {
			return f, fmt.Errorf("invalid date_to format")
		}
		if dayOnly {
			f.DateTo = f.DateTo.AddDate(0, 0, 1)
		}
	}
	return f, nil
}

func parseTimeParam(s string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, false, err
}

// parsePage reads limit and cursor for cursor-paginated listings.
func parsePage(r *http.Request) (*service.SaleCursor, int, error) {
	q := r.URL.Query()
	limit := 0
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			return nil, 0, fmt.Errorf("limit must be a positive integer")
		}
		limit = v
	}
	var cursor *service.SaleCursor
	if s := q.Get("cursor"); s != "" {
		c, err := service.ParseSaleCursor(s)
		if err != nil {
			return nil, 0, err
		}
		cursor = c
	}
	return cursor, limit, nil
}
