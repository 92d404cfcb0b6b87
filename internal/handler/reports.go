package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/coursehub/payout-api/internal/logger"
	"github.com/coursehub/payout-api/internal/service"
	"github.com/go-chi/chi/v5"
)

// ReportsQuery defines the reporting reads. Satisfied by *service.QueryService.
type ReportsQuery interface {
	DailyEarnings(ctx context.Context, now time.Time) ([]service.EarningsBucket, error)
	MonthlyEarnings(ctx context.Context, now time.Time) ([]service.EarningsBucket, error)
	EarningsOverview(ctx context.Context, now time.Time) (*service.EarningsOverview, error)
}

// ReportsHandler handles earnings chart endpoints.
type ReportsHandler struct {
	query ReportsQuery
	now   func() time.Time
	log   *logger.Logger
}

// NewReportsHandler creates a new ReportsHandler. now may be nil.
func NewReportsHandler(query ReportsQuery, now func() time.Time, log *logger.Logger) *ReportsHandler {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ReportsHandler{query: query, now: now, log: log}
}

// RegisterRoutes registers report endpoints.
// Expected to be mounted at /reports for ADMIN.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/earnings/daily", h.DailyEarnings)
	r.Get("/earnings/monthly", h.MonthlyEarnings)
	r.Get("/overview", h.Overview)
}

// --- Response types ---

type overviewResponse struct {
	Daily   []earningsBucketResponse `json:"daily"`
	Monthly []earningsBucketResponse `json:"monthly"`
	Pending []pendingSummaryResponse `json:"pending"`
}

// --- Handlers ---

// DailyEarnings returns per-day totals for the current month.
func (h *ReportsHandler) DailyEarnings(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.query.DailyEarnings(r.Context(), h.now())
	if err != nil {
		writeServiceError(w, h.log, "daily earnings", err)
		return
	}
	writeJSON(w, http.StatusOK, toEarningsResponses(buckets, time.DateOnly))
}

// MonthlyEarnings returns per-month totals for the current year.
func (h *ReportsHandler) MonthlyEarnings(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.query.MonthlyEarnings(r.Context(), h.now())
	if err != nil {
		writeServiceError(w, h.log, "monthly earnings", err)
		return
	}
	writeJSON(w, http.StatusOK, toEarningsResponses(buckets, "2006-01"))
}

// Overview returns both charts and the pending summaries in one response.
func (h *ReportsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.query.EarningsOverview(r.Context(), h.now())
	if err != nil {
		writeServiceError(w, h.log, "earnings overview", err)
		return
	}
	writeJSON(w, http.StatusOK, overviewResponse{
		Daily:   toEarningsResponses(overview.Daily, time.DateOnly),
		Monthly: toEarningsResponses(overview.Monthly, "2006-01"),
		Pending: toPendingSummaryResponses(overview.Pending),
	})
}
