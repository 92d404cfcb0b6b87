package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/coursehub/payout-api/internal/logger"
	"github.com/coursehub/payout-api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ProfessorQuery is the read side a professor may see of their own payouts.
// Satisfied by *service.QueryService.
type ProfessorQuery interface {
	PendingSummaryFor(ctx context.Context, professorID uuid.UUID) (*service.PendingSummary, error)
	ListSalesPage(ctx context.Context, filter service.SaleFilter, cursor *service.SaleCursor, limit int) ([]service.Sale, *service.SaleCursor, error)
	ListBatches(ctx context.Context, filter service.BatchFilter) ([]service.PayoutBatch, error)
}

// ProfessorHandler serves professor self-service payout views.
type ProfessorHandler struct {
	query ProfessorQuery
	loc   *time.Location
	log   *logger.Logger
}

// NewProfessorHandler creates a new ProfessorHandler.
func NewProfessorHandler(query ProfessorQuery, loc *time.Location, log *logger.Logger) *ProfessorHandler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ProfessorHandler{query: query, loc: loc, log: log}
}

// RegisterRoutes registers professor-scoped endpoints.
// Expected to be mounted inside /professors/{pid} behind RequireProfessorScope.
func (h *ProfessorHandler) RegisterRoutes(r chi.Router) {
	r.Get("/pending", h.Pending)
	r.Get("/sales", h.Sales)
	r.Get("/batches", h.Batches)
}

func professorIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	pid, err := uuid.Parse(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid professor ID"})
		return uuid.Nil, false
	}
	return pid, true
}

// Pending handles GET /professors/{pid}/pending.
func (h *ProfessorHandler) Pending(w http.ResponseWriter, r *http.Request) {
	pid, ok := professorIDParam(w, r)
	if !ok {
		return
	}

	summary, err := h.query.PendingSummaryFor(r.Context(), pid)
	if err != nil {
		writeServiceError(w, h.log, "professor pending summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toPendingSummaryResponse(*summary))
}

// Sales handles GET /professors/{pid}/sales.
func (h *ProfessorHandler) Sales(w http.ResponseWriter, r *http.Request) {
	pid, ok := professorIDParam(w, r)
	if !ok {
		return
	}

	filter, err := parseSaleFilter(r, h.loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	filter.ProfessorID = pid

	cursor, limit, err := parsePage(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	sales, next, err := h.query.ListSalesPage(r.Context(), filter, cursor, limit)
	if err != nil {
		writeServiceError(w, h.log, "professor sales", err)
		return
	}

	resp := salesPageResponse{Sales: toSaleResponses(sales)}
	if next != nil {
		resp.NextCursor = next.Encode()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Batches handles GET /professors/{pid}/batches.
func (h *ProfessorHandler) Batches(w http.ResponseWriter, r *http.Request) {
	pid, ok := professorIDParam(w, r)
	if !ok {
		return
	}

	batches, err := h.query.ListBatches(r.Context(), service.BatchFilter{
		Status:      r.URL.Query().Get("status"),
		ProfessorID: pid,
	})
	if err != nil {
		writeServiceError(w, h.log, "professor batches", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResponses(batches))
}
