package handler

import (
	"context"
	"net/http"

	"github.com/coursehub/payout-api/internal/logger"
	"github.com/coursehub/payout-api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// BatchCreator creates and reads payout batches. Satisfied by *service.BatchManager.
type BatchCreator interface {
	CreateBatch(ctx context.Context, professorID uuid.UUID) (*service.PayoutBatch, error)
	GetBatch(ctx context.Context, batchID uuid.UUID) (*service.BatchDetail, error)
}

// PaymentConfirmer records external payouts. Satisfied by *service.PaymentRecorder.
type PaymentConfirmer interface {
	MarkAsPaid(ctx context.Context, batchID uuid.UUID, referenceNumber string) (*service.PayoutBatch, error)
}

// PayoutQuery is the read side used by payout endpoints. Satisfied by *service.QueryService.
type PayoutQuery interface {
	ListPendingSummaries(ctx context.Context) ([]service.PendingSummary, error)
	ListBatches(ctx context.Context, filter service.BatchFilter) ([]service.PayoutBatch, error)
}

// PayoutHandler handles pending summaries and the payout batch lifecycle.
type PayoutHandler struct {
	batches  BatchCreator
	payments PaymentConfirmer
	query    PayoutQuery
	log      *logger.Logger
}

// NewPayoutHandler creates a new PayoutHandler.
func NewPayoutHandler(batches BatchCreator, payments PaymentConfirmer, query PayoutQuery, log *logger.Logger) *PayoutHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &PayoutHandler{batches: batches, payments: payments, query: query, log: log}
}

// RegisterRoutes registers payout endpoints.
// Expected to be mounted at /payouts for ADMIN.
func (h *PayoutHandler) RegisterRoutes(r chi.Router) {
	r.Get("/pending", h.Pending)
	r.Post("/batches", h.CreateBatch)
	r.Get("/batches", h.ListBatches)
	r.Get("/batches/{id}", h.GetBatch)
	r.Post("/batches/{id}/pay", h.MarkAsPaid)
}

// --- Request types ---

type createBatchRequest struct {
	ProfessorID string `json:"professor_id" validate:"required,uuid"`
}

type markAsPaidRequest struct {
	// Trimmed and checked by the service, after the batch lookup.
	ReferenceNumber string `json:"reference_number"`
}

// --- Handlers ---

// Pending handles GET /payouts/pending.
func (h *PayoutHandler) Pending(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.query.ListPendingSummaries(r.Context())
	if err != nil {
		writeServiceError(w, h.log, "list pending summaries", err)
		return
	}
	writeJSON(w, http.StatusOK, toPendingSummaryResponses(summaries))
}

// CreateBatch handles POST /payouts/batches.
func (h *PayoutHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	batch, err := h.batches.CreateBatch(r.Context(), uuid.MustParse(req.ProfessorID))
	if err != nil {
		writeServiceError(w, h.log, "create payout batch", err)
		return
	}

	writeJSON(w, http.StatusCreated, toBatchResponse(*batch))
}

// ListBatches handles GET /payouts/batches.
func (h *PayoutHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	filter := service.BatchFilter{Status: r.URL.Query().Get("status")}
	if s := r.URL.Query().Get("professor_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid professor_id"})
			return
		}
		filter.ProfessorID = id
	}

	batches, err := h.query.ListBatches(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.log, "list payout batches", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResponses(batches))
}

// GetBatch handles GET /payouts/batches/{id}.
func (h *PayoutHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid batch ID"})
		return
	}

	detail, err := h.batches.GetBatch(r.Context(), batchID)
	if err != nil {
		writeServiceError(w, h.log, "get payout batch", err)
		return
	}

	writeJSON(w, http.StatusOK, batchDetailResponse{
		batchResponse: toBatchResponse(detail.Batch),
		Sales:         toSaleResponses(detail.Sales),
	})
}

// MarkAsPaid handles POST /payouts/batches/{id}/pay.
func (h *PayoutHandler) MarkAsPaid(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid batch ID"})
		return
	}

	var req markAsPaidRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	batch, err := h.payments.MarkAsPaid(r.Context(), batchID, req.ReferenceNumber)
	if err != nil {
		writeServiceError(w, h.log, "mark payout batch paid", err)
		return
	}

	writeJSON(w, http.StatusOK, toBatchResponse(*batch))
}
