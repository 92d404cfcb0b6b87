package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/coursehub/payout-api/internal/logger"
	"github.com/coursehub/payout-api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleRecorder records completed purchases. Satisfied by *service.SaleLedger.
type SaleRecorder interface {
	RecordSale(ctx context.Context, req service.RecordSaleRequest) (*service.Sale, error)
}

// SaleLister reads sales back. Satisfied by *service.QueryService.
type SaleLister interface {
	ListSalesPage(ctx context.Context, filter service.SaleFilter, cursor *service.SaleCursor, limit int) ([]service.Sale, *service.SaleCursor, error)
	ExportSalesCSV(ctx context.Context, filter service.SaleFilter, w io.Writer) error
}

// SalesHandler handles sale endpoints.
type SalesHandler struct {
	recorder SaleRecorder
	lister   SaleLister
	loc      *time.Location
	log      *logger.Logger
}

// NewSalesHandler creates a new SalesHandler. Date-only filters are read in loc.
func NewSalesHandler(recorder SaleRecorder, lister SaleLister, loc *time.Location, log *logger.Logger) *SalesHandler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SalesHandler{recorder: recorder, lister: lister, loc: loc, log: log}
}

// RegisterCheckoutRoutes registers the sale intake endpoint.
// Expected to be mounted at /sales for CHECKOUT and ADMIN.
func (h *SalesHandler) RegisterCheckoutRoutes(r chi.Router) {
	r.Post("/", h.Record)
}

// RegisterRoutes registers admin sale listing endpoints.
// Expected to be mounted at /sales for ADMIN.
func (h *SalesHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/export", h.Export)
}

// --- Request types ---

type recordSaleRequest struct {
	CourseID    string `json:"course_id" validate:"required,uuid"`
	StudentID   string `json:"student_id" validate:"required,uuid"`
	ProfessorID string `json:"professor_id" validate:"required,uuid"`
	TotalPrice  string `json:"total_price" validate:"required,notblank"`
}

// --- Handlers ---

// Record handles POST /sales.
func (h *SalesHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req recordSaleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	price, err := decimal.NewFromString(req.TotalPrice)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "total_price must be a decimal amount"})
		return
	}

	sale, err := h.recorder.RecordSale(r.Context(), service.RecordSaleRequest{
		CourseID:    uuid.MustParse(req.CourseID),
		StudentID:   uuid.MustParse(req.StudentID),
		ProfessorID: uuid.MustParse(req.ProfessorID),
		TotalPrice:  price,
	})
	if err != nil {
		writeServiceError(w, h.log, "record sale", err)
		return
	}

	writeJSON(w, http.StatusCreated, toSaleResponse(*sale))
}

// List handles GET /sales with cursor pagination.
func (h *SalesHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSaleFilter(r, h.loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.listPage(w, r, filter)
}

func (h *SalesHandler) listPage(w http.ResponseWriter, r *http.Request, filter service.SaleFilter) {
	cursor, limit, err := parsePage(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	sales, next, err := h.lister.ListSalesPage(r.Context(), filter, cursor, limit)
	if err != nil {
		writeServiceError(w, h.log, "list sales", err)
		return
	}

	resp := salesPageResponse{Sales: toSaleResponses(sales)}
	if next != nil {
		resp.NextCursor = next.Encode()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Export handles GET /sales/export, streaming CSV.
func (h *SalesHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSaleFilter(r, h.loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// Surface filter and first-page errors before any CSV bytes go out.
	if _, _, err := h.lister.ListSalesPage(r.Context(), filter, nil, 1); err != nil {
		writeServiceError(w, h.log, "export sales", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="sales.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := h.lister.ExportSalesCSV(r.Context(), filter, w); err != nil {
		h.log.Error("export sales aborted mid-stream", "error", err)
	}
}
