package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/internal/inventory/expiry"
	"github.com/medsupply/medsupply-backend/internal/inventory/service"
	"github.com/medsupply/medsupply-backend/pkg/errors"
	"github.com/medsupply/medsupply-backend/pkg/httputil"
	"github.com/medsupply/medsupply-backend/pkg/logger"
)

// LotService serves classified lots
type LotService interface {
	ListLots(ctx context.Context, q service.LotQuery) ([]*service.AnnotatedLot, int64, error)
	GetLot(ctx context.Context, id string) (*service.AnnotatedLot, error)
	AdjustStock(ctx context.Context, lotID string, in service.AdjustStockInput, userID string) (*domain.StockAdjustment, error)
	ListAdjustments(ctx context.Context, lotID string) ([]domain.StockAdjustment, error)
}

// LotHandler handles lot endpoints
type LotHandler struct {
	service LotService
	logger  *logger.Logger
}

// NewLotHandler creates a new lot handler
func NewLotHandler(svc LotService, log *logger.Logger) *LotHandler {
	return &LotHandler{
		service: svc,
		logger:  log,
	}
}

// List lists lots with their expiry classification
func (h *LotHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, perPage := httputil.Pagination(r)

	q := service.LotQuery{
		SupplierID:    query.Get("supplier_id"),
		SalesCategory: domain.SalesCategory(query.Get("sales_category")),
		ProductID:     query.Get("product_id"),
		State:         expiry.State(query.Get("state")),
		Label:         query.Get("label"),
		Page:          page,
		PerPage:       perPage,
	}
	if raw := query.Get("include_exhausted"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.Error(w, errors.BadRequest("include_exhausted must be true or false"))
			return
		}
		q.IncludeExhausted = v
	}

	lots, total, err := h.service.ListLots(r.Context(), q)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, lots, httputil.NewMeta(page, perPage, total))
}

// Get gets a lot by ID
func (h *LotHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	lot, err := h.service.GetLot(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lot)
}

// Adjustments lists the stock movements of a lot
func (h *LotHandler) Adjustments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	adjustments, err := h.service.ListAdjustments(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, adjustments)
}

// AdjustStock records a sale, write-off or correction
func (h *LotHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	lotID := chi.URLParam(r, "id")

	var req struct {
		Type     string  `json:"type" validate:"required,oneof=sale write_off correction"`
		Quantity *int    `json:"quantity" validate:"required,min=0"`
		Reason   *string `json:"reason" validate:"omitempty,max=500"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	userID := httputil.GetUserID(r.Context())

	adj, err := h.service.AdjustStock(r.Context(), lotID, service.AdjustStockInput{
		Type:     domain.AdjustmentType(req.Type),
		Quantity: *req.Quantity,
		Reason:   req.Reason,
	}, userID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, adj)
}
