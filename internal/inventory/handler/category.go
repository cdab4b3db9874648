package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/internal/inventory/service"
	"github.com/medsupply/medsupply-backend/pkg/httputil"
	"github.com/medsupply/medsupply-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// CategoryService maintains expiry categories
type CategoryService interface {
	List(ctx context.Context, includeInactive bool) ([]domain.ExpiryCategory, error)
	Get(ctx context.Context, id string) (*domain.ExpiryCategory, error)
	Create(ctx context.Context, in service.CategoryInput) (*domain.ExpiryCategory, error)
	Update(ctx context.Context, id string, in service.CategoryInput) (*domain.ExpiryCategory, error)
	Deactivate(ctx context.Context, id string) (*domain.ExpiryCategory, error)
}

// CategoryHandler handles expiry category endpoints
type CategoryHandler struct {
	service CategoryService
	logger  *logger.Logger
}

// NewCategoryHandler creates a new expiry category handler
func NewCategoryHandler(svc CategoryService, log *logger.Logger) *CategoryHandler {
	return &CategoryHandler{
		service: svc,
		logger:  log,
	}
}

// categoryRequest is the full set of mutable fields. Ranges and overlaps are
// checked by the service against the whole rule set.
type categoryRequest struct {
	Name               string          `json:"name" validate:"required,notblank,max=100"`
	DaysThreshold      *int            `json:"days_threshold" validate:"required"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	SortOrder          *int            `json:"sort_order" validate:"required"`
	IsActive           *bool           `json:"is_active"`
}

func (req categoryRequest) input() service.CategoryInput {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return service.CategoryInput{
		Name:               req.Name,
		DaysThreshold:      *req.DaysThreshold,
		DiscountPercentage: req.DiscountPercentage,
		SortOrder:          *req.SortOrder,
		IsActive:           active,
	}
}

func decodeCategory(r *http.Request) (*categoryRequest, error) {
	var req categoryRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := httputil.Validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// List lists expiry categories in evaluation order
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	categories, err := h.service.List(r.Context(), includeInactive)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, categories)
}

// Get gets an expiry category by ID
func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	category, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, category)
}

// Create creates an expiry category
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCategory(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	category, err := h.service.Create(r.Context(), req.input())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, category)
}

// Update replaces an expiry category
func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := decodeCategory(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	category, err := h.service.Update(r.Context(), id, req.input())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, category)
}

// Deactivate takes an expiry category out of evaluation
func (h *CategoryHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	category, err := h.service.Deactivate(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, category)
}
