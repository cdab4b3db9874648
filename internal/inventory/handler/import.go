package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/pkg/errors"
	"github.com/medsupply/medsupply-backend/pkg/httputil"
	"github.com/medsupply/medsupply-backend/pkg/logger"
)

// multipart overhead allowed on top of the catalog size limit
const formOverhead = 1 << 20

// ImportEngine runs catalog import sessions
type ImportEngine interface {
	BeginImport(ctx context.Context, supplierID string, category domain.SalesCategory, fileName string, r io.Reader) (*domain.ImportSession, error)
	Commit(ctx context.Context, id string) (*domain.ImportSession, error)
	Get(ctx context.Context, id string) (*domain.ImportSession, error)
	List() []*domain.ImportSession
	History(ctx context.Context, scope domain.Scope, limit int) ([]*domain.ImportSession, error)
	Discard(ctx context.Context, id string) (*domain.ImportSession, error)
}

// ImportHandler handles catalog import endpoints
type ImportHandler struct {
	engine         ImportEngine
	maxUploadBytes int64
	logger         *logger.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(engine ImportEngine, maxUploadBytes int64, log *logger.Logger) *ImportHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &ImportHandler{
		engine:         engine,
		maxUploadBytes: maxUploadBytes,
		logger:         log,
	}
}

type beginImportRequest struct {
	SupplierID    string `validate:"required,notblank"`
	SalesCategory string `validate:"required,oneof=regular short_dated expired"`
}

// Begin uploads a catalog and validates it into a new session
func (h *ImportHandler) Begin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+formOverhead)
	if err := r.ParseMultipartForm(formOverhead); err != nil {
		httputil.Error(w, errors.BadRequest("invalid multipart upload: "+err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := beginImportRequest{
		SupplierID:    r.FormValue("supplier_id"),
		SalesCategory: r.FormValue("sales_category"),
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.Error(w, errors.Validation(map[string]string{"file": "this field is required"}))
		return
	}
	defer file.Close()

	session, err := h.engine.BeginImport(r.Context(), req.SupplierID, domain.SalesCategory(req.SalesCategory), header.Filename, file)
	if err != nil {
		httputil.ErrorWithData(w, err, sessionData(session))
		return
	}

	httputil.Created(w, session)
}

// List lists the sessions held in memory
func (h *ImportHandler) List(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, h.engine.List())
}

// History lists the acknowledged sessions of one (supplier_id, sales_category) scope
func (h *ImportHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	details := map[string]string{}
	supplierID := q.Get("supplier_id")
	if supplierID == "" {
		details["supplier_id"] = "this field is required"
	}
	category, err := domain.ParseSalesCategory(q.Get("sales_category"))
	if err != nil {
		details["sales_category"] = "must be one of: regular short_dated expired"
	}
	limit := 20
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			details["limit"] = "must be between 1 and 100"
		}
		limit = n
	}
	if len(details) > 0 {
		httputil.Error(w, errors.Validation(details))
		return
	}

	sessions, err := h.engine.History(r.Context(), domain.Scope{SupplierID: supplierID, SalesCategory: category}, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, sessions)
}

// Get gets a session by ID
func (h *ImportHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.engine.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, session)
}

// Commit replaces the session's scope with its valid rows
func (h *ImportHandler) Commit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.engine.Commit(r.Context(), id)
	if err != nil {
		httputil.ErrorWithData(w, err, sessionData(session))
		return
	}

	httputil.JSON(w, http.StatusOK, session)
}

// Delete cancels a validated session or acknowledges a finished one
func (h *ImportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.engine.Discard(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if session == nil {
		httputil.NoContent(w)
		return
	}

	httputil.JSON(w, http.StatusOK, session)
}

// sessionData keeps a missing snapshot out of error responses
func sessionData(s *domain.ImportSession) interface{} {
	if s == nil {
		return nil
	}
	return s
}
