package handler_test

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/internal/inventory/handler"
	"github.com/medsupply/medsupply-backend/internal/inventory/service"
	"github.com/medsupply/medsupply-backend/pkg/errors"
	"github.com/medsupply/medsupply-backend/pkg/logger"
	"github.com/medsupply/medsupply-backend/pkg/permissions"
)

type stubEngine struct {
	beginSupplier string
	beginCategory domain.SalesCategory
	beginFile     string
	beginContent  string
	beginErr      error
	commitErr     error
	discarded     *domain.ImportSession
	sessions      []*domain.ImportSession
	historyScope  domain.Scope
	historyLimit  int
}

func session(status domain.ImportStatus) *domain.ImportSession {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	return &domain.ImportSession{
		ID:            "session-1",
		SupplierID:    "sup-1",
		SalesCategory: domain.SalesCategoryRegular,
		FileName:      "catalog.csv",
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (e *stubEngine) BeginImport(_ context.Context, supplierID string, category domain.SalesCategory, fileName string, r io.Reader) (*domain.ImportSession, error) {
	data, _ := io.ReadAll(r)
	e.beginSupplier, e.beginCategory, e.beginFile, e.beginContent = supplierID, category, fileName, string(data)
	if e.beginErr != nil {
		return nil, e.beginErr
	}
	s := session(domain.ImportValidating)
	s.RowsTotal, s.RowsSucceeded = 1, 1
	return s, nil
}

func (e *stubEngine) Commit(_ context.Context, id string) (*domain.ImportSession, error) {
	if e.commitErr != nil {
		reason := e.commitErr.Error()
		s := session(domain.ImportFailed)
		s.FailureReason = &reason
		return s, errors.Commit(e.commitErr, s.FileName, 1).WithDetail("session_id", id)
	}
	return session(domain.ImportDone), nil
}

func (e *stubEngine) Get(_ context.Context, id string) (*domain.ImportSession, error) {
	for _, s := range e.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, errors.NotFound("import session")
}

func (e *stubEngine) List() []*domain.ImportSession {
	return e.sessions
}

func (e *stubEngine) History(_ context.Context, scope domain.Scope, limit int) ([]*domain.ImportSession, error) {
	e.historyScope, e.historyLimit = scope, limit
	return []*domain.ImportSession{session(domain.ImportDone)}, nil
}

func (e *stubEngine) Discard(_ context.Context, id string) (*domain.ImportSession, error) {
	if id == "missing" {
		return nil, errors.NotFound("import session")
	}
	return e.discarded, nil
}

type stubLots struct {
	query    service.LotQuery
	adjusted service.AdjustStockInput
	userID   string
	adjErr   error
}

func (s *stubLots) ListLots(_ context.Context, q service.LotQuery) ([]*service.AnnotatedLot, int64, error) {
	s.query = q
	return []*service.AnnotatedLot{{Lot: &domain.Lot{ID: "lot-1", Quantity: 3}}}, 41, nil
}

func (s *stubLots) GetLot(_ context.Context, id string) (*service.AnnotatedLot, error) {
	if id != "lot-1" {
		return nil, errors.NotFound("lot")
	}
	return &service.AnnotatedLot{Lot: &domain.Lot{ID: "lot-1", Quantity: 3}}, nil
}

func (s *stubLots) AdjustStock(_ context.Context, lotID string, in service.AdjustStockInput, userID string) (*domain.StockAdjustment, error) {
	s.adjusted, s.userID = in, userID
	if s.adjErr != nil {
		return nil, s.adjErr
	}
	return &domain.StockAdjustment{ID: "adj-1", LotID: lotID, AdjustmentType: in.Type, Quantity: in.Quantity}, nil
}

func (s *stubLots) ListAdjustments(_ context.Context, lotID string) ([]domain.StockAdjustment, error) {
	return []domain.StockAdjustment{{ID: "adj-1", LotID: lotID}}, nil
}

type stubCategories struct {
	created   *service.CategoryInput
	createErr error
}

func (s *stubCategories) List(_ context.Context, includeInactive bool) ([]domain.ExpiryCategory, error) {
	out := []domain.ExpiryCategory{{ID: "cat-1", Name: "clearance", IsActive: true}}
	if includeInactive {
		out = append(out, domain.ExpiryCategory{ID: "cat-2", Name: "old"})
	}
	return out, nil
}

func (s *stubCategories) Get(_ context.Context, id string) (*domain.ExpiryCategory, error) {
	return &domain.ExpiryCategory{ID: id, Name: "clearance"}, nil
}

func (s *stubCategories) Create(_ context.Context, in service.CategoryInput) (*domain.ExpiryCategory, error) {
	s.created = &in
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &domain.ExpiryCategory{ID: "cat-9", Name: in.Name, DaysThreshold: in.DaysThreshold, IsActive: in.IsActive}, nil
}

func (s *stubCategories) Update(_ context.Context, id string, in service.CategoryInput) (*domain.ExpiryCategory, error) {
	return &domain.ExpiryCategory{ID: id, Name: in.Name}, nil
}

func (s *stubCategories) Deactivate(_ context.Context, id string) (*domain.ExpiryCategory, error) {
	return &domain.ExpiryCategory{ID: id, IsActive: false}, nil
}

type stubDashboard struct {
	refreshed bool
}

func (s *stubDashboard) Dashboard(context.Context) (*service.Dashboard, error) {
	return &service.Dashboard{AsOf: "2025-06-15", TotalLots: 4}, nil
}

func (s *stubDashboard) Refresh(context.Context) (*service.Dashboard, error) {
	s.refreshed = true
	return &service.Dashboard{AsOf: "2025-06-15", TotalLots: 5}, nil
}

type stubs struct {
	engine     *stubEngine
	lots       *stubLots
	categories *stubCategories
	dashboard  *stubDashboard
}

// newRouter mounts the API behind middlewares, defaulting to an admin user
func newRouter(s *stubs, middlewares ...func(http.Handler) http.Handler) http.Handler {
	log := logger.Nop()
	handlers := handler.Handlers{
		Import:     handler.NewImportHandler(s.engine, 1<<20, log),
		Lots:       handler.NewLotHandler(s.lots, log),
		Categories: handler.NewCategoryHandler(s.categories, log),
		Dashboard:  handler.NewDashboardHandler(s.dashboard, log),
	}

	if len(middlewares) == 0 {
		middlewares = append(middlewares, asUser("user-1", permissions.RoleAdmin))
	}

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		for _, mw := range middlewares {
			r.Use(mw)
		}
		handlers.Mount(r)
	})
	return r
}

func newStubs() *stubs {
	return &stubs{
		engine:     &stubEngine{},
		lots:       &stubLots{},
		categories: &stubCategories{},
		dashboard:  &stubDashboard{},
	}
}
