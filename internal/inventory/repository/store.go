package repository

import (
	"context"
	"time"

	"github.com/medsupply/medsupply-backend/internal/inventory/catalog"
	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/pkg/database"
)

// CatalogStore runs catalog commits in a single PostgreSQL transaction
type CatalogStore struct {
	db     *database.DB
	lots   *LotRepository
	master *MasterDataRepository
}

// NewCatalogStore creates a catalog store over the lot and master data repositories
func NewCatalogStore(db *database.DB, lots *LotRepository, master *MasterDataRepository) *CatalogStore {
	return &CatalogStore{db: db, lots: lots, master: master}
}

// RunInTx implements catalog.Store
func (s *CatalogStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx catalog.ScopeTx) error) error {
	return s.db.WithinTransaction(ctx, func(txCtx context.Context) error {
		return fn(txCtx, s)
	})
}

// SupersedeScope takes a transaction-scoped advisory lock on the scope before
// superseding, so replicas without a shared lock still replace scopes one at a time.
func (s *CatalogStore) SupersedeScope(ctx context.Context, scope domain.Scope, sessionID string, at time.Time) (int, error) {
	if err := s.db.AdvisoryXactLock(ctx, "scope:"+scope.Key()); err != nil {
		return 0, err
	}
	return s.lots.SupersedeScope(ctx, scope, sessionID, at)
}

// FindProductBySKU implements catalog.ScopeTx
func (s *CatalogStore) FindProductBySKU(ctx context.Context, sku string, manufacturerID *string) (*domain.Product, error) {
	return s.master.FindProductBySKU(ctx, sku, manufacturerID)
}

// CreateProduct implements catalog.ScopeTx
func (s *CatalogStore) CreateProduct(ctx context.Context, p *domain.Product) error {
	return s.master.CreateProduct(ctx, p)
}

// CreateLot implements catalog.ScopeTx
func (s *CatalogStore) CreateLot(ctx context.Context, lot *domain.Lot) error {
	return s.lots.Create(ctx, lot)
}
