package service

import (
	"context"
	"fmt"
	"time"

	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/internal/inventory/expiry"
	"github.com/medsupply/medsupply-backend/internal/inventory/repository"
	"github.com/medsupply/medsupply-backend/pkg/errors"
	"github.com/medsupply/medsupply-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// Transactor runs fn inside one database transaction carried by its context
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// LotStore is the lot persistence used by the services
type LotStore interface {
	GetByID(ctx context.Context, id string) (*domain.Lot, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Lot, error)
	List(ctx context.Context, f repository.LotFilter) ([]*domain.Lot, int64, error)
	UpdateQuantity(ctx context.Context, id string, quantity int) error
	SellableByExpiry(ctx context.Context) ([]repository.ExpiryBucket, error)
}

// AdjustmentStore records stock movements
type AdjustmentStore interface {
	Create(ctx context.Context, adj *domain.StockAdjustment) error
	ListByLot(ctx context.Context, lotID string) ([]domain.StockAdjustment, error)
}

// RuleSource lists expiry categories
type RuleSource interface {
	List(ctx context.Context, includeInactive bool) ([]domain.ExpiryCategory, error)
}

// EventPublisher receives inventory changes made outside catalog imports
type EventPublisher interface {
	PublishStockAdjusted(ctx context.Context, lot *domain.Lot, adj *domain.StockAdjustment)
	PublishExpiryCategoryChanged(ctx context.Context, cat *domain.ExpiryCategory, action string)
}

// AnnotatedLot is a lot together with its read-time classification
type AnnotatedLot struct {
	*domain.Lot
	Classification  expiry.Classification `json:"classification"`
	DiscountedPrice decimal.Decimal       `json:"discounted_price"`
	Exhausted       bool                  `json:"exhausted"`
}

// LotQuery filters a lot listing. State and Label select classifications.
type LotQuery struct {
	SupplierID       string
	SalesCategory    domain.SalesCategory
	ProductID        string
	State            expiry.State
	Label            string
	IncludeExhausted bool
	Page             int
	PerPage          int
}

// AdjustStockInput describes a manual stock movement
type AdjustStockInput struct {
	Type     domain.AdjustmentType
	Quantity int
	Reason   *string
}

// InventoryService serves classified lots and stock adjustments
type InventoryService struct {
	tx          Transactor
	lots        LotStore
	adjustments AdjustmentStore
	rules       RuleSource
	policy      expiry.Policy
	publisher   EventPublisher
	logger      *logger.Logger
	now         func() time.Time
}

// NewInventoryService creates a new inventory service
func NewInventoryService(
	tx Transactor,
	lots LotStore,
	adjustments AdjustmentStore,
	rules RuleSource,
	policy expiry.Policy,
	publisher EventPublisher,
	log *logger.Logger,
) *InventoryService {
	return &InventoryService{
		tx:          tx,
		lots:        lots,
		adjustments: adjustments,
		rules:       rules,
		policy:      policy,
		publisher:   publisher,
		logger:      log.WithComponent("inventory"),
		now:         time.Now,
	}
}

// WithClock replaces the service clock
func (s *InventoryService) WithClock(now func() time.Time) *InventoryService {
	s.now = now
	return s
}

func (s *InventoryService) classifier(ctx context.Context) (*expiry.Classifier, error) {
	rules, err := s.rules.List(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("load expiry categories: %w", err)
	}
	return expiry.NewClassifier(rules, s.policy), nil
}

func annotate(c *expiry.Classifier, lot *domain.Lot, today time.Time) *AnnotatedLot {
	cl := c.Classify(lot.ExpiryDate, today)
	return &AnnotatedLot{
		Lot:             lot,
		Classification:  cl,
		DiscountedPrice: expiry.DiscountedPrice(lot.UnitCost, cl),
		Exhausted:       lot.Exhausted(),
	}
}

// ListLots lists lots ordered by expiry date, each annotated with its classification.
// State and label filters are translated into an expiry date window so paging stays in SQL.
func (s *InventoryService) ListLots(ctx context.Context, q LotQuery) ([]*AnnotatedLot, int64, error) {
	switch q.State {
	case "", expiry.StateActive, expiry.StateDiscounted, expiry.StateExpired:
	default:
		return nil, 0, errors.BadRequest(fmt.Sprintf("unknown state %q", q.State))
	}
	if q.SalesCategory != "" && !q.SalesCategory.Valid() {
		return nil, 0, errors.BadRequest(fmt.Sprintf("unknown sales category %q", q.SalesCategory))
	}

	c, err := s.classifier(ctx)
	if err != nil {
		return nil, 0, err
	}

	window, ok := c.Window(q.State, q.Label)
	if !ok {
		return []*AnnotatedLot{}, 0, nil
	}

	page, perPage := q.Page, q.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	today := s.now()
	from, to := window.Dates(today)
	lots, total, err := s.lots.List(ctx, repository.LotFilter{
		SupplierID:       q.SupplierID,
		SalesCategory:    q.SalesCategory,
		ProductID:        q.ProductID,
		ExpiresFrom:      from,
		ExpiresTo:        to,
		IncludeExhausted: q.IncludeExhausted,
		Limit:            perPage,
		Offset:           (page - 1) * perPage,
	})
	if err != nil {
		return nil, 0, err
	}

	result := make([]*AnnotatedLot, len(lots))
	for i, lot := range lots {
		result[i] = annotate(c, lot, today)
	}
	return result, total, nil
}

// GetLot gets one annotated lot
func (s *InventoryService) GetLot(ctx context.Context, id string) (*AnnotatedLot, error) {
	lot, err := s.lots.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c, err := s.classifier(ctx)
	if err != nil {
		return nil, err
	}
	return annotate(c, lot, s.now()), nil
}

// ListAdjustments returns the stock movements of a lot, newest first
func (s *InventoryService) ListAdjustments(ctx context.Context, lotID string) ([]domain.StockAdjustment, error) {
	if _, err := s.lots.GetByID(ctx, lotID); err != nil {
		return nil, err
	}
	return s.adjustments.ListByLot(ctx, lotID)
}

// AdjustStock applies a sale, write-off or correction to a lot.
// The lot row stays locked until the adjustment is recorded.
func (s *InventoryService) AdjustStock(ctx context.Context, lotID string, in AdjustStockInput, userID string) (*domain.StockAdjustment, error) {
	var (
		lot *domain.Lot
		adj *domain.StockAdjustment
	)

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		l, err := s.lots.GetForUpdate(ctx, lotID)
		if err != nil {
			return err
		}
		if l.SupersededAt != nil {
			return errors.Conflict("lot was superseded by a catalog import and can no longer be adjusted")
		}

		next, err := in.Type.Apply(l.Quantity, in.Quantity)
		if err != nil {
			return errors.BadRequest(err.Error())
		}

		if err := s.lots.UpdateQuantity(ctx, l.ID, next); err != nil {
			return err
		}

		a := &domain.StockAdjustment{
			LotID:            l.ID,
			AdjustmentType:   in.Type,
			Quantity:         in.Quantity,
			PreviousQuantity: l.Quantity,
			NewQuantity:      next,
			Reason:           in.Reason,
			PerformedBy:      userID,
		}
		if err := s.adjustments.Create(ctx, a); err != nil {
			return err
		}

		l.Quantity = next
		lot, adj = l, a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithLot(lot.ID, userID).Info().
		Str("adjustment_type", string(adj.AdjustmentType)).
		Int("previous_quantity", adj.PreviousQuantity).
		Int("new_quantity", adj.NewQuantity).
		Msg("stock adjusted")

	if s.publisher != nil {
		s.publisher.PublishStockAdjusted(ctx, lot, adj)
	}
	return adj, nil
}
