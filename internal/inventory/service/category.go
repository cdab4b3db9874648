package service

import (
	"context"

	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/internal/inventory/expiry"
	"github.com/medsupply/medsupply-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// CategoryStore persists expiry categories
type CategoryStore interface {
	RuleSource
	Lock(ctx context.Context) error
	GetByID(ctx context.Context, id string) (*domain.ExpiryCategory, error)
	Create(ctx context.Context, c *domain.ExpiryCategory) error
	Update(ctx context.Context, c *domain.ExpiryCategory) error
}

// Invalidator drops derived data after the rule set changes
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// CategoryInput carries the mutable fields of an expiry category
type CategoryInput struct {
	Name               string
	DaysThreshold      int
	DiscountPercentage decimal.Decimal
	SortOrder          int
	IsActive           bool
}

func (in CategoryInput) apply(c *domain.ExpiryCategory) {
	c.Name = in.Name
	c.DaysThreshold = in.DaysThreshold
	c.DiscountPercentage = in.DiscountPercentage
	c.SortOrder = in.SortOrder
	c.IsActive = in.IsActive
}

// CategoryService maintains the expiry rule set.
// Every change is checked against the whole active set before it is saved.
type CategoryService struct {
	tx          Transactor
	store       CategoryStore
	publisher   EventPublisher
	invalidator Invalidator
	logger      *logger.Logger
}

// NewCategoryService creates a new category service. publisher and invalidator may be nil.
func NewCategoryService(tx Transactor, store CategoryStore, publisher EventPublisher, invalidator Invalidator, log *logger.Logger) *CategoryService {
	return &CategoryService{
		tx:          tx,
		store:       store,
		publisher:   publisher,
		invalidator: invalidator,
		logger:      log.WithComponent("expiry-categories"),
	}
}

// List returns the rules in evaluation order
func (s *CategoryService) List(ctx context.Context, includeInactive bool) ([]domain.ExpiryCategory, error) {
	return s.store.List(ctx, includeInactive)
}

// Get gets a rule by ID
func (s *CategoryService) Get(ctx context.Context, id string) (*domain.ExpiryCategory, error) {
	return s.store.GetByID(ctx, id)
}

// Create adds a rule
func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (*domain.ExpiryCategory, error) {
	c := &domain.ExpiryCategory{}
	in.apply(c)

	err := s.save(ctx, c, s.store.Create)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, c, "created")
	return c, nil
}

// Update replaces every mutable field of a rule
func (s *CategoryService) Update(ctx context.Context, id string, in CategoryInput) (*domain.ExpiryCategory, error) {
	var c *domain.ExpiryCategory
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.store.GetByID(ctx, id)
		if err != nil {
			return err
		}
		in.apply(existing)
		c = existing
		return s.save(ctx, c, s.store.Update)
	})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, c, "updated")
	return c, nil
}

// Deactivate takes a rule out of evaluation. Rules are never deleted.
func (s *CategoryService) Deactivate(ctx context.Context, id string) (*domain.ExpiryCategory, error) {
	var (
		c       *domain.ExpiryCategory
		changed bool
	)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.store.GetByID(ctx, id)
		if err != nil {
			return err
		}
		c = existing
		if !existing.IsActive {
			return nil
		}
		existing.IsActive = false
		changed = true
		return s.save(ctx, c, s.store.Update)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.changed(ctx, c, "deactivated")
	}
	return c, nil
}

// save validates the rule set as it would look with c saved, then persists c.
// Concurrent saves are serialized so two individually valid changes cannot overlap.
func (s *CategoryService) save(ctx context.Context, c *domain.ExpiryCategory, persist func(context.Context, *domain.ExpiryCategory) error) error {
	return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Lock(ctx); err != nil {
			return err
		}

		active, err := s.store.List(ctx, false)
		if err != nil {
			return err
		}

		candidate := make([]domain.ExpiryCategory, 0, len(active)+1)
		for _, r := range active {
			if c.ID != "" && r.ID == c.ID {
				continue
			}
			candidate = append(candidate, r)
		}
		candidate = append(candidate, *c)

		if err := expiry.ValidateRules(candidate); err != nil {
			return err
		}
		return persist(ctx, c)
	})
}

func (s *CategoryService) changed(ctx context.Context, c *domain.ExpiryCategory, action string) {
	s.logger.Info().
		Str("category_id", c.ID).
		Str("name", c.Name).
		Str("action", action).
		Msg("expiry category changed")

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	if s.publisher != nil {
		s.publisher.PublishExpiryCategoryChanged(ctx, c, action)
	}
}
