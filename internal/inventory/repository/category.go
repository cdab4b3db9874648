package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/pkg/database"
	"github.com/medsupply/medsupply-backend/pkg/errors"
)

const expiryCategoryLock = "expiry_categories"

// ExpiryCategoryRepository handles expiry rule persistence
type ExpiryCategoryRepository struct {
	db *database.DB
}

// NewExpiryCategoryRepository creates a new expiry category repository
func NewExpiryCategoryRepository(db *database.DB) *ExpiryCategoryRepository {
	return &ExpiryCategoryRepository{db: db}
}

// Lock serializes rule set changes for the rest of the current transaction
func (r *ExpiryCategoryRepository) Lock(ctx context.Context) error {
	return r.db.AdvisoryXactLock(ctx, expiryCategoryLock)
}

// List returns the rules in evaluation order
func (r *ExpiryCategoryRepository) List(ctx context.Context, includeInactive bool) ([]domain.ExpiryCategory, error) {
	query := `SELECT * FROM expiry_categories`
	if !includeInactive {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY sort_order, days_threshold, id`

	categories := []domain.ExpiryCategory{}
	if err := r.db.Q(ctx).SelectContext(ctx, &categories, query); err != nil {
		return nil, err
	}
	return categories, nil
}

// GetByID gets a rule by ID
func (r *ExpiryCategoryRepository) GetByID(ctx context.Context, id string) (*domain.ExpiryCategory, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("expiry category")
	}

	var c domain.ExpiryCategory
	if err := r.db.Q(ctx).GetContext(ctx, &c, `SELECT * FROM expiry_categories WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("expiry category")
		}
		return nil, err
	}
	return &c, nil
}

// Create inserts a rule
func (r *ExpiryCategoryRepository) Create(ctx context.Context, c *domain.ExpiryCategory) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	query := `
		INSERT INTO expiry_categories (id, name, days_threshold, discount_percentage, sort_order, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.Q(ctx).QueryRowxContext(ctx, query,
		c.ID, c.Name, c.DaysThreshold, c.DiscountPercentage, c.SortOrder, c.IsActive,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// Update saves every mutable field of a rule
func (r *ExpiryCategoryRepository) Update(ctx context.Context, c *domain.ExpiryCategory) error {
	query := `
		UPDATE expiry_categories SET
			name = $2, days_threshold = $3, discount_percentage = $4,
			sort_order = $5, is_active = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.Q(ctx).QueryRowxContext(ctx, query,
		c.ID, c.Name, c.DaysThreshold, c.DiscountPercentage, c.SortOrder, c.IsActive,
	).Scan(&c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return errors.NotFound("expiry category")
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}
