package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/pkg/database"
)

// AdjustmentRepository records manual stock movements
type AdjustmentRepository struct {
	db *database.DB
}

// NewAdjustmentRepository creates a new adjustment repository
func NewAdjustmentRepository(db *database.DB) *AdjustmentRepository {
	return &AdjustmentRepository{db: db}
}

// Create inserts an adjustment
func (r *AdjustmentRepository) Create(ctx context.Context, adj *domain.StockAdjustment) error {
	if adj.ID == "" {
		adj.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_adjustments (
			id, lot_id, adjustment_type, quantity, previous_quantity, new_quantity, reason, performed_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.db.Q(ctx).QueryRowxContext(ctx, query,
		adj.ID, adj.LotID, adj.AdjustmentType, adj.Quantity,
		adj.PreviousQuantity, adj.NewQuantity, adj.Reason, adj.PerformedBy,
	).Scan(&adj.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// ListByLot returns the adjustments of a lot, newest first
func (r *AdjustmentRepository) ListByLot(ctx context.Context, lotID string) ([]domain.StockAdjustment, error) {
	adjustments := []domain.StockAdjustment{}
	query := `SELECT * FROM stock_adjustments WHERE lot_id = $1 ORDER BY created_at DESC`
	if err := r.db.Q(ctx).SelectContext(ctx, &adjustments, query, lotID); err != nil {
		return nil, err
	}
	return adjustments, nil
}
