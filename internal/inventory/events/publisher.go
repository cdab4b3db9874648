package events

import (
	"context"

	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/pkg/logger"
	"github.com/medsupply/medsupply-backend/pkg/messaging"
)

const source = "inventory-service"

// InventoryEventPublisher publishes inventory-related events.
// A nil publisher drops every event, which keeps RabbitMQ optional.
type InventoryEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewInventoryEventPublisher creates a new inventory event publisher
func NewInventoryEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*InventoryEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, source, log)
	if err != nil {
		return nil, err
	}

	return NewWithPublisher(publisher, log), nil
}

// NewWithPublisher wraps an existing messaging publisher
func NewWithPublisher(publisher *messaging.Publisher, log *logger.Logger) *InventoryEventPublisher {
	return &InventoryEventPublisher{
		publisher: publisher,
		logger:    log,
	}
}

// PublishImportCompleted publishes an import completed event
func (p *InventoryEventPublisher) PublishImportCompleted(ctx context.Context, s *domain.ImportSession) {
	if p == nil {
		return
	}

	data := messaging.ImportCompletedEvent{
		SessionID:       s.ID,
		SupplierID:      s.SupplierID,
		SalesCategory:   string(s.SalesCategory),
		FileName:        s.FileName,
		RowsTotal:       s.RowsTotal,
		RowsSucceeded:   s.RowsSucceeded,
		RowsFailed:      s.RowsFailed,
		SupersededLots:  s.SupersededLots,
		CreatedLots:     s.CreatedLots,
		CreatedProducts: s.CreatedProducts,
	}

	if err := p.publisher.Publish(ctx, messaging.EventImportCompleted, data); err != nil {
		p.logger.Error().Err(err).Str("session_id", s.ID).Msg("failed to publish import completed event")
	}
}

// PublishImportFailed publishes an import failed event. stage is upload or commit.
func (p *InventoryEventPublisher) PublishImportFailed(ctx context.Context, s *domain.ImportSession, stage string) {
	if p == nil {
		return
	}

	reason := ""
	if s.FailureReason != nil {
		reason = *s.FailureReason
	}

	data := messaging.ImportFailedEvent{
		SessionID:     s.ID,
		SupplierID:    s.SupplierID,
		SalesCategory: string(s.SalesCategory),
		FileName:      s.FileName,
		Stage:         stage,
		Reason:        reason,
	}

	if err := p.publisher.Publish(ctx, messaging.EventImportFailed, data); err != nil {
		p.logger.Error().Err(err).Str("session_id", s.ID).Msg("failed to publish import failed event")
	}
}

// PublishLotsSuperseded publishes a lots superseded event
func (p *InventoryEventPublisher) PublishLotsSuperseded(ctx context.Context, s *domain.ImportSession) {
	if p == nil {
		return
	}

	data := messaging.LotsSupersededEvent{
		SessionID:     s.ID,
		SupplierID:    s.SupplierID,
		SalesCategory: string(s.SalesCategory),
		Count:         s.SupersededLots,
	}

	if err := p.publisher.Publish(ctx, messaging.EventLotsSuperseded, data); err != nil {
		p.logger.Error().Err(err).Str("session_id", s.ID).Msg("failed to publish lots superseded event")
	}
}

// PublishStockAdjusted publishes a stock adjusted event
func (p *InventoryEventPublisher) PublishStockAdjusted(ctx context.Context, lot *domain.Lot, adj *domain.StockAdjustment) {
	if p == nil {
		return
	}

	reason := ""
	if adj.Reason != nil {
		reason = *adj.Reason
	}

	data := messaging.StockAdjustedEvent{
		LotID:          adj.LotID,
		ProductID:      lot.ProductID,
		AdjustmentType: string(adj.AdjustmentType),
		Adjustment:     adj.Quantity,
		NewQuantity:    adj.NewQuantity,
		PerformedBy:    adj.PerformedBy,
		Reason:         reason,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockAdjusted, data); err != nil {
		p.logger.Error().Err(err).Str("lot_id", adj.LotID).Msg("failed to publish stock adjusted event")
	}
}

// PublishExpiryCategoryChanged publishes an expiry category change. action is created, updated or deactivated.
func (p *InventoryEventPublisher) PublishExpiryCategoryChanged(ctx context.Context, cat *domain.ExpiryCategory, action string) {
	if p == nil {
		return
	}

	data := messaging.ExpiryCategoryChangedEvent{
		CategoryID: cat.ID,
		Name:       cat.Name,
		Action:     action,
		IsActive:   cat.IsActive,
	}

	if err := p.publisher.Publish(ctx, messaging.EventExpiryCategoryChanged, data); err != nil {
		p.logger.Error().Err(err).Str("category_id", cat.ID).Msg("failed to publish expiry category event")
	}
}
