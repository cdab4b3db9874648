package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventImportCompleted       = "inventory.import.completed"
	EventImportFailed          = "inventory.import.failed"
	EventLotsSuperseded        = "inventory.lots.superseded"
	EventStockAdjusted         = "inventory.stock.adjusted"
	EventExpiryCategoryChanged = "inventory.expiry_category.changed"
)

// Exchange names
const (
	ExchangeInventoryEvents = "inventory.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Import Events

// ImportCompletedEvent is published when a catalog commit succeeds
type ImportCompletedEvent struct {
	SessionID       string `json:"session_id"`
	SupplierID      string `json:"supplier_id"`
	SalesCategory   string `json:"sales_category"`
	FileName        string `json:"file_name"`
	RowsTotal       int    `json:"rows_total"`
	RowsSucceeded   int    `json:"rows_succeeded"`
	RowsFailed      int    `json:"rows_failed"`
	SupersededLots  int    `json:"superseded_lots"`
	CreatedLots     int    `json:"created_lots"`
	CreatedProducts int    `json:"created_products"`
}

// ImportFailedEvent is published when an upload cannot be parsed or a commit is rolled back
type ImportFailedEvent struct {
	SessionID     string `json:"session_id"`
	SupplierID    string `json:"supplier_id"`
	SalesCategory string `json:"sales_category"`
	FileName      string `json:"file_name"`
	Stage         string `json:"stage"` // upload or commit
	Reason        string `json:"reason"`
}

// LotsSupersededEvent is published after a scope's previous lots were exhausted by an import
type LotsSupersededEvent struct {
	SessionID     string `json:"session_id"`
	SupplierID    string `json:"supplier_id"`
	SalesCategory string `json:"sales_category"`
	Count         int    `json:"count"`
}

// Stock Events

// StockAdjustedEvent is published when lot stock is adjusted
type StockAdjustedEvent struct {
	LotID          string `json:"lot_id"`
	ProductID      string `json:"product_id"`
	AdjustmentType string `json:"adjustment_type"`
	Adjustment     int    `json:"adjustment"`
	NewQuantity    int    `json:"new_quantity"`
	PerformedBy    string `json:"performed_by"`
	Reason         string `json:"reason,omitempty"`
}

// Expiry Category Events

// ExpiryCategoryChangedEvent is published when an expiry rule is created, updated or deactivated
type ExpiryCategoryChangedEvent struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Action     string `json:"action"` // created, updated, deactivated
	IsActive   bool   `json:"is_active"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.New().String()
}
