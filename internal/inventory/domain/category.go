package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExpiryCategory is a configurable rule mapping a days-until-expiry threshold
// to a named discounted state.
type ExpiryCategory struct {
	ID                 string          `db:"id" json:"id"`
	Name               string          `db:"name" json:"name"`
	DaysThreshold      int             `db:"days_threshold" json:"days_threshold"`
	DiscountPercentage decimal.Decimal `db:"discount_percentage" json:"discount_percentage"`
	SortOrder          int             `db:"sort_order" json:"sort_order"`
	IsActive           bool            `db:"is_active" json:"is_active"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}
