package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SalesCategory is the intake tag a supplier assigns to a catalog upload.
// It is independent of the expiry classification label.
type SalesCategory string

const (
	SalesCategoryRegular    SalesCategory = "regular"
	SalesCategoryShortDated SalesCategory = "short_dated"
	SalesCategoryExpired    SalesCategory = "expired"
)

// SalesCategories lists every accepted sales category
var SalesCategories = []SalesCategory{
	SalesCategoryRegular,
	SalesCategoryShortDated,
	SalesCategoryExpired,
}

// Valid reports whether c is a known sales category
func (c SalesCategory) Valid() bool {
	switch c {
	case SalesCategoryRegular, SalesCategoryShortDated, SalesCategoryExpired:
		return true
	}
	return false
}

// ParseSalesCategory converts s into a SalesCategory
func ParseSalesCategory(s string) (SalesCategory, error) {
	c := SalesCategory(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown sales category %q", s)
	}
	return c, nil
}

// Scope is the unit of catalog replacement: one supplier's lots in one sales category.
type Scope struct {
	SupplierID    string        `json:"supplier_id"`
	SalesCategory SalesCategory `json:"sales_category"`
}

// Key identifies the scope in lock tables
func (s Scope) Key() string {
	return s.SupplierID + ":" + string(s.SalesCategory)
}

func (s Scope) String() string {
	return fmt.Sprintf("supplier %s / %s", s.SupplierID, s.SalesCategory)
}

// Lot is a quantity of one product from one supplier sharing one expiry date.
// A lot with zero quantity is exhausted; superseded lots are exhausted and stamped.
type Lot struct {
	ID                  string          `db:"id" json:"id"`
	ProductID           string          `db:"product_id" json:"product_id"`
	ProductName         string          `db:"product_name" json:"product_name,omitempty"`
	SupplierID          string          `db:"supplier_id" json:"supplier_id"`
	Quantity            int             `db:"quantity" json:"quantity"`
	ExpiryDate          time.Time       `db:"expiry_date" json:"expiry_date"`
	UnitCost            decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	SalesCategory       SalesCategory   `db:"sales_category" json:"sales_category"`
	LotNumber           *string         `db:"lot_number" json:"lot_number,omitempty"`
	ImportSessionID     *string         `db:"import_session_id" json:"import_session_id,omitempty"`
	SupersededAt        *time.Time      `db:"superseded_at" json:"superseded_at,omitempty"`
	SupersededBySession *string         `db:"superseded_by_session" json:"superseded_by_session,omitempty"`
	SupersededQuantity  *int            `db:"superseded_quantity" json:"superseded_quantity,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// Exhausted reports whether the lot has no stock left
func (l *Lot) Exhausted() bool {
	return l.Quantity == 0
}

// Scope returns the replacement scope the lot belongs to
func (l *Lot) Scope() Scope {
	return Scope{SupplierID: l.SupplierID, SalesCategory: l.SalesCategory}
}

// AdjustmentType enumerates manual stock movements
type AdjustmentType string

const (
	AdjustmentSale       AdjustmentType = "sale"
	AdjustmentWriteOff   AdjustmentType = "write_off"
	AdjustmentCorrection AdjustmentType = "correction"
)

// Apply returns the lot quantity after applying amount.
// Sales and write-offs deduct, corrections set the absolute count.
func (t AdjustmentType) Apply(current, amount int) (int, error) {
	var next int
	switch t {
	case AdjustmentSale, AdjustmentWriteOff:
		if amount <= 0 {
			return 0, fmt.Errorf("%s quantity must be positive", t)
		}
		next = current - amount
	case AdjustmentCorrection:
		next = amount
	default:
		return 0, fmt.Errorf("unknown adjustment type %q", t)
	}
	if next < 0 {
		return 0, fmt.Errorf("insufficient stock: %d available, %d requested", current, amount)
	}
	return next, nil
}

// StockAdjustment records a manual quantity change on a lot
type StockAdjustment struct {
	ID               string         `db:"id" json:"id"`
	LotID            string         `db:"lot_id" json:"lot_id"`
	AdjustmentType   AdjustmentType `db:"adjustment_type" json:"adjustment_type"`
	Quantity         int            `db:"quantity" json:"quantity"`
	PreviousQuantity int            `db:"previous_quantity" json:"previous_quantity"`
	NewQuantity      int            `db:"new_quantity" json:"new_quantity"`
	Reason           *string        `db:"reason" json:"reason,omitempty"`
	PerformedBy      string         `db:"performed_by" json:"performed_by"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}
