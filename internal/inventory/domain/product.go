package domain

import "time"

// Product is catalog master data referenced by lots
type Product struct {
	ID                   string    `db:"id" json:"id"`
	Name                 string    `db:"name" json:"name"`
	ManufacturerID       *string   `db:"manufacturer_id" json:"manufacturer_id,omitempty"`
	GlobalSKU            *string   `db:"global_sku" json:"global_sku,omitempty"`
	AvalaraTaxCode       *string   `db:"avalara_tax_code" json:"avalara_tax_code,omitempty"`
	RequiresLicense      bool      `db:"requires_license" json:"requires_license"`
	PrescriptionRequired bool      `db:"prescription_required" json:"prescription_required"`
	ExportRestricted     bool      `db:"export_restricted" json:"export_restricted"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// Supplier is read-only reference data
type Supplier struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	IsActive bool   `db:"is_active" json:"is_active"`
}

// Manufacturer is read-only reference data
type Manufacturer struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	IsActive bool   `db:"is_active" json:"is_active"`
}
