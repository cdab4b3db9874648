package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/medsupply/medsupply-backend/internal/inventory/catalog"
	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/pkg/database"
	"github.com/medsupply/medsupply-backend/pkg/errors"
)

// MasterDataRepository reads suppliers and manufacturers and maintains products
type MasterDataRepository struct {
	db *database.DB
}

// NewMasterDataRepository creates a new master data repository
func NewMasterDataRepository(db *database.DB) *MasterDataRepository {
	return &MasterDataRepository{db: db}
}

// GetSupplier gets an active supplier by ID
func (r *MasterDataRepository) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("supplier")
	}

	var s domain.Supplier
	query := `SELECT id, name, is_active FROM suppliers WHERE id = $1 AND is_active = true`
	if err := r.db.Q(ctx).GetContext(ctx, &s, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("supplier")
		}
		return nil, err
	}
	return &s, nil
}

// ManufacturersByName resolves active manufacturers case-insensitively.
// The result maps catalog.ManufacturerKey(name) to the manufacturer ID; unknown names are absent.
func (r *MasterDataRepository) ManufacturersByName(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	if len(names) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(names))
	for _, n := range names {
		keys = append(keys, catalog.ManufacturerKey(n))
	}

	var rows []domain.Manufacturer
	query := `
		SELECT id, name, is_active FROM manufacturers
		WHERE LOWER(btrim(regexp_replace(name, '\s+', ' ', 'g'))) = ANY($1) AND is_active = true
	`
	if err := r.db.Q(ctx).SelectContext(ctx, &rows, query, pq.Array(keys)); err != nil {
		return nil, err
	}

	for _, m := range rows {
		out[catalog.ManufacturerKey(m.Name)] = m.ID
	}
	return out, nil
}

// FindProductBySKU looks a product up by global SKU and manufacturer.
// It returns nil without error when there is none.
func (r *MasterDataRepository) FindProductBySKU(ctx context.Context, sku string, manufacturerID *string) (*domain.Product, error) {
	var p domain.Product
	query := `
		SELECT id, name, manufacturer_id, global_sku, avalara_tax_code, requires_license,
		       prescription_required, export_restricted, created_at, updated_at
		FROM products
		WHERE global_sku = $1 AND manufacturer_id IS NOT DISTINCT FROM $2
	`
	if err := r.db.Q(ctx).GetContext(ctx, &p, query, sku, manufacturerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// CreateProduct inserts a product
func (r *MasterDataRepository) CreateProduct(ctx context.Context, p *domain.Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO products (
			id, name, manufacturer_id, global_sku, avalara_tax_code,
			requires_license, prescription_required, export_restricted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.Q(ctx).QueryRowxContext(ctx, query,
		p.ID, p.Name, p.ManufacturerID, p.GlobalSKU, p.AvalaraTaxCode,
		p.RequiresLicense, p.PrescriptionRequired, p.ExportRestricted,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}
