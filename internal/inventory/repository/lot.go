package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/pkg/database"
	"github.com/medsupply/medsupply-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

const lotColumns = `
	l.id, l.product_id, p.name AS product_name, l.supplier_id, l.quantity, l.expiry_date,
	l.unit_cost, l.sales_category, l.lot_number, l.import_session_id, l.superseded_at,
	l.superseded_by_session, l.superseded_quantity, l.created_at, l.updated_at
`

// LotFilter narrows a lot listing. Expiry bounds are inclusive.
type LotFilter struct {
	SupplierID       string
	SalesCategory    domain.SalesCategory
	ProductID        string
	ExpiresFrom      *time.Time
	ExpiresTo        *time.Time
	IncludeExhausted bool
	Limit            int
	Offset           int
}

// ExpiryBucket aggregates the sellable lots sharing one expiry date
type ExpiryBucket struct {
	ExpiryDate time.Time       `db:"expiry_date"`
	Lots       int             `db:"lots"`
	Units      int             `db:"units"`
	Value      decimal.Decimal `db:"value"`
}

// LotRepository handles lot persistence
type LotRepository struct {
	db *database.DB
}

// NewLotRepository creates a new lot repository
func NewLotRepository(db *database.DB) *LotRepository {
	return &LotRepository{db: db}
}

// Create inserts a lot
func (r *LotRepository) Create(ctx context.Context, lot *domain.Lot) error {
	if lot.ID == "" {
		lot.ID = uuid.New().String()
	}

	query := `
		INSERT INTO lots (
			id, product_id, supplier_id, quantity, expiry_date, unit_cost,
			sales_category, lot_number, import_session_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.Q(ctx).QueryRowxContext(ctx, query,
		lot.ID, lot.ProductID, lot.SupplierID, lot.Quantity, lot.ExpiryDate,
		lot.UnitCost, lot.SalesCategory, lot.LotNumber, lot.ImportSessionID,
	).Scan(&lot.CreatedAt, &lot.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// SupersedeScope exhausts every sellable lot of scope, remembering the previous quantity.
// It returns the number of lots superseded.
func (r *LotRepository) SupersedeScope(ctx context.Context, scope domain.Scope, sessionID string, at time.Time) (int, error) {
	query := `
		UPDATE lots SET
			superseded_quantity = quantity,
			quantity = 0,
			superseded_at = $3,
			superseded_by_session = $4,
			updated_at = $3
		WHERE supplier_id = $1 AND sales_category = $2 AND quantity > 0
	`

	result, err := r.db.Q(ctx).ExecContext(ctx, query, scope.SupplierID, scope.SalesCategory, at, sessionID)
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// GetByID gets a lot by ID
func (r *LotRepository) GetByID(ctx context.Context, id string) (*domain.Lot, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate gets a lot and locks its row until the surrounding transaction ends
func (r *LotRepository) GetForUpdate(ctx context.Context, id string) (*domain.Lot, error) {
	return r.get(ctx, id, true)
}

func (r *LotRepository) get(ctx context.Context, id string, forUpdate bool) (*domain.Lot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("lot")
	}

	query := `SELECT ` + lotColumns + ` FROM lots l JOIN products p ON p.id = l.product_id WHERE l.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF l`
	}

	var lot domain.Lot
	if err := r.db.Q(ctx).GetContext(ctx, &lot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, err
	}
	return &lot, nil
}

// List returns one page of lots matching f, ordered by expiry date, and the total match count
func (r *LotRepository) List(ctx context.Context, f LotFilter) ([]*domain.Lot, int64, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !f.IncludeExhausted {
		where = append(where, "l.quantity > 0")
	}
	if f.SupplierID != "" {
		where = append(where, "l.supplier_id = "+arg(f.SupplierID))
	}
	if f.SalesCategory != "" {
		where = append(where, "l.sales_category = "+arg(f.SalesCategory))
	}
	if f.ProductID != "" {
		where = append(where, "l.product_id = "+arg(f.ProductID))
	}
	if f.ExpiresFrom != nil {
		where = append(where, "l.expiry_date >= "+arg(*f.ExpiresFrom))
	}
	if f.ExpiresTo != nil {
		where = append(where, "l.expiry_date <= "+arg(*f.ExpiresTo))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM lots l` + clause
	if err := r.db.Q(ctx).GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + lotColumns + ` FROM lots l JOIN products p ON p.id = l.product_id` + clause +
		` ORDER BY l.expiry_date, l.id LIMIT ` + arg(limit) + ` OFFSET ` + arg(f.Offset)

	lots := []*domain.Lot{}
	if err := r.db.Q(ctx).SelectContext(ctx, &lots, query, args...); err != nil {
		return nil, 0, err
	}
	return lots, total, nil
}

// UpdateQuantity sets the quantity of a lot
func (r *LotRepository) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	query := `UPDATE lots SET quantity = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.Q(ctx).ExecContext(ctx, query, id, quantity)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("lot")
	}
	return nil
}

// SellableByExpiry groups the sellable lots by expiry date
func (r *LotRepository) SellableByExpiry(ctx context.Context) ([]ExpiryBucket, error) {
	query := `
		SELECT expiry_date,
		       COUNT(*) AS lots,
		       COALESCE(SUM(quantity), 0) AS units,
		       COALESCE(SUM(quantity * unit_cost), 0) AS value
		FROM lots
		WHERE quantity > 0
		GROUP BY expiry_date
		ORDER BY expiry_date
	`

	var buckets []ExpiryBucket
	if err := r.db.Q(ctx).SelectContext(ctx, &buckets, query); err != nil {
		return nil, err
	}
	return buckets, nil
}
