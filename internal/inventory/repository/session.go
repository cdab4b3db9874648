package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/medsupply/medsupply-backend/internal/inventory/domain"
	"github.com/medsupply/medsupply-backend/pkg/database"
	"github.com/medsupply/medsupply-backend/pkg/errors"
)

const sessionColumns = `
	id, supplier_id, sales_category, file_name, status, rows_total, rows_succeeded, rows_failed,
	superseded_lots, created_lots, created_products, error_log, failure_reason,
	created_at, updated_at, finished_at
`

// SessionRepository archives acknowledged import sessions
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Archive stores a terminal session. Archiving the same session twice is a no-op.
func (r *SessionRepository) Archive(ctx context.Context, s *domain.ImportSession) error {
	query := `
		INSERT INTO import_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.Q(ctx).ExecContext(ctx, query,
		s.ID, s.SupplierID, s.SalesCategory, s.FileName, s.Status,
		s.RowsTotal, s.RowsSucceeded, s.RowsFailed,
		s.SupersededLots, s.CreatedLots, s.CreatedProducts,
		s.ErrorLog, s.FailureReason, s.CreatedAt, s.UpdatedAt, s.FinishedAt,
	)
	return err
}

// Get gets an archived session by ID
func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.ImportSession, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("import session")
	}

	var s domain.ImportSession
	query := `SELECT ` + sessionColumns + ` FROM import_sessions WHERE id = $1`
	if err := r.db.Q(ctx).GetContext(ctx, &s, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("import session")
		}
		return nil, err
	}
	return &s, nil
}

// ListByScope returns the archived sessions of a scope, newest first
func (r *SessionRepository) ListByScope(ctx context.Context, scope domain.Scope, limit int) ([]*domain.ImportSession, error) {
	if limit <= 0 {
		limit = 20
	}

	sessions := []*domain.ImportSession{}
	query := `SELECT ` + sessionColumns + ` FROM import_sessions
		WHERE supplier_id = $1 AND sales_category = $2
		ORDER BY created_at DESC LIMIT $3`
	if err := r.db.Q(ctx).SelectContext(ctx, &sessions, query, scope.SupplierID, scope.SalesCategory, limit); err != nil {
		return nil, err
	}
	return sessions, nil
}
