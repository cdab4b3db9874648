package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/medsupply/medsupply-backend/pkg/database"
	"github.com/medsupply/medsupply-backend/pkg/logger"
	"github.com/medsupply/medsupply-backend/pkg/migrate"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	DB        *database.DB
	Logger    *logger.Logger
}

// NewIntegrationSuite starts the shared container and applies the migrations.
// Call this in TestMain to set up shared test infrastructure.
//
// Usage:
//
//	var suite *testutil.IntegrationSuite
//
//	func TestMain(m *testing.M) {
//	    flag.Parse()
//	    if testing.Short() {
//	        os.Exit(m.Run())
//	    }
//	    ctx := context.Background()
//	    suite, err := testutil.NewIntegrationSuite(ctx)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    testutil.TerminateContainer(ctx)
//	    os.Exit(code)
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	if err := migrate.Up(ctx, db.DB); err != nil {
		return nil, err
	}

	log := logger.New("test", "test", "")
	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		DB:        database.Wrap(db, log),
		Logger:    log,
	}, nil
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// Reset empties every inventory table except the seeded expiry categories
func (s *IntegrationSuite) Reset(t *testing.T, ctx context.Context) {
	t.Helper()
	_, err := s.RawDB.ExecContext(ctx, `
		TRUNCATE stock_adjustments, lots, products, manufacturers, suppliers, import_sessions CASCADE
	`)
	if err != nil {
		t.Fatalf("failed to reset tables: %v", err)
	}
}

// SeedSupplier inserts an active supplier and returns its ID
func (s *IntegrationSuite) SeedSupplier(t *testing.T, ctx context.Context, name string) string {
	t.Helper()
	id := uuid.New().String()
	if _, err := s.RawDB.ExecContext(ctx, `INSERT INTO suppliers (id, name) VALUES ($1, $2)`, id, name); err != nil {
		t.Fatalf("failed to seed supplier: %v", err)
	}
	return id
}

// SeedManufacturer inserts an active manufacturer and returns its ID
func (s *IntegrationSuite) SeedManufacturer(t *testing.T, ctx context.Context, name string) string {
	t.Helper()
	id := uuid.New().String()
	if _, err := s.RawDB.ExecContext(ctx, `INSERT INTO manufacturers (id, name) VALUES ($1, $2)`, id, name); err != nil {
		t.Fatalf("failed to seed manufacturer: %v", err)
	}
	return id
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalDB != nil {
		_ = globalDB.Close()
	}
	if globalContainer != nil {
		_ = globalContainer.Terminate(ctx)
	}
}
