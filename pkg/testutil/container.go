// Package testutil holds the shared test scaffolding for the inventory
// service: a migrated PostgreSQL container for integration tests, a sqlmock
// backed database.DB for repository tests and HTTP helpers for handlers.
package testutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer is a running test database and its DSN
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container.
// MEDSUPPLY_TEST_POSTGRES_IMAGE overrides the image, so CI can pin the
// same major version production runs.
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string
	Startup  time.Duration
}

// DefaultPostgresConfig returns the container settings used by the suites
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "medsupply_inventory_test",
		Username: "medsupply_test",
		Password: "medsupply_test",
		Image:    GetEnvOrDefault("MEDSUPPLY_TEST_POSTGRES_IMAGE", "postgres:16-alpine"),
		Startup:  60 * time.Second,
	}
}

// NewPostgresContainer starts a PostgreSQL container and waits until it
// accepts connections. Zero fields fall back to DefaultPostgresConfig.
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	def := DefaultPostgresConfig()
	if cfg.Image == "" {
		cfg.Image = def.Image
	}
	if cfg.Database == "" {
		cfg.Database = def.Database
	}
	if cfg.Username == "" {
		cfg.Username = def.Username
	}
	if cfg.Password == "" {
		cfg.Password = def.Password
	}
	if cfg.Startup <= 0 {
		cfg.Startup = def.Startup
	}

	// Postgres logs readiness twice: once for the init pass, once for the real server.
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(cfg.Startup),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container %s: %w", cfg.Image, err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("postgres container connection string: %w", err)
	}

	return &PostgresContainer{PostgresContainer: container, DSN: dsn}, nil
}

// Connect opens a pool against the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect to test database: %w", err)
	}
	return db, nil
}

// GetEnvOrDefault returns the environment variable or fallback when unset
func GetEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
