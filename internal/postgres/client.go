package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/fx"

	"github.com/bizcore/bizcore/internal/config"
	ierr "github.com/bizcore/bizcore/internal/errors"
	"github.com/bizcore/bizcore/internal/logger"
)

// IClient is the persistence entrypoint for the core. Every access to a
// tenant-partitioned table goes through InScope; the scoped handle it binds
// into the context is the only way to issue such queries.
type IClient interface {
	// InScope opens a tenant-bound transaction for the tenant in ctx and runs
	// fn inside it. Commits on nil return, rolls back and returns the error
	// otherwise. Opening a scope inside an open scope is an error.
	InScope(ctx context.Context, fn func(ctx context.Context) error) error

	// ScopedFromContext returns the tenant-bound transaction handle if a
	// scope is open on ctx.
	ScopedFromContext(ctx context.Context) (*TenantTx, bool)

	// IsScoped reports whether a tenant scope is open on ctx
	IsScoped(ctx context.Context) bool
}

// Client wraps sqlx.DB with tenant scope management
type Client struct {
	db     *sqlx.DB
	cfg    *config.Configuration
	logger *logger.Logger
}

var _ IClient = (*Client)(nil)

// Module provides the postgres client to the fx application
func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			NewDB,
			NewClient,
		),
	)
}

// NewDB opens the database connection pool
func NewDB(cfg *config.Configuration, log *logger.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.Postgres.GetDSN())
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to connect to postgres").
			Mark(ierr.ErrDatabase)
	}

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifetimeMinutes) * time.Minute)

	log.Infow("connected to postgres",
		"host", cfg.Postgres.Host,
		"database", cfg.Postgres.DBName)

	return db, nil
}

// NewClient creates a new client with tenant scope management
func NewClient(db *sqlx.DB, cfg *config.Configuration, log *logger.Logger) IClient {
	return &Client{
		db:     db,
		cfg:    cfg,
		logger: log,
	}
}

// DB exposes the raw pool for side-channel writes to non-partitioned or
// append-only tables (audit failure records, migrations). Tenant-partitioned
// reads and writes must go through InScope instead.
func (c *Client) DB() *sqlx.DB {
	return c.db
}
