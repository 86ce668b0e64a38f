package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	ierr "github.com/bizcore/bizcore/internal/errors"
	"github.com/bizcore/bizcore/internal/types"
)

type scopeCtxKey struct{}

// TenantTx is a transaction handle bound to exactly one tenant. It cannot be
// constructed outside an open scope, and every statement issued through it
// receives the bound tenant id as $1 — statements are written with
// `tenant_id = $1` and callers never supply the tenant themselves, so a
// query against another tenant's rows cannot be expressed.
type TenantTx struct {
	tx       *sqlx.Tx
	tenantID string
}

// TenantID returns the tenant the transaction is bound to
func (t *TenantTx) TenantID() string {
	return t.tenantID
}

// Get runs a single-row query with $1 bound to the tenant id
func (t *TenantTx) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return t.tx.GetContext(ctx, dest, query, t.bind(args)...)
}

// Select runs a multi-row query with $1 bound to the tenant id
func (t *TenantTx) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return t.tx.SelectContext(ctx, dest, query, t.bind(args)...)
}

// Exec runs a statement with $1 bound to the tenant id
func (t *TenantTx) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, t.bind(args)...)
}

// QueryRow runs a query returning one row with $1 bound to the tenant id
func (t *TenantTx) QueryRow(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	return t.tx.QueryRowxContext(ctx, query, t.bind(args)...)
}

func (t *TenantTx) bind(args []interface{}) []interface{} {
	return append([]interface{}{t.tenantID}, args...)
}

// ScopedFromContext returns the tenant-bound transaction handle if a scope
// is open on ctx.
func ScopedFromContext(ctx context.Context) (*TenantTx, bool) {
	tx, ok := ctx.Value(scopeCtxKey{}).(*TenantTx)
	return tx, ok
}

// ScopedFromContext implements IClient
func (c *Client) ScopedFromContext(ctx context.Context) (*TenantTx, bool) {
	return ScopedFromContext(ctx)
}

// IsScoped implements IClient
func (c *Client) IsScoped(ctx context.Context) bool {
	_, ok := ScopedFromContext(ctx)
	return ok
}

// InScope opens a transaction bound to the tenant in ctx and runs fn with
// the scoped handle on the context. The transaction is short-lived: it spans
// one logical operation, commits on success and rolls back entirely on error,
// panic, or caller cancellation.
func (c *Client) InScope(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := types.ValidateTenantContext(ctx); err != nil {
		return err
	}

	if _, ok := ScopedFromContext(ctx); ok {
		return ierr.NewError("tenant scope already open").
			WithHint("Nested tenant scopes are not allowed").
			Mark(ierr.ErrScope)
	}

	tenantID := types.GetTenantID(ctx)

	tx, err := c.db.BeginTxx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return MapError(err, "starting transaction")
	}

	if timeout := c.cfg.Postgres.StatementTimeout; timeout > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())); err != nil {
			_ = tx.Rollback()
			return MapError(err, "setting statement timeout")
		}
	}

	scoped := &TenantTx{tx: tx, tenantID: tenantID}
	scopedCtx := context.WithValue(ctx, scopeCtxKey{}, scoped)

	defer func() {
		if v := recover(); v != nil {
			c.logger.Errorw("rolling back tenant scope due to panic",
				"tenant_id", tenantID,
				"panic", v,
			)
			_ = tx.Rollback()
			panic(v)
		}
	}()

	if err := fn(scopedCtx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = fmt.Errorf("rolling back transaction: %v (original error: %w)", rerr, err)
		}
		c.logger.Debugw("rolled back tenant scope",
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	if err := tx.Commit(); err != nil {
		c.logger.Errorw("committing tenant scope",
			"tenant_id", tenantID,
			"error", err,
		)
		return MapError(err, "committing transaction")
	}

	return nil
}
