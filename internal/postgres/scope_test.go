package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizcore/bizcore/internal/config"
	ierr "github.com/bizcore/bizcore/internal/errors"
	"github.com/bizcore/bizcore/internal/logger"
	"github.com/bizcore/bizcore/internal/types"
)

const testTenantID = "tenant-1"

func newTestClient(t *testing.T) (IClient, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	return NewClient(db, config.GetDefaultConfig(), logger.GetLogger()), mock
}

func scopedContext() context.Context {
	rc := types.RequestContext{
		Actor:  types.Actor{UserID: "user-1", Roles: []types.Role{types.RoleAdmin}},
		Tenant: types.Tenant{TenantID: testTenantID},
	}
	return rc.Apply(context.Background())
}

func expectScopeBegin(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL statement_timeout = 5000")).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestInScopeCommitsOnSuccess(t *testing.T) {
	client, mock := newTestClient(t)

	expectScopeBegin(mock)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE number_sequences SET status = $2 WHERE tenant_id = $1")).
		WithArgs(testTenantID, "archived").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := client.InScope(scopedContext(), func(ctx context.Context) error {
		tx, ok := ScopedFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, testTenantID, tx.TenantID())

		// the handle injects the tenant id as $1; only $2 is supplied here
		_, err := tx.Exec(ctx, "UPDATE number_sequences SET status = $2 WHERE tenant_id = $1", "archived")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInScopeRollsBackOnError(t *testing.T) {
	client, mock := newTestClient(t)

	expectScopeBegin(mock)
	mock.ExpectRollback()

	bodyErr := ierr.NewError("boom").Mark(ierr.ErrValidation)
	err := client.InScope(scopedContext(), func(ctx context.Context) error {
		return bodyErr
	})

	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInScopeRejectsNesting(t *testing.T) {
	client, mock := newTestClient(t)

	expectScopeBegin(mock)
	mock.ExpectRollback()

	err := client.InScope(scopedContext(), func(ctx context.Context) error {
		return client.InScope(ctx, func(ctx context.Context) error {
			t.Fatal("nested scope body must not run")
			return nil
		})
	})

	require.Error(t, err)
	assert.True(t, ierr.IsScope(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInScopeRequiresTenant(t *testing.T) {
	client, mock := newTestClient(t)

	err := client.InScope(context.Background(), func(ctx context.Context) error {
		t.Fatal("scope body must not run without a tenant")
		return nil
	})

	require.Error(t, err)
	assert.True(t, ierr.IsScope(err))
	// no transaction must be opened for an unscoped caller
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInScopeRollsBackOnPanic(t *testing.T) {
	client, mock := newTestClient(t)

	expectScopeBegin(mock)
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = client.InScope(scopedContext(), func(ctx context.Context) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopedFromContextWithoutScope(t *testing.T) {
	_, ok := ScopedFromContext(context.Background())
	assert.False(t, ok)
}
