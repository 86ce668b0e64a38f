package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizcore/bizcore/internal/config"
	"github.com/bizcore/bizcore/internal/domain/sequence"
	ierr "github.com/bizcore/bizcore/internal/errors"
	"github.com/bizcore/bizcore/internal/logger"
	"github.com/bizcore/bizcore/internal/postgres"
	"github.com/bizcore/bizcore/internal/types"
)

const testTenantID = "tenant-1"

var sequenceRows = []string{
	"id", "tenant_id", "code", "prefix", "suffix", "padding_length", "min_value", "max_value",
	"step", "reset_mode", "period_spec", "reset_value", "format_template", "current_value",
	"last_reset_at", "version", "status", "created_at", "updated_at", "created_by", "updated_by",
}

type repoFixture struct {
	client postgres.IClient
	repo   sequence.Repository
	mock   sqlmock.Sqlmock
}

func newRepoFixture(t *testing.T) *repoFixture {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	client := postgres.NewClient(db, config.GetDefaultConfig(), logger.GetLogger())

	return &repoFixture{
		client: client,
		repo:   NewSequenceRepository(client, logger.GetLogger()),
		mock:   mock,
	}
}

func (f *repoFixture) expectScopeBegin() {
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("SET LOCAL statement_timeout")).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func (f *repoFixture) run(t *testing.T, fn func(ctx context.Context) error) error {
	t.Helper()
	rc := types.RequestContext{
		Actor:  types.Actor{UserID: "user-1", Roles: []types.Role{types.RoleAdmin}},
		Tenant: types.Tenant{TenantID: testTenantID},
	}
	return f.client.InScope(rc.Apply(context.Background()), fn)
}

func sampleRow() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(sequenceRows).AddRow(
		"seq_01", testTenantID, "invoice", "INV", "", 6, int64(1), nil,
		int64(1), "NEVER", "", int64(1), "{prefix}-{number}", int64(10),
		nil, int64(3), "published", now, now, "user-1", "user-1",
	)
}

func TestGetForUpdateLocksRow(t *testing.T) {
	f := newRepoFixture(t)

	f.expectScopeBegin()
	f.mock.ExpectQuery("SELECT (.+) FROM number_sequences\\s+WHERE tenant_id = \\$1 AND code = \\$2 AND status != \\$3\\s+FOR UPDATE").
		WithArgs(testTenantID, "invoice", string(types.StatusDeleted)).
		WillReturnRows(sampleRow())
	f.mock.ExpectCommit()

	err := f.run(t, func(ctx context.Context) error {
		seq, err := f.repo.GetForUpdate(ctx, "invoice")
		if err != nil {
			return err
		}
		assert.Equal(t, int64(10), seq.CurrentValue)
		assert.Equal(t, int64(3), seq.Version)
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetForUpdateNotFound(t *testing.T) {
	f := newRepoFixture(t)

	f.expectScopeBegin()
	f.mock.ExpectQuery("SELECT (.+) FROM number_sequences").
		WillReturnRows(sqlmock.NewRows(sequenceRows))
	f.mock.ExpectRollback()

	err := f.run(t, func(ctx context.Context) error {
		_, err := f.repo.GetForUpdate(ctx, "missing")
		return err
	})

	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSaveBumpsVersion(t *testing.T) {
	f := newRepoFixture(t)

	f.expectScopeBegin()
	f.mock.ExpectExec("UPDATE number_sequences\\s+SET current_value = \\$3").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	seq := &sequence.NumberSequence{ID: "seq_01", Code: "invoice", CurrentValue: 11, Version: 3}
	err := f.run(t, func(ctx context.Context) error {
		return f.repo.Save(ctx, seq)
	})

	require.NoError(t, err)
	assert.Equal(t, int64(4), seq.Version)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSaveStaleVersionConflicts(t *testing.T) {
	f := newRepoFixture(t)

	f.expectScopeBegin()
	f.mock.ExpectExec("UPDATE number_sequences\\s+SET current_value = \\$3").
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectRollback()

	seq := &sequence.NumberSequence{ID: "seq_01", Code: "invoice", CurrentValue: 11, Version: 2}
	err := f.run(t, func(ctx context.Context) error {
		return f.repo.Save(ctx, seq)
	})

	require.Error(t, err)
	assert.True(t, ierr.IsVersionConflict(err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLockContentionMapsToContentionError(t *testing.T) {
	f := newRepoFixture(t)

	f.expectScopeBegin()
	f.mock.ExpectQuery("SELECT (.+) FROM number_sequences").
		WillReturnError(&pq.Error{Code: "55P03"})
	f.mock.ExpectRollback()

	err := f.run(t, func(ctx context.Context) error {
		_, err := f.repo.GetForUpdate(ctx, "invoice")
		return err
	})

	require.Error(t, err)
	assert.True(t, ierr.IsSequenceContention(err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRepositoryRequiresScope(t *testing.T) {
	f := newRepoFixture(t)

	_, err := f.repo.Get(context.Background(), "invoice")
	require.Error(t, err)
	assert.True(t, ierr.IsScope(err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
