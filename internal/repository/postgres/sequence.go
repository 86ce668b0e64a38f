package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bizcore/bizcore/internal/domain/sequence"
	ierr "github.com/bizcore/bizcore/internal/errors"
	"github.com/bizcore/bizcore/internal/logger"
	"github.com/bizcore/bizcore/internal/postgres"
	"github.com/bizcore/bizcore/internal/types"
)

const sequenceColumns = `id, tenant_id, code, prefix, suffix, padding_length, min_value, max_value,
	step, reset_mode, period_spec, reset_value, format_template, current_value,
	last_reset_at, version, status, created_at, updated_at, created_by, updated_by`

type sequenceRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

// NewSequenceRepository creates a sequence repository that only operates
// through an open tenant scope.
func NewSequenceRepository(client postgres.IClient, log *logger.Logger) sequence.Repository {
	return &sequenceRepository{
		client: client,
		logger: log,
	}
}

func (r *sequenceRepository) scoped(ctx context.Context) (*postgres.TenantTx, error) {
	tx, ok := r.client.ScopedFromContext(ctx)
	if !ok {
		return nil, ierr.NewError("no tenant scope open").
			WithHint("Sequence access requires an open tenant scope").
			Mark(ierr.ErrScope)
	}
	return tx, nil
}

func (r *sequenceRepository) Create(ctx context.Context, seq *sequence.NumberSequence) error {
	tx, err := r.scoped(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO number_sequences (
			tenant_id, id, code, prefix, suffix, padding_length, min_value, max_value,
			step, reset_mode, period_spec, reset_value, format_template, current_value,
			last_reset_at, version, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21
		)`

	_, err = tx.Exec(ctx, query,
		seq.ID, seq.Code, seq.Prefix, seq.Suffix, seq.PaddingLength, seq.MinValue, seq.MaxValue,
		seq.Step, seq.ResetMode, seq.PeriodSpec, seq.ResetValue, seq.FormatTemplate, seq.CurrentValue,
		seq.LastResetAt, seq.Version, seq.Status, seq.CreatedAt, seq.UpdatedAt, seq.CreatedBy, seq.UpdatedBy,
	)
	if err != nil {
		return postgres.MapError(err, "creating sequence")
	}

	return nil
}

func (r *sequenceRepository) Get(ctx context.Context, code string) (*sequence.NumberSequence, error) {
	tx, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM number_sequences
		WHERE tenant_id = $1 AND code = $2 AND status != $3`, sequenceColumns)

	var seq sequence.NumberSequence
	if err := tx.Get(ctx, &seq, query, code, types.StatusDeleted); err != nil {
		if err == sql.ErrNoRows {
			return nil, sequence.NewNotFoundError(code)
		}
		return nil, postgres.MapError(err, "loading sequence")
	}

	return &seq, nil
}

// GetForUpdate takes a row-level lock on the sequence so concurrent
// allocators for the same (tenant, code) serialize until the scope ends.
func (r *sequenceRepository) GetForUpdate(ctx context.Context, code string) (*sequence.NumberSequence, error) {
	tx, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM number_sequences
		WHERE tenant_id = $1 AND code = $2 AND status != $3
		FOR UPDATE`, sequenceColumns)

	var seq sequence.NumberSequence
	if err := tx.Get(ctx, &seq, query, code, types.StatusDeleted); err != nil {
		if err == sql.ErrNoRows {
			return nil, sequence.NewNotFoundError(code)
		}
		return nil, postgres.MapError(err, "locking sequence")
	}

	return &seq, nil
}

// Save persists counter state with a version guard on top of the row lock.
// A zero-row update means another writer advanced the row first.
func (r *sequenceRepository) Save(ctx context.Context, seq *sequence.NumberSequence) error {
	tx, err := r.scoped(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE number_sequences
		SET current_value = $3,
			last_reset_at = $4,
			version = version + 1,
			updated_at = $5,
			updated_by = $6
		WHERE tenant_id = $1 AND id = $2 AND version = $7`

	res, err := tx.Exec(ctx, query,
		seq.ID, seq.CurrentValue, seq.LastResetAt,
		time.Now().UTC(), types.GetUserID(ctx), seq.Version,
	)
	if err != nil {
		return postgres.MapError(err, "saving sequence")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return postgres.MapError(err, "saving sequence")
	}
	if affected == 0 {
		return ierr.NewError("stale sequence version").
			WithHintf("Sequence %s was advanced concurrently", seq.Code).
			Mark(ierr.ErrVersionConflict)
	}

	seq.Version++
	return nil
}

func (r *sequenceRepository) Update(ctx context.Context, seq *sequence.NumberSequence) error {
	tx, err := r.scoped(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE number_sequences
		SET prefix = $3,
			suffix = $4,
			padding_length = $5,
			min_value = $6,
			max_value = $7,
			step = $8,
			reset_mode = $9,
			period_spec = $10,
			reset_value = $11,
			format_template = $12,
			status = $13,
			version = version + 1,
			updated_at = $14,
			updated_by = $15
		WHERE tenant_id = $1 AND id = $2 AND version = $16`

	res, err := tx.Exec(ctx, query,
		seq.ID, seq.Prefix, seq.Suffix, seq.PaddingLength, seq.MinValue, seq.MaxValue,
		seq.Step, seq.ResetMode, seq.PeriodSpec, seq.ResetValue, seq.FormatTemplate,
		seq.Status, time.Now().UTC(), types.GetUserID(ctx), seq.Version,
	)
	if err != nil {
		return postgres.MapError(err, "updating sequence")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return postgres.MapError(err, "updating sequence")
	}
	if affected == 0 {
		return ierr.NewError("stale sequence version").
			WithHintf("Sequence %s was modified concurrently", seq.Code).
			Mark(ierr.ErrVersionConflict)
	}

	seq.Version++
	return nil
}

func (r *sequenceRepository) List(ctx context.Context, filter *sequence.Filter) ([]*sequence.NumberSequence, error) {
	tx, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}

	if filter == nil {
		filter = &sequence.Filter{}
	}

	var (
		conditions = []string{"tenant_id = $1"}
		args       []interface{}
		argPos     = 2
	)

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, filter.Status)
		argPos++
	} else {
		conditions = append(conditions, fmt.Sprintf("status != $%d", argPos))
		args = append(args, types.StatusDeleted)
		argPos++
	}

	if len(filter.Codes) > 0 {
		placeholders := make([]string, len(filter.Codes))
		for i, code := range filter.Codes {
			placeholders[i] = fmt.Sprintf("$%d", argPos)
			args = append(args, code)
			argPos++
		}
		conditions = append(conditions, fmt.Sprintf("code IN (%s)", strings.Join(placeholders, ", ")))
	}

	query := fmt.Sprintf(`
		SELECT %s FROM number_sequences
		WHERE %s
		ORDER BY code`, sequenceColumns, strings.Join(conditions, " AND "))

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	var seqs []*sequence.NumberSequence
	if err := tx.Select(ctx, &seqs, query, args...); err != nil {
		return nil, postgres.MapError(err, "listing sequences")
	}

	return seqs, nil
}
