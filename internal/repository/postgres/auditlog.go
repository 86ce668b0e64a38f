package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/bizcore/bizcore/internal/domain/auditlog"
	ierr "github.com/bizcore/bizcore/internal/errors"
	"github.com/bizcore/bizcore/internal/logger"
	"github.com/bizcore/bizcore/internal/postgres"
)

const auditColumns = `id, tenant_id, actor_id, action, entity_type, entity_id,
	old_values, new_values, changed_fields, status, metadata, timestamp, correlation_id`

const auditInsert = `
	INSERT INTO audit_logs (
		tenant_id, id, actor_id, action, entity_type, entity_id,
		old_values, new_values, changed_fields, status, metadata, timestamp, correlation_id
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, $11, $12, $13
	)`

type auditLogRepository struct {
	client postgres.IClient
	db     *sqlx.DB
	logger *logger.Logger
}

// NewAuditLogRepository creates an audit log repository. Scoped inserts go
// through the open tenant transaction; the raw pool only serves the
// side-channel path for FAILURE entries.
func NewAuditLogRepository(client postgres.IClient, db *sqlx.DB, log *logger.Logger) auditlog.Repository {
	return &auditLogRepository{
		client: client,
		db:     db,
		logger: log,
	}
}

func (r *auditLogRepository) Insert(ctx context.Context, entry *auditlog.AuditLogEntry) error {
	tx, ok := r.client.ScopedFromContext(ctx)
	if !ok {
		return ierr.NewError("no tenant scope open").
			WithHint("Scoped audit insert requires an open tenant scope").
			Mark(ierr.ErrScope)
	}

	// the scope binds $1 to its tenant; the entry's tenant is informational here
	_, err := tx.Exec(ctx, auditInsert,
		entry.ID, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID,
		entry.OldValues, entry.NewValues, entry.ChangedFields, entry.Status,
		entry.Metadata, entry.Timestamp, entry.CorrelationID,
	)
	if err != nil {
		return postgres.MapError(err, "inserting audit entry")
	}

	return nil
}

// InsertSideChannel writes an entry outside any tenant scope. FAILURE
// entries take this path so they survive the rollback of the operation
// that produced them.
func (r *auditLogRepository) InsertSideChannel(ctx context.Context, entry *auditlog.AuditLogEntry) error {
	if entry.TenantID == "" {
		return ierr.NewError("audit entry without tenant").
			WithHint("Audit entries must be attributable to a tenant").
			Mark(ierr.ErrScope)
	}

	_, err := r.db.ExecContext(ctx, auditInsert,
		entry.TenantID, entry.ID, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID,
		entry.OldValues, entry.NewValues, entry.ChangedFields, entry.Status,
		entry.Metadata, entry.Timestamp, entry.CorrelationID,
	)
	if err != nil {
		return postgres.MapError(err, "inserting audit entry")
	}

	return nil
}

func (r *auditLogRepository) List(ctx context.Context, filter *auditlog.Filter) ([]*auditlog.AuditLogEntry, error) {
	tx, ok := r.client.ScopedFromContext(ctx)
	if !ok {
		return nil, ierr.NewError("no tenant scope open").
			WithHint("Audit reads require an open tenant scope").
			Mark(ierr.ErrScope)
	}

	if filter == nil {
		filter = &auditlog.Filter{}
	}

	var (
		conditions = []string{"tenant_id = $1"}
		args       []interface{}
		argPos     = 2
	)

	appendCondition := func(clause string, value interface{}) {
		conditions = append(conditions, fmt.Sprintf(clause, argPos))
		args = append(args, value)
		argPos++
	}

	if filter.EntityType != "" {
		appendCondition("entity_type = $%d", filter.EntityType)
	}
	if filter.EntityID != "" {
		appendCondition("entity_id = $%d", filter.EntityID)
	}
	if filter.ActorID != "" {
		appendCondition("actor_id = $%d", filter.ActorID)
	}
	if filter.Action != "" {
		appendCondition("action = $%d", filter.Action)
	}
	if filter.Status != "" {
		appendCondition("status = $%d", filter.Status)
	}
	if filter.From != nil {
		appendCondition("timestamp >= $%d", *filter.From)
	}
	if filter.To != nil {
		appendCondition("timestamp < $%d", *filter.To)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM audit_logs
		WHERE %s
		ORDER BY timestamp DESC, id DESC`, auditColumns, strings.Join(conditions, " AND "))

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	var entries []*auditlog.AuditLogEntry
	if err := tx.Select(ctx, &entries, query, args...); err != nil {
		return nil, postgres.MapError(err, "listing audit entries")
	}

	return entries, nil
}
