package auditlog

import (
	"context"
	"time"

	"github.com/bizcore/bizcore/internal/types"
)

// AuditLogEntry is an immutable record of who did what to which entity and
// when. Entries are append-only: they are never updated or deleted by the
// core; retention and export live outside of it.
type AuditLogEntry struct {
	ID            string            `db:"id" json:"id"`
	TenantID      string            `db:"tenant_id" json:"tenant_id"`
	ActorID       string            `db:"actor_id" json:"actor_id"`
	Action        types.AuditAction `db:"action" json:"action"`
	EntityType    string            `db:"entity_type" json:"entity_type"`
	EntityID      string            `db:"entity_id" json:"entity_id"`
	OldValues     types.Metadata    `db:"old_values" json:"old_values,omitempty"`
	NewValues     types.Metadata    `db:"new_values" json:"new_values,omitempty"`
	ChangedFields types.StringList  `db:"changed_fields" json:"changed_fields,omitempty"`
	Status        types.AuditStatus `db:"status" json:"status"`
	Metadata      types.Metadata    `db:"metadata" json:"metadata,omitempty"`
	Timestamp     time.Time         `db:"timestamp" json:"timestamp"`
	CorrelationID string            `db:"correlation_id" json:"correlation_id"`
}

// NewEntry builds an entry attributed to the actor and tenant on ctx
func NewEntry(ctx context.Context, action types.AuditAction, entityType string) *AuditLogEntry {
	return &AuditLogEntry{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_AUDIT_LOG),
		TenantID:      types.GetTenantID(ctx),
		ActorID:       types.GetUserID(ctx),
		Action:        action,
		EntityType:    entityType,
		Timestamp:     time.Now().UTC(),
		CorrelationID: types.GetRequestID(ctx),
	}
}
