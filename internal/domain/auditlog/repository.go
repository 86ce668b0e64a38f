package auditlog

import (
	"context"
	"time"

	"github.com/bizcore/bizcore/internal/types"
)

// Filter narrows List results
type Filter struct {
	EntityType string
	EntityID   string
	ActorID    string
	Action     types.AuditAction
	Status     types.AuditStatus
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// Repository persists audit log entries. Insert runs inside the open tenant
// scope so a successful operation and its audit record commit atomically.
// InsertSideChannel writes outside any scope; it exists for FAILURE entries,
// which must survive the rollback of the operation that produced them.
type Repository interface {
	Insert(ctx context.Context, entry *AuditLogEntry) error
	InsertSideChannel(ctx context.Context, entry *AuditLogEntry) error
	List(ctx context.Context, filter *Filter) ([]*AuditLogEntry, error)
}
