package service

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"

	"github.com/samber/lo"

	"github.com/bizcore/bizcore/internal/domain/auditlog"
	"github.com/bizcore/bizcore/internal/logger"
	"github.com/bizcore/bizcore/internal/postgres"
	"github.com/bizcore/bizcore/internal/types"
)

// AuditRecorder durably persists audit entries. Recording never fails the
// audited operation: persistence errors are logged and swallowed.
type AuditRecorder interface {
	// Record writes through the open tenant scope when one is present so the
	// entry commits atomically with the operation, else side-channel.
	Record(ctx context.Context, entry *auditlog.AuditLogEntry)

	// RecordSideChannel always writes outside the scope. FAILURE entries use
	// this so they survive the rollback of the operation that produced them.
	RecordSideChannel(ctx context.Context, entry *auditlog.AuditLogEntry)
}

type auditRecorder struct {
	repo   auditlog.Repository
	client postgres.IClient
	logger *logger.Logger
}

// NewAuditRecorder creates the audit recorder
func NewAuditRecorder(repo auditlog.Repository, client postgres.IClient, log *logger.Logger) AuditRecorder {
	return &auditRecorder{
		repo:   repo,
		client: client,
		logger: log,
	}
}

func (r *auditRecorder) Record(ctx context.Context, entry *auditlog.AuditLogEntry) {
	var err error
	if r.client.IsScoped(ctx) {
		err = r.repo.Insert(ctx, entry)
	} else {
		err = r.repo.InsertSideChannel(ctx, entry)
	}
	if err != nil {
		r.logger.Errorw("failed to persist audit entry",
			"entry_id", entry.ID,
			"tenant_id", entry.TenantID,
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"error", err,
		)
	}
}

func (r *auditRecorder) RecordSideChannel(ctx context.Context, entry *auditlog.AuditLogEntry) {
	if err := r.repo.InsertSideChannel(ctx, entry); err != nil {
		r.logger.Errorw("failed to persist audit entry",
			"entry_id", entry.ID,
			"tenant_id", entry.TenantID,
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"error", err,
		)
	}
}

// identifiable is satisfied by entities whose id should be recorded on the
// audit trail.
type identifiable interface {
	GetID() string
}

// EntityValues flattens an entity into a field map via its JSON encoding and
// extracts its id. Non-struct payloads (formatted numbers, counts) yield a
// nil map.
func EntityValues(v any) (types.Metadata, string) {
	if v == nil {
		return nil, ""
	}

	var id string
	if withID, ok := v.(identifiable); ok {
		id = withID.GetID()
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, id
	}

	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, id
	}

	if id == "" {
		if mapID, ok := values["id"].(string); ok {
			id = mapID
		}
	}

	return values, id
}

// DiffFields shallow-diffs two field maps and returns the sorted set of keys
// whose values differ, including keys present on only one side. A nil old
// map means everything is new.
func DiffFields(oldValues, newValues types.Metadata) []string {
	if oldValues == nil {
		fields := lo.Keys(newValues)
		sort.Strings(fields)
		return fields
	}

	changed := make(map[string]struct{})
	for key, newVal := range newValues {
		oldVal, ok := oldValues[key]
		if !ok || !reflect.DeepEqual(oldVal, newVal) {
			changed[key] = struct{}{}
		}
	}
	for key := range oldValues {
		if _, ok := newValues[key]; !ok {
			changed[key] = struct{}{}
		}
	}

	fields := lo.Keys(changed)
	sort.Strings(fields)
	return fields
}
