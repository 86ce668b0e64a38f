package service

import (
	"context"
	"sync"

	"github.com/bizcore/bizcore/internal/domain/auditlog"
	ierr "github.com/bizcore/bizcore/internal/errors"
	"github.com/bizcore/bizcore/internal/types"
)

// Operation describes one audited, authorized unit of work
type Operation struct {
	Permission types.Permission
	Action     types.AuditAction
	EntityType string

	// Metadata is attached to the audit entry verbatim
	Metadata map[string]any
}

type auditStateKey struct{}

// auditState collects audit inputs that only become known while the body
// runs (old values fetched under lock, the id of the touched entity).
type auditState struct {
	mu        sync.Mutex
	oldValues types.Metadata
	entityID  string
	metadata  map[string]any
}

func withAuditState(ctx context.Context) (context.Context, *auditState) {
	state := &auditState{}
	return context.WithValue(ctx, auditStateKey{}, state), state
}

func auditStateFrom(ctx context.Context) *auditState {
	state, _ := ctx.Value(auditStateKey{}).(*auditState)
	return state
}

// SetAuditOldValues records the pre-mutation snapshot of the entity the
// running operation is about to change. Call it from an operation body once
// the entity has been loaded.
func SetAuditOldValues(ctx context.Context, entity any) {
	state := auditStateFrom(ctx)
	if state == nil {
		return
	}
	values, id := EntityValues(entity)
	state.mu.Lock()
	defer state.mu.Unlock()
	state.oldValues = values
	if state.entityID == "" {
		state.entityID = id
	}
}

// SetAuditEntityID records the id of the entity the running operation
// touched, for bodies that do not return the entity itself.
func SetAuditEntityID(ctx context.Context, id string) {
	state := auditStateFrom(ctx)
	if state == nil {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	state.entityID = id
}

// AddAuditMetadata attaches an extra key to the audit entry of the running
// operation.
func AddAuditMetadata(ctx context.Context, key string, value any) {
	state := auditStateFrom(ctx)
	if state == nil {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.metadata == nil {
		state.metadata = make(map[string]any)
	}
	state.metadata[key] = value
}

func buildEntry(ctx context.Context, op Operation, state *auditState) *auditlog.AuditLogEntry {
	entry := auditlog.NewEntry(ctx, op.Action, op.EntityType)
	if len(op.Metadata) > 0 {
		entry.Metadata = make(types.Metadata, len(op.Metadata))
		for key, value := range op.Metadata {
			entry.Metadata[key] = value
		}
	}
	if state != nil {
		state.mu.Lock()
		defer state.mu.Unlock()
		entry.OldValues = state.oldValues
		entry.EntityID = state.entityID
		for key, value := range state.metadata {
			if entry.Metadata == nil {
				entry.Metadata = types.Metadata{}
			}
			entry.Metadata[key] = value
		}
	}
	return entry
}

// WithAudit runs body and persists exactly one audit entry for it, success
// or failure. It never re-raises the body's error; callers observe the
// structured result instead. FAILURE entries go through the side channel so
// a surrounding transaction rollback cannot erase them.
func WithAudit[T any](ctx context.Context, recorder AuditRecorder, op Operation, body func(ctx context.Context) (T, error)) Result[T] {
	ctx, state := withAuditState(ctx)

	data, err := body(ctx)
	if err != nil {
		entry := buildEntry(ctx, op, state)
		entry.Status = types.AuditStatusFailure
		if entry.Metadata == nil {
			entry.Metadata = types.Metadata{}
		}
		entry.Metadata["error"] = err.Error()
		recorder.RecordSideChannel(ctx, entry)
		return Fail[T](err)
	}

	entry := buildEntry(ctx, op, state)
	entry.Status = types.AuditStatusSuccess
	newValues, entityID := EntityValues(data)
	entry.NewValues = newValues
	if entry.EntityID == "" {
		entry.EntityID = entityID
	}
	if newValues != nil {
		entry.ChangedFields = DiffFields(entry.OldValues, newValues)
	}
	recorder.Record(ctx, entry)

	return Ok(data)
}

// Execute is the composition point every operation passes through:
// authorize, open the tenant scope, run the audited body, return the
// uniform envelope. Unauthorized callers are rejected before any I/O and
// leave no audit trace, since no tenant data was touched.
func Execute[T any](ctx context.Context, params ServiceParams, recorder AuditRecorder, op Operation, body func(ctx context.Context) (T, error)) Result[T] {
	if err := types.ValidateTenantContext(ctx); err != nil {
		return Fail[T](err)
	}

	if !params.Permissions.Authorize(types.GetRoles(ctx), op.Permission) {
		return Fail[T](ierr.NewError("permission denied").
			WithHintf("Missing permission %s", op.Permission).
			Mark(ierr.ErrPermissionDenied))
	}

	var res Result[T]
	scopeErr := params.DB.InScope(ctx, func(scopedCtx context.Context) error {
		res = WithAudit[T](scopedCtx, recorder, op, body)
		// propagate the body's error so the scope rolls back
		return res.Err()
	})

	if scopeErr != nil {
		if res.Success {
			// the body succeeded but the commit did not; the scoped SUCCESS
			// entry rolled back with it, so account for the failure here
			entry := buildEntry(ctx, op, nil)
			entry.Status = types.AuditStatusFailure
			if entry.Metadata == nil {
				entry.Metadata = types.Metadata{}
			}
			entry.Metadata["error"] = scopeErr.Error()
			recorder.RecordSideChannel(ctx, entry)
		}
		return Fail[T](scopeErr)
	}

	return res
}
