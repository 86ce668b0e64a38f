package service

import (
	"context"

	"github.com/bizcore/bizcore/internal/domain/auditlog"
	"github.com/bizcore/bizcore/internal/types"
)

const auditLogEntityType = "audit_log"

// AuditLogService exposes the audit trail to authorized readers. The trail
// is append-only: there is no update or delete surface, and reading it is
// itself an audited operation.
type AuditLogService interface {
	List(ctx context.Context, filter *auditlog.Filter) Result[[]*auditlog.AuditLogEntry]
}

type auditLogService struct {
	ServiceParams
	recorder AuditRecorder
}

// NewAuditLogService creates the audit log service
func NewAuditLogService(params ServiceParams, recorder AuditRecorder) AuditLogService {
	return &auditLogService{
		ServiceParams: params,
		recorder:      recorder,
	}
}

func (s *auditLogService) List(ctx context.Context, filter *auditlog.Filter) Result[[]*auditlog.AuditLogEntry] {
	op := Operation{
		Permission: types.PermissionAuditRead,
		Action:     types.AuditActionList,
		EntityType: auditLogEntityType,
	}

	return Execute[[]*auditlog.AuditLogEntry](ctx, s.ServiceParams, s.recorder, op, func(ctx context.Context) ([]*auditlog.AuditLogEntry, error) {
		return s.AuditLogRepo.List(ctx, filter)
	})
}
