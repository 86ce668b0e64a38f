package service

import (
	"go.uber.org/fx"

	"github.com/bizcore/bizcore/internal/cache"
	"github.com/bizcore/bizcore/internal/config"
	"github.com/bizcore/bizcore/internal/domain/auditlog"
	"github.com/bizcore/bizcore/internal/domain/sequence"
	"github.com/bizcore/bizcore/internal/logger"
	"github.com/bizcore/bizcore/internal/permission"
	"github.com/bizcore/bizcore/internal/postgres"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger      *logger.Logger
	Config      *config.Configuration
	DB          postgres.IClient
	Permissions *permission.Engine
	Cache       cache.Cache

	// Repositories
	SequenceRepo sequence.Repository
	AuditLogRepo auditlog.Repository
}

// NewServiceParams assembles the shared dependency bundle
func NewServiceParams(
	log *logger.Logger,
	cfg *config.Configuration,
	db postgres.IClient,
	permissions *permission.Engine,
	c cache.Cache,
	sequenceRepo sequence.Repository,
	auditLogRepo auditlog.Repository,
) ServiceParams {
	return ServiceParams{
		Logger:       log,
		Config:       cfg,
		DB:           db,
		Permissions:  permissions,
		Cache:        c,
		SequenceRepo: sequenceRepo,
		AuditLogRepo: auditLogRepo,
	}
}

// Module provides the service layer to the fx application
func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			NewServiceParams,
			NewAuditRecorder,
			NewSequenceService,
			NewAuditLogService,
		),
	)
}
