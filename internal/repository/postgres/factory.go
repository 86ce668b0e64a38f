package postgres

import (
	"go.uber.org/fx"
)

// Module provides all postgres-backed repositories to the fx application
func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			NewSequenceRepository,
			NewAuditLogRepository,
		),
	)
}
