package testutil

import (
	"context"

	"github.com/bizcore/bizcore/internal/types"
)

func SetupContext() context.Context {
	return SetupContextWith(types.DefaultTenantID, types.DefaultUserID, types.RoleAdmin)
}

// SetupContextWith builds a request context for an arbitrary identity
func SetupContextWith(tenantID, userID string, roles ...types.Role) context.Context {
	rc := types.RequestContext{
		Actor: types.Actor{
			UserID: userID,
			Roles:  roles,
		},
		Tenant:        types.Tenant{TenantID: tenantID},
		CorrelationID: types.GenerateUUID(),
	}
	return rc.Apply(context.Background())
}
