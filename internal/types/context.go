package types

import (
	"context"

	ierr "github.com/bizcore/bizcore/internal/errors"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID ContextKey = "ctx_request_id"
	CtxTenantID  ContextKey = "ctx_tenant_id"
	CtxUserID    ContextKey = "ctx_user_id"
	CtxRoles     ContextKey = "ctx_roles"

	// Default values used by scripts and tests
	DefaultTenantID = "00000000-0000-0000-0000-000000000000"
	DefaultUserID   = "00000000-0000-0000-0000-000000000000"
)

// Actor is the authenticated principal performing an operation.
type Actor struct {
	UserID string
	Roles  []Role
}

// Tenant identifies the data partition an operation runs against.
type Tenant struct {
	TenantID string
}

// RequestContext carries the resolved identity of one inbound call. It is
// created by the caller (after authentication) and applied onto the
// context.Context that flows through the core. It is never persisted.
type RequestContext struct {
	Actor         Actor
	Tenant        Tenant
	CorrelationID string
}

// Apply stores the request context fields on the given context
func (rc RequestContext) Apply(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, CtxTenantID, rc.Tenant.TenantID)
	ctx = context.WithValue(ctx, CtxUserID, rc.Actor.UserID)
	ctx = context.WithValue(ctx, CtxRoles, rc.Actor.Roles)
	correlationID := rc.CorrelationID
	if correlationID == "" {
		correlationID = GenerateUUID()
	}
	return context.WithValue(ctx, CtxRequestID, correlationID)
}

// RequestContextFromContext reconstructs the request context from ctx
func RequestContextFromContext(ctx context.Context) RequestContext {
	return RequestContext{
		Actor: Actor{
			UserID: GetUserID(ctx),
			Roles:  GetRoles(ctx),
		},
		Tenant:        Tenant{TenantID: GetTenantID(ctx)},
		CorrelationID: GetRequestID(ctx),
	}
}

func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(CtxUserID).(string); ok {
		return userID
	}
	return ""
}

func GetTenantID(ctx context.Context) string {
	if tenantID, ok := ctx.Value(CtxTenantID).(string); ok {
		return tenantID
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

// GetRoles returns the roles attached to the calling actor. Missing roles
// mean no grants at all; permission checks fail closed.
func GetRoles(ctx context.Context) []Role {
	if roles, ok := ctx.Value(CtxRoles).([]Role); ok {
		return roles
	}
	return []Role{}
}

// SetTenantID sets the tenant ID in the context
func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, CtxTenantID, tenantID)
}

// SetUserID sets the user ID in the context
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxUserID, userID)
}

// ValidateTenantContext validates that the required identity fields are
// present before any tenant-partitioned work may run.
func ValidateTenantContext(ctx context.Context) error {
	if ctx == nil {
		return ierr.NewError("context is nil").
			WithHint("A request context is required").
			Mark(ierr.ErrScope)
	}

	if GetTenantID(ctx) == "" {
		return ierr.NewError("no tenant found in context").
			WithHint("Operation requires a tenant identity").
			Mark(ierr.ErrScope)
	}

	if GetUserID(ctx) == "" {
		return ierr.NewError("no actor found in context").
			WithHint("Operation requires an authenticated actor").
			Mark(ierr.ErrScope)
	}

	return nil
}
