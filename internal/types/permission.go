package types

// Role is a named bundle of permissions assigned to an actor
type Role string

// Permission is a single named capability checked before an operation runs
type Permission string

// Well-known roles. Deployments may define additional roles through
// configuration; these are only the ones the core itself references.
const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Permissions owned by the core. Business modules (estimates, finance,
// inventory) define their own permission strings on top of these.
const (
	PermissionSequenceRead     Permission = "sequence:read"
	PermissionSequenceAllocate Permission = "sequence:allocate"
	PermissionSequenceManage   Permission = "sequence:manage"
	PermissionSequenceReset    Permission = "sequence:reset"
	PermissionAuditRead        Permission = "audit:read"
)

func (r Role) String() string {
	return string(r)
}

func (p Permission) String() string {
	return string(p)
}
