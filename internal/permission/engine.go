package permission

import (
	"go.uber.org/fx"

	"github.com/bizcore/bizcore/internal/config"
	"github.com/bizcore/bizcore/internal/types"
)

// Table is the static role configuration the engine evaluates against.
// It is immutable after construction; build a fresh engine per test instead
// of mutating a shared one.
type Table struct {
	Grants    map[types.Role][]types.Permission
	Hierarchy map[types.Role]int
}

// Engine answers permission and hierarchy questions for a set of actor roles.
// It is a pure function over the injected tables: no I/O, no side effects,
// deterministic, and it never returns an error. Unknown roles grant nothing.
type Engine struct {
	grants    map[types.Role]map[types.Permission]struct{}
	hierarchy map[types.Role]int
}

// Module provides the permission engine to the fx application
func Module() fx.Option {
	return fx.Provide(NewEngineFromConfig)
}

// NewEngine builds an engine from an explicit table
func NewEngine(table Table) *Engine {
	grants := make(map[types.Role]map[types.Permission]struct{}, len(table.Grants))
	for role, perms := range table.Grants {
		set := make(map[types.Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		grants[role] = set
	}

	hierarchy := make(map[types.Role]int, len(table.Hierarchy))
	for role, level := range table.Hierarchy {
		hierarchy[role] = level
	}

	return &Engine{grants: grants, hierarchy: hierarchy}
}

// NewEngineFromConfig builds an engine from the startup configuration
func NewEngineFromConfig(cfg *config.Configuration) *Engine {
	table := Table{
		Grants:    make(map[types.Role][]types.Permission, len(cfg.Auth.RolePermissions)),
		Hierarchy: make(map[types.Role]int, len(cfg.Auth.RoleHierarchy)),
	}
	for role, perms := range cfg.Auth.RolePermissions {
		list := make([]types.Permission, 0, len(perms))
		for _, p := range perms {
			list = append(list, types.Permission(p))
		}
		table.Grants[types.Role(role)] = list
	}
	for role, level := range cfg.Auth.RoleHierarchy {
		table.Hierarchy[types.Role(role)] = level
	}
	return NewEngine(table)
}

// Authorize reports whether any of the actor's roles grants the required
// permission. Unknown roles are treated as granting nothing.
func (e *Engine) Authorize(actorRoles []types.Role, required types.Permission) bool {
	for _, role := range actorRoles {
		if perms, ok := e.grants[role]; ok {
			if _, granted := perms[required]; granted {
				return true
			}
		}
	}
	return false
}

// HasHierarchyAtLeast reports whether any of the actor's roles sits at or
// above the required role's hierarchy level. Roles without a configured
// level never satisfy the check, and an unknown required role can never be
// satisfied.
func (e *Engine) HasHierarchyAtLeast(actorRoles []types.Role, required types.Role) bool {
	requiredLevel, ok := e.hierarchy[required]
	if !ok {
		return false
	}
	for _, role := range actorRoles {
		if level, ok := e.hierarchy[role]; ok && level >= requiredLevel {
			return true
		}
	}
	return false
}

// Level returns the hierarchy level of a role, or -1 if unknown
func (e *Engine) Level(role types.Role) int {
	if level, ok := e.hierarchy[role]; ok {
		return level
	}
	return -1
}
