package models

import "sort"

// Scope is a named capability granted to a role.
type Scope string

const (
	ScopeUserRead   Scope = "user:read"
	ScopeUserWrite  Scope = "user:write"
	ScopeUserDelete Scope = "user:delete"

	ScopeProfileRead  Scope = "profile:read"
	ScopeProfileWrite Scope = "profile:write"

	ScopeAdminRead   Scope = "admin:read"
	ScopeAdminWrite  Scope = "admin:write"
	ScopeAdminDelete Scope = "admin:delete"

	ScopeStatsRead Scope = "stats:read"
	ScopeLogsRead  Scope = "logs:read"
)

// ScopeSet is a set of capability strings.
type ScopeSet map[Scope]struct{}

// NewScopeSet builds a set from the given scopes.
func NewScopeSet(scopes ...Scope) ScopeSet {
	set := make(ScopeSet, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return set
}

// Has reports whether the scope is in the set.
func (s ScopeSet) Has(scope Scope) bool {
	_, ok := s[scope]
	return ok
}

// Contains reports whether every scope of other is in the set.
func (s ScopeSet) Contains(other ScopeSet) bool {
	for scope := range other {
		if !s.Has(scope) {
			return false
		}
	}
	return true
}

// Strings returns the scopes as a sorted string slice, suitable for
// embedding in token claims.
func (s ScopeSet) Strings() []string {
	out := make([]string, 0, len(s))
	for scope := range s {
		out = append(out, string(scope))
	}
	sort.Strings(out)
	return out
}

// roleScopes is the static role → capability table. Each role's set is a
// superset of the one below it.
var roleScopes = map[Role]ScopeSet{
	RoleUser: NewScopeSet(
		ScopeUserRead,
		ScopeProfileRead,
		ScopeProfileWrite,
	),
	RoleModerator: NewScopeSet(
		ScopeUserRead,
		ScopeProfileRead,
		ScopeProfileWrite,
		ScopeStatsRead,
		ScopeLogsRead,
	),
	RoleAdmin: NewScopeSet(
		ScopeUserRead,
		ScopeUserWrite,
		ScopeUserDelete,
		ScopeProfileRead,
		ScopeProfileWrite,
		ScopeAdminRead,
		ScopeAdminWrite,
		ScopeAdminDelete,
		ScopeStatsRead,
		ScopeLogsRead,
	),
}

// ScopesForRole resolves the capability set for a role. Unknown roles
// resolve to the empty set so authorization fails closed.
func ScopesForRole(role Role) ScopeSet {
	scopes, ok := roleScopes[role]
	if !ok {
		return ScopeSet{}
	}
	// Copy so callers cannot mutate the static table.
	out := make(ScopeSet, len(scopes))
	for s := range scopes {
		out[s] = struct{}{}
	}
	return out
}
