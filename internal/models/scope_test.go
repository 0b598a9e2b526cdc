package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopesForRoleUser(t *testing.T) {
	scopes := ScopesForRole(RoleUser)

	assert.True(t, scopes.Has(ScopeUserRead))
	assert.True(t, scopes.Has(ScopeProfileRead))
	assert.True(t, scopes.Has(ScopeProfileWrite))
	assert.False(t, scopes.Has(ScopeAdminRead))
	assert.False(t, scopes.Has(ScopeUserWrite))
	assert.Len(t, scopes, 3)
}

// Each role's scope set must contain every scope of the role below it,
// checked per individual scope rather than by cardinality.
func TestScopeHierarchyMonotonic(t *testing.T) {
	user := ScopesForRole(RoleUser)
	moderator := ScopesForRole(RoleModerator)
	admin := ScopesForRole(RoleAdmin)

	for scope := range user {
		assert.True(t, moderator.Has(scope), "moderator missing user scope %s", scope)
	}
	for scope := range moderator {
		assert.True(t, admin.Has(scope), "admin missing moderator scope %s", scope)
	}
}

func TestScopesForRoleStable(t *testing.T) {
	first := ScopesForRole(RoleModerator)
	second := ScopesForRole(RoleModerator)

	require.Equal(t, first, second)
	assert.Equal(t, first.Strings(), second.Strings())
}

func TestScopesForRoleUnknownIsEmpty(t *testing.T) {
	assert.Empty(t, ScopesForRole(Role("superuser")))
	assert.Empty(t, ScopesForRole(Role("")))
}

// Mutating a resolved set must not leak into the static table.
func TestScopesForRoleReturnsCopy(t *testing.T) {
	scopes := ScopesForRole(RoleUser)
	scopes[ScopeAdminDelete] = struct{}{}

	assert.False(t, ScopesForRole(RoleUser).Has(ScopeAdminDelete))
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("ADMIN")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	role, err = ParseRole(" moderator ")
	require.NoError(t, err)
	assert.Equal(t, RoleModerator, role)

	_, err = ParseRole("root")
	assert.Error(t, err)

	_, err = ParseRole("")
	assert.Error(t, err)
}

func TestScopeSetContains(t *testing.T) {
	admin := ScopesForRole(RoleAdmin)
	moderator := ScopesForRole(RoleModerator)

	assert.True(t, admin.Contains(moderator))
	assert.False(t, moderator.Contains(admin))
}
