package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestClaims_HasRole_CaseInsensitive(t *testing.T) {
	c := &Claims{TenantID: uuid.New(), Roles: []string{"Admin", "viewer"}}

	assert.True(t, c.HasRole("admin"))
	assert.True(t, c.HasRole("ADMIN"))
	assert.True(t, c.HasRole("viewer"))
	assert.False(t, c.HasRole("analyst"))
}

func TestClaims_HasAnyRole(t *testing.T) {
	c := &Claims{TenantID: uuid.New(), Roles: []string{"viewer"}}

	assert.True(t, c.HasAnyRole([]string{"admin", "viewer"}))
	assert.False(t, c.HasAnyRole([]string{"admin", "analyst"}))
}

func TestClaims_RolesHash_OrderIndependent(t *testing.T) {
	a := &Claims{Roles: []string{"admin", "viewer"}}
	b := &Claims{Roles: []string{"Viewer", "ADMIN"}}

	assert.Equal(t, a.RolesHash(), b.RolesHash())
}

func TestClaims_RolesHash_DistinctForDifferentSets(t *testing.T) {
	a := &Claims{Roles: []string{"admin"}}
	b := &Claims{Roles: []string{"viewer"}}

	assert.NotEqual(t, a.RolesHash(), b.RolesHash())
}
