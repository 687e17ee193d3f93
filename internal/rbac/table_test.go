package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGrants_AdminHasEverything(t *testing.T) {
	perms := []string{
		PermCreateUser, PermDeleteUser, PermUpdateUser, PermListUsers,
		PermModifyTenantSettings, PermViewTenantSettings,
		PermAccessBilling,
		PermUploadDocument, PermEditDocument, PermDeleteDocument, PermViewDocument, PermSearchDocuments,
		PermOverrideAIDecision,
		PermTrainModel, PermSystemAdmin,
	}
	for _, p := range perms {
		assert.True(t, Grants(string(RoleAdmin), p), "admin should be granted %s", p)
	}
}

func TestGrants_ViewerIsReadOnly(t *testing.T) {
	assert.True(t, Grants(string(RoleViewer), PermViewDocument))
	assert.True(t, Grants(string(RoleViewer), PermSearchDocuments))
	assert.True(t, Grants(string(RoleViewer), PermViewTenantSettings))

	assert.False(t, Grants(string(RoleViewer), PermUploadDocument))
	assert.False(t, Grants(string(RoleViewer), PermDeleteDocument))
	assert.False(t, Grants(string(RoleViewer), PermCreateUser))
	assert.False(t, Grants(string(RoleViewer), PermSystemAdmin))
}

func TestGrants_IngestionIsUploadOnly(t *testing.T) {
	assert.True(t, Grants(string(RoleIngestion), PermUploadDocument))
	assert.False(t, Grants(string(RoleIngestion), PermViewDocument))
	assert.False(t, Grants(string(RoleIngestion), PermDeleteDocument))
}

func TestGrants_AnalystCanOverrideAIDecisionsButNotManageUsers(t *testing.T) {
	assert.True(t, Grants(string(RoleAnalyst), PermOverrideAIDecision))
	assert.True(t, Grants(string(RoleAnalyst), PermEditDocument))
	assert.False(t, Grants(string(RoleAnalyst), PermCreateUser))
	assert.False(t, Grants(string(RoleAnalyst), PermSystemAdmin))
}

func TestGrants_RoleMatchIsCaseInsensitive(t *testing.T) {
	assert.True(t, Grants("ADMIN", PermSystemAdmin))
	assert.True(t, Grants("Admin", PermSystemAdmin))
}

func TestGrants_UnknownRoleGrantsNothing(t *testing.T) {
	assert.False(t, Grants("superuser", PermViewDocument))
	assert.False(t, Grants("", PermViewDocument))
}

func TestGrants_UnknownPermissionIsNeverGranted(t *testing.T) {
	assert.False(t, Grants(string(RoleAdmin), "launch_missiles"))
}
