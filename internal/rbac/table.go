// Package rbac defines the closed role and permission sets and the static
// role→permission table. Enforcement against a request's Claims lives in
// the authorization guard (internal/middleware/authz.go), which calls
// Grants.
//
// The role→permission table is a static, code-level map, not a database
// table: a platform this small has four roles and around fifteen
// permissions, and making that data-driven would add an extra
// control-plane round trip to every authorization decision for no
// practical gain. If the role model grows, this file grows with it.
package rbac

import "strings"

// Role is one of the four closed roles a Claims subject can present.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleAnalyst   Role = "analyst"
	RoleViewer    Role = "viewer"
	RoleIngestion Role = "ingestion"
)

// Permission names, grouped by the resource they govern.
const (
	PermCreateUser = "create_user"
	PermDeleteUser = "delete_user"
	PermUpdateUser = "update_user"
	PermListUsers  = "list_users"

	PermModifyTenantSettings = "modify_tenant_settings"
	PermViewTenantSettings   = "view_tenant_settings"

	PermAccessBilling = "access_billing"

	PermUploadDocument  = "upload_document"
	PermEditDocument    = "edit_document"
	PermDeleteDocument  = "delete_document"
	PermViewDocument    = "view_document"
	PermSearchDocuments = "search_documents"

	PermOverrideAIDecision = "override_ai_decision"

	PermTrainModel  = "train_model"
	PermSystemAdmin = "system_admin"
)

// table maps each role to the set of permissions it grants.
var table = map[Role]map[string]bool{
	RoleAdmin: setOf(
		PermCreateUser, PermDeleteUser, PermUpdateUser, PermListUsers,
		PermModifyTenantSettings, PermViewTenantSettings,
		PermAccessBilling,
		PermUploadDocument, PermEditDocument, PermDeleteDocument, PermViewDocument, PermSearchDocuments,
		PermOverrideAIDecision,
		PermTrainModel, PermSystemAdmin,
	),
	RoleAnalyst: setOf(
		PermViewTenantSettings,
		PermUploadDocument, PermEditDocument, PermDeleteDocument, PermViewDocument, PermSearchDocuments,
		PermOverrideAIDecision,
	),
	RoleViewer: setOf(
		PermViewTenantSettings,
		PermViewDocument, PermSearchDocuments,
	),
	RoleIngestion: setOf(
		PermUploadDocument,
	),
}

func setOf(perms ...string) map[string]bool {
	m := make(map[string]bool, len(perms))
	for _, p := range perms {
		m[p] = true
	}
	return m
}

// Grants reports whether role grants permission. Role names are matched
// case-insensitively and unrecognized roles grant nothing.
func Grants(role string, permission string) bool {
	return table[Role(strings.ToLower(role))][permission]
}
