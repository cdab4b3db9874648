// Package permissions maps operator roles to permissions and guards routes
// with them.
//
// Permission Format:
//   - "*" - Full access (all permissions)
//   - "resource.*" - All actions on a resource (e.g., "inventory.*")
//   - "resource.action" - Specific action (e.g., "catalog.import")
package permissions

import (
	"net/http"
	"strings"

	"github.com/medsupply/medsupply-backend/pkg/errors"
	"github.com/medsupply/medsupply-backend/pkg/httputil"
)

// Permissions checked by the inventory API
const (
	InventoryRead   = "inventory.read"
	InventoryAdjust = "inventory.adjust"
	CatalogImport   = "catalog.import"
	ExpiryManage    = "expiry.manage"
)

// Roles carried in the token's role claim
const (
	RoleAdmin    = "admin"
	RoleManager  = "inventory_manager"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

var rolePermissions = map[string][]string{
	RoleAdmin:    {"*"},
	RoleManager:  {"inventory.*", "catalog.*", "expiry.*"},
	RoleOperator: {InventoryRead, InventoryAdjust, CatalogImport},
	RoleViewer:   {InventoryRead},
}

// ForRole returns the permissions granted to role. Unknown roles get none.
func ForRole(role string) []string {
	return rolePermissions[role]
}

// HasPermission checks if the user's permissions include the required permission.
// Supports wildcard matching:
//   - "*" matches everything
//   - "inventory.*" matches "inventory.read", "inventory.adjust", etc.
//   - Exact match for specific permissions
func HasPermission(userPerms []string, required string) bool {
	if required == "" {
		return true
	}

	for _, p := range userPerms {
		if p == "*" || p == required {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(required, prefix+".") {
				return true
			}
		}
	}
	return false
}

// RoleAllows reports whether role grants the required permission
func RoleAllows(role, required string) bool {
	return HasPermission(ForRole(role), required)
}

// Require rejects requests whose authenticated role lacks the permission.
// It must run after the token middleware.
func Require(required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := httputil.GetUserRole(r.Context())
			if !RoleAllows(role, required) {
				httputil.Error(w, errors.Forbidden("missing permission "+required))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
