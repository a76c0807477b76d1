package service

import (
	"slices"

	"github.com/aussiebroadwan/dealerdesk/pkg/jwtx"
)

// Permissions granted to each role at account creation.
var rolePermissions = map[jwtx.Role][]string{
	jwtx.RoleAdmin: {
		"users:read", "users:write",
		"distributors:read", "distributors:write",
		"retailers:read", "retailers:write",
		"orders:read", "orders:write",
		"reports:read",
	},
	jwtx.RoleDistributor: {
		"retailers:read", "retailers:write",
		"orders:read", "orders:write",
		"reports:read",
	},
	jwtx.RoleSalesman: {
		"retailers:read",
		"orders:read", "orders:write",
	},
	jwtx.RoleRetailer: {
		"orders:read", "orders:write",
	},
}

// PermissionsFor returns a copy of the permissions granted to role.
func PermissionsFor(role jwtx.Role) []string {
	return slices.Clone(rolePermissions[role])
}

// selfRegistrable reports whether role may be chosen at registration.
func selfRegistrable(role jwtx.Role) bool {
	return role.Known() && role != jwtx.RoleAdmin
}
