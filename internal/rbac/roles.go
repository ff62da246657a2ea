package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAdmin      = "admin"
	RolePlanner    = "planner"
	RoleService    = "service" // workflow engine and other machine callers
	RoleSuperAdmin = "super_admin"
	RoleSupport    = "support" // hidden role
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleSupport }

func IsKnownRole(role string) bool {
	switch role {
	case RoleAdmin, RolePlanner, RoleService, RoleSuperAdmin, RoleSupport:
		return true
	default:
		return false
	}
}
