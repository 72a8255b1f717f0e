package rbac

// Role is a role a user can hold inside a tenant
type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleTenantAdmin Role = "tenant_admin"
	RoleInstructor  Role = "instructor"
	RoleStudent     Role = "student"
)

// Permission names an operation guarded by the role gate
type Permission string

const (
	PermCourseView       Permission = "course:view"
	PermCourseCreate     Permission = "course:create"
	PermCourseEnroll     Permission = "course:enroll"
	PermEnrollmentOwn    Permission = "enrollment:own"
	PermEnrollmentManage Permission = "enrollment:manage"
	PermProfileManage    Permission = "profile:manage"
	PermReportExport     Permission = "report:export"
	PermTenantSettings   Permission = "tenant:settings"
	PermQuotaView        Permission = "quota:view"
	PermUserImpersonate  Permission = "user:impersonate"
)

var learner = []Permission{
	PermCourseView,
	PermCourseEnroll,
	PermEnrollmentOwn,
	PermProfileManage,
}

// RolePermissions is the static permission table. super_admin is absent on
// purpose: it bypasses the table entirely.
var RolePermissions = map[Role][]Permission{
	RoleStudent:    learner,
	RoleInstructor: append(append([]Permission{}, learner...), PermCourseCreate),
	RoleTenantAdmin: append(append([]Permission{}, learner...),
		PermCourseCreate,
		PermEnrollmentManage,
		PermReportExport,
		PermTenantSettings,
		PermQuotaView,
	),
}

// rank orders roles from most to least privileged
var rank = map[Role]int{
	RoleSuperAdmin:  0,
	RoleTenantAdmin: 1,
	RoleInstructor:  2,
	RoleStudent:     3,
}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	_, ok := rank[r]
	return ok
}

// HasPermission checks a single role against the table
func HasPermission(role Role, perm Permission) bool {
	if role == RoleSuperAdmin {
		return true
	}
	for _, p := range RolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// Allowed reports whether any of the roles grants perm
func Allowed(roles []Role, perm Permission) bool {
	for _, r := range roles {
		if HasPermission(r, perm) {
			return true
		}
	}
	return false
}

// Parse converts role names, dropping unknown ones
func Parse(names []string) []Role {
	roles := make([]Role, 0, len(names))
	for _, n := range names {
		if r := Role(n); r.Valid() {
			roles = append(roles, r)
		}
	}
	return roles
}

// Primary returns the most privileged role, or "" when roles is empty
func Primary(roles []Role) Role {
	var best Role
	for _, r := range roles {
		if best == "" || rank[r] < rank[best] {
			best = r
		}
	}
	return best
}

// Names converts roles to strings, most privileged first
func Names(roles []Role) []string {
	sorted := append([]Role{}, roles...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && rank[sorted[j]] < rank[sorted[j-1]]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	out := make([]string, len(sorted))
	for i, r := range sorted {
		out[i] = string(r)
	}
	return out
}
