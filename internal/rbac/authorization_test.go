package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleStudent, PermCourseEnroll, true},
		{RoleStudent, PermCourseCreate, false},
		{RoleStudent, PermEnrollmentManage, false},
		{RoleInstructor, PermCourseCreate, true},
		{RoleInstructor, PermReportExport, false},
		{RoleTenantAdmin, PermReportExport, true},
		{RoleTenantAdmin, PermUserImpersonate, false},
		{RoleSuperAdmin, PermUserImpersonate, true},
		{RoleSuperAdmin, Permission("anything"), true},
		{Role("ghost"), PermCourseView, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.role, tt.perm))
		})
	}
}

func TestInstructorTableDoesNotAliasStudent(t *testing.T) {
	for _, p := range RolePermissions[RoleStudent] {
		assert.NotEqual(t, PermCourseCreate, p)
	}
}

func TestAllowedAnyRole(t *testing.T) {
	assert.True(t, Allowed([]Role{RoleStudent, RoleInstructor}, PermCourseCreate))
	assert.False(t, Allowed(nil, PermCourseView))
}

func TestPrimaryAndNames(t *testing.T) {
	roles := Parse([]string{"student", "bogus", "tenant_admin", "instructor"})

	assert.Len(t, roles, 3)
	assert.Equal(t, RoleTenantAdmin, Primary(roles))
	assert.Equal(t, []string{"tenant_admin", "instructor", "student"}, Names(roles))
	assert.Equal(t, Role(""), Primary(nil))
}
