package identity

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edecs/academy/core"
)

func TestCanAccess(t *testing.T) {
	courses := map[string]CourseGrant{
		"c1": {HasAccess: true, SubCourses: map[string]bool{"s2": false}},
		"c2": {SubCourses: map[string]bool{"s1": true, "s2": false}},
		"c3": {SubCourses: map[string]bool{"s1": false}},
	}

	tests := []struct {
		name        string
		role        Role
		courseID    string
		subCourseID string
		want        bool
	}{
		{name: "course grant", role: RoleUser, courseID: "c1", want: true},
		{name: "course grant covers sub-course", role: RoleUser, courseID: "c1", subCourseID: "s1", want: true},
		{name: "sub-course override", role: RoleUser, courseID: "c1", subCourseID: "s2", want: false},
		{name: "course visible through a sub-course", role: RoleUser, courseID: "c2", want: true},
		{name: "granted sub-course", role: RoleUser, courseID: "c2", subCourseID: "s1", want: true},
		{name: "revoked sub-course", role: RoleUser, courseID: "c2", subCourseID: "s2", want: false},
		{name: "unlisted sub-course", role: RoleUser, courseID: "c2", subCourseID: "s3", want: false},
		{name: "no granted sub-course", role: RoleUser, courseID: "c3", want: false},
		{name: "no entry", role: RoleUser, courseID: "c4", want: false},
		{name: "disabled", role: RoleDisabled, courseID: "c1", want: false},
		{name: "disabled sub-course", role: RoleDisabled, courseID: "c1", subCourseID: "s1", want: false},
		{name: "admin", role: RoleAdmin, courseID: "c4", want: true},
		{name: "super admin", role: RoleSuperAdmin, courseID: "c2", subCourseID: "s2", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grant := RoleGrant{Email: "u@test.io", Role: tt.role, Courses: courses}
			if got := CanAccess(grant, tt.courseID, tt.subCourseID); got != tt.want {
				t.Errorf("CanAccess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "User", want: RoleUser},
		{in: "user", want: RoleUser},
		{in: "Admin", want: RoleAdmin},
		{in: "administrator", want: RoleAdmin},
		{in: "Super Admin", want: RoleSuperAdmin},
		{in: "superAdmin", want: RoleSuperAdmin},
		{in: " Disabled ", want: RoleDisabled},
		{in: "", wantErr: true},
		{in: "root", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRole() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRole() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRolePriority(t *testing.T) {
	assert.Greater(t, RoleSuperAdmin.Priority(), RoleAdmin.Priority())
	assert.Greater(t, RoleAdmin.Priority(), RoleUser.Priority())
	assert.Greater(t, RoleUser.Priority(), RoleDisabled.Priority())
	assert.False(t, Role("Owner").IsValid())
}

func TestRoleGrant_JSON(t *testing.T) {
	stored := `{
		"email": "u@test.io",
		"role": "Super Admin",
		"courses": {
			"c1": {"hasAccess": true, "s1": {"hasAccess": false}},
			"c2": {"s2": {"hasAccess": true}}
		}
	}`

	var grant RoleGrant
	require.NoError(t, json.Unmarshal([]byte(stored), &grant))
	assert.Equal(t, RoleSuperAdmin, grant.Role)
	assert.Equal(t, CourseGrant{HasAccess: true, SubCourses: map[string]bool{"s1": false}}, grant.Courses["c1"])
	assert.Equal(t, CourseGrant{SubCourses: map[string]bool{"s2": true}}, grant.Courses["c2"])
	assert.Equal(t, []string{"c1", "c2"}, grant.CourseIDs())

	data, err := json.Marshal(grant.Courses["c1"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"hasAccess": true, "s1": {"hasAccess": false}}`, string(data))
}

func TestCourseGrant_Malformed(t *testing.T) {
	tests := map[string]string{
		"not an object":      `true`,
		"hasAccess string":   `{"hasAccess": "yes"}`,
		"sub-course bool":    `{"s1": true}`,
		"sub-course no flag": `{"s1": {}}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			var cg CourseGrant
			assert.Error(t, json.Unmarshal([]byte(data), &cg))
		})
	}
}

func TestPasswordPolicy(t *testing.T) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)

	tests := []struct {
		name    string
		pwd     string
		wantTag string
	}{
		{name: "too short", pwd: "Ab1!", wantTag: pwdMinLenTag},
		{name: "whitespace", pwd: "Abcd 123!", wantTag: pwdNoSpaceTag},
		{name: "numeric", pwd: "1234567890", wantTag: pwdNotAllNumTag},
		{name: "not complex", pwd: "abcdefgh1", wantTag: pwdComplexityTag},
		{name: "similar to name", pwd: "Jonathan.Doe1", wantTag: pwdAttrSimTag},
		{name: "common", pwd: "P@ssw0rd", wantTag: pwdNoCommonTag},
		{name: "valid", pwd: "Ch0colate.Rain!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			np := NewPrincipal{
				Email:           "jd@test.io",
				Name:            "Jonathan Doe",
				Password:        tt.pwd,
				PasswordConfirm: tt.pwd,
			}
			err := validate.Struct(np)
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}
			verrs, ok := err.(validator.ValidationErrors)
			if assert.True(t, ok, "got %v", err) && assert.Len(t, verrs, 1) {
				assert.Equal(t, tt.wantTag, verrs[0].Tag())
			}
		})
	}
}
