package identity

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/edecs/academy/core"
)

// Role is the canonical role of a principal.
type Role string

// Roles
const (
	RoleDisabled   Role = "Disabled"
	RoleUser       Role = "User"
	RoleAdmin      Role = "Admin"
	RoleSuperAdmin Role = "SuperAdmin"
)

var (
	rolePriorities = map[Role]int{
		RoleSuperAdmin: 30,
		RoleAdmin:      21,
		RoleUser:       1,
		RoleDisabled:   0,
	}

	// legacy spellings found in stored records, lowered & stripped of spaces
	roleAliases = map[string]Role{
		"disabled":      RoleDisabled,
		"user":          RoleUser,
		"admin":         RoleAdmin,
		"administrator": RoleAdmin,
		"superadmin":    RoleSuperAdmin,
	}

	Roles = []RoleInfo{
		{Name: "User", Value: RoleUser},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Super Admin", Value: RoleSuperAdmin},
		{Name: "Disabled", Value: RoleDisabled},
	}

	errUnknownRole = errors.New("unknown role")
)

// ParseRole maps a stored or user-supplied role name to its canonical Role.
func ParseRole(s string) (Role, error) {
	key := strings.ToLower(strings.Join(strings.Fields(s), ""))
	if role, ok := roleAliases[key]; ok {
		return role, nil
	}
	return "", errors.Wrapf(errUnknownRole, "%q", s)
}

func (r Role) Priority() int { return rolePriorities[r] }

func (r Role) IsAdmin() bool { return r == RoleAdmin || r == RoleSuperAdmin }

func (r Role) IsValid() bool {
	_, ok := rolePriorities[r]
	return ok
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	role, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = role
	return nil
}

type RoleInfo struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

// Principal is a known user, stored at users/{emailKey}.
type Principal struct {
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Department string    `json:"department,omitempty"`
	Role       Role      `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CourseGrant holds the access flags of one course: the course-level flag and per sub-course overrides.
type CourseGrant struct {
	HasAccess  bool
	SubCourses map[string]bool
}

type accessFlag struct {
	HasAccess *bool `json:"hasAccess"`
}

// MarshalJSON writes the stored shape: {"hasAccess": bool, "<subCourseId>": {"hasAccess": bool}, ...}.
func (cg CourseGrant) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(cg.SubCourses)+1)
	m["hasAccess"] = cg.HasAccess
	for id, ok := range cg.SubCourses {
		m[id] = map[string]bool{"hasAccess": ok}
	}
	return json.Marshal(m)
}

func (cg *CourseGrant) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "course grant must be an object")
	}
	grant := CourseGrant{SubCourses: make(map[string]bool)}
	for key, val := range raw {
		if key == "hasAccess" {
			if err := json.Unmarshal(val, &grant.HasAccess); err != nil {
				return errors.Wrap(err, "hasAccess must be a boolean")
			}
			continue
		}
		var flag accessFlag
		if err := json.Unmarshal(val, &flag); err != nil || flag.HasAccess == nil {
			return errors.Errorf("sub-course grant %q must be {\"hasAccess\": bool}", key)
		}
		grant.SubCourses[key] = *flag.HasAccess
	}
	*cg = grant
	return nil
}

// RoleGrant is a principal's role plus per-course access flags, stored at roles/{emailKey}.
type RoleGrant struct {
	Email   string                 `json:"email"`
	Role    Role                   `json:"role"`
	Courses map[string]CourseGrant `json:"courses"`
}

// DefaultGrant is the grant of a principal without a stored record.
func DefaultGrant(email string) RoleGrant {
	return RoleGrant{
		Email:   core.CleanString(email, true /* lower */),
		Role:    RoleUser,
		Courses: make(map[string]CourseGrant),
	}
}

func (g RoleGrant) IsAdmin() bool { return g.Role.IsAdmin() }

// CourseIDs returns the ids of the courses holding an entry, sorted.
func (g RoleGrant) CourseIDs() []string {
	ids := make([]string, 0, len(g.Courses))
	for id := range g.Courses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (g RoleGrant) clone() RoleGrant {
	c := RoleGrant{Email: g.Email, Role: g.Role, Courses: make(map[string]CourseGrant, len(g.Courses))}
	for id, cg := range g.Courses {
		subs := make(map[string]bool, len(cg.SubCourses))
		for sid, ok := range cg.SubCourses {
			subs[sid] = ok
		}
		c.Courses[id] = CourseGrant{HasAccess: cg.HasAccess, SubCourses: subs}
	}
	return c
}

// Credential is the password hash of a principal, stored at credentials/{emailKey}.
type Credential struct {
	Email        string     `json:"email"`
	PasswordHash []byte     `json:"passwordHash"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

func (c *Credential) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	c.PasswordHash = hash
	return nil
}

func (c *Credential) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(c.PasswordHash, []byte(pwd))
}

// NewPrincipal contains information needed to create a new Principal.
type NewPrincipal struct {
	Email           string `json:"email" validate:"required,email"`
	Name            string `json:"name" validate:"required,notblank"`
	Department      string `json:"department"`
	Role            string `json:"role" validate:"omitempty,role"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func (np *NewPrincipal) clean() {
	np.Email = core.CleanString(np.Email, true /* lower */)
	np.Name = core.CleanString(np.Name)
	np.Department = core.CleanString(np.Department)
	np.Role = core.CleanString(np.Role)
}

// SetPassword defines the information needed to change a password.
type SetPassword struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}
