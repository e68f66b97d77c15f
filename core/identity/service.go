package identity

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
)

var (
	// errors
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")

	errNoPermsToSetRole = "not enough rights to set this role"
	errOwnRole          = "you cannot change your own role"

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

// Service resolves roles and manages principals, credentials & course grants.
// Every privileged operation re-reads the acting principal's grant from the store.
type Service struct {
	store    core.DataStore
	validate *validator.Validate
	logger   core.Logger
	sessions *Sessions
}

func NewService(store core.DataStore, validate *validator.Validate, logger core.Logger) *Service {
	return &Service{
		store:    store,
		validate: validate,
		logger:   logger,
		sessions: newSessions(),
	}
}

// Resolve fetches the RoleGrant of email. A principal without a stored grant is a User without course access.
func (svc *Service) Resolve(ctx context.Context, email string) (RoleGrant, error) {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return RoleGrant{}, core.ErrAuthRequired
	}

	var grant RoleGrant
	if err := svc.store.Get(ctx, core.GrantPath(email), &grant); err != nil {
		if core.IsNotFound(err) {
			return DefaultGrant(email), nil
		}
		return RoleGrant{}, core.StoreError(err, "resolving role")
	}
	grant.Email = email
	if grant.Courses == nil {
		grant.Courses = make(map[string]CourseGrant)
	}
	return grant, nil
}

// Authorize re-fetches the grant of email and checks it against a course (and optional sub-course).
func (svc *Service) Authorize(ctx context.Context, email, courseID, subCourseID string) (RoleGrant, error) {
	grant, err := svc.Resolve(ctx, email)
	if err != nil {
		return RoleGrant{}, err
	}
	if !CanAccess(grant, courseID, subCourseID) {
		return RoleGrant{}, errors.Wrapf(core.ErrAccessDenied, "%s on %s", grant.Email, core.JoinPath(courseID, subCourseID))
	}
	return grant, nil
}

// RequireActive re-fetches the grant of email and rejects disabled principals.
func (svc *Service) RequireActive(ctx context.Context, email string) (RoleGrant, error) {
	grant, err := svc.Resolve(ctx, email)
	if err != nil {
		return RoleGrant{}, err
	}
	if grant.Role == RoleDisabled {
		return RoleGrant{}, errors.Wrap(core.ErrAccessDenied, ErrAccountDisabled.Error())
	}
	return grant, nil
}

// RequireAdmin re-fetches the grant of email and rejects non-administrators.
func (svc *Service) RequireAdmin(ctx context.Context, email string) (RoleGrant, error) {
	grant, err := svc.Resolve(ctx, email)
	if err != nil {
		return RoleGrant{}, err
	}
	if !grant.IsAdmin() {
		return RoleGrant{}, errors.Wrapf(core.ErrAccessDenied, "%s is not an administrator", grant.Email)
	}
	return grant, nil
}

// SetAccess grants or revokes access to a course, or to one of its sub-courses when subCourseID is not empty.
// Setting a course-level flag replaces the whole course entry; revoking it removes the entry.
func (svc *Service) SetAccess(ctx context.Context, actor, email, courseID, subCourseID string, hasAccess bool) (RoleGrant, error) {
	if _, err := svc.RequireAdmin(ctx, actor); err != nil {
		return RoleGrant{}, err
	}

	target := core.CoursePath(courseID)
	if subCourseID != "" {
		target = core.SubCoursePath(courseID, subCourseID)
	}
	var raw json.RawMessage
	if err := svc.store.Get(ctx, target, &raw); err != nil {
		return RoleGrant{}, core.StoreError(err, "checking course")
	}

	grant, err := svc.Resolve(ctx, email)
	if err != nil {
		return RoleGrant{}, err
	}
	grant = grant.clone()
	switch {
	case subCourseID == "" && hasAccess:
		grant.Courses[courseID] = CourseGrant{HasAccess: true, SubCourses: map[string]bool{}}
	case subCourseID == "":
		delete(grant.Courses, courseID)
	default:
		cg, ok := grant.Courses[courseID]
		if !ok {
			cg = CourseGrant{SubCourses: map[string]bool{}}
		}
		cg.SubCourses[subCourseID] = hasAccess
		grant.Courses[courseID] = cg
	}

	if err = svc.store.Set(ctx, core.GrantPath(email), grant); err != nil {
		return RoleGrant{}, core.StoreError(err, "setting access")
	}
	return grant, nil
}

// Register creates a self-registered principal with the User role.
// A grant stored ahead of registration (courses assigned by an administrator) is kept.
func (svc *Service) Register(ctx context.Context, np NewPrincipal) (Principal, error) {
	np.Role = ""
	return svc.create(ctx, np)
}

// CreatePrincipal creates a principal on behalf of an administrator, who cannot grant a role above their own.
func (svc *Service) CreatePrincipal(ctx context.Context, actor string, np NewPrincipal) (Principal, error) {
	actorGrant, err := svc.RequireAdmin(ctx, actor)
	if err != nil {
		return Principal{}, err
	}
	if np.Role != "" {
		role, err := ParseRole(np.Role)
		if err == nil && role.Priority() > actorGrant.Role.Priority() {
			return Principal{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNoPermsToSetRole})
		}
	}
	return svc.create(ctx, np)
}

// Bootstrap creates or updates a principal without an acting administrator. Used by the admin CLI.
func (svc *Service) Bootstrap(ctx context.Context, np NewPrincipal) (Principal, error) {
	np.clean()
	if err := svc.validate.Struct(np); err != nil {
		return Principal{}, err
	}
	role, _ := ParseRole(np.Role)
	if role == "" {
		role = RoleUser
	}

	usr, err := svc.GetPrincipal(ctx, np.Email)
	if err != nil && !core.IsNotFound(err) {
		return Principal{}, err
	}
	if err != nil {
		usr = Principal{Email: np.Email, CreatedAt: nowFunc()}
	}
	usr.Name = np.Name
	usr.Department = np.Department
	usr.Role = role

	grant, err := svc.Resolve(ctx, np.Email)
	if err != nil {
		return Principal{}, err
	}
	grant.Role = role

	cred := Credential{Email: np.Email}
	if err = cred.SetPassword(np.Password); err != nil {
		return Principal{}, errors.Wrap(err, "hashing password")
	}
	err = svc.store.Update(ctx, map[string]interface{}{
		core.PrincipalPath(np.Email):  usr,
		core.GrantPath(np.Email):      grant,
		core.CredentialPath(np.Email): cred,
	})
	return usr, core.StoreError(err, "saving principal")
}

func (svc *Service) create(ctx context.Context, np NewPrincipal) (Principal, error) {
	np.clean()
	if err := svc.validate.Struct(np); err != nil {
		return Principal{}, err
	}
	role := RoleUser
	if np.Role != "" {
		role, _ = ParseRole(np.Role) // checked by the `role` tag
	}

	if _, err := svc.GetPrincipal(ctx, np.Email); err == nil {
		return Principal{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	} else if !core.IsNotFound(err) {
		return Principal{}, err
	}

	grant, err := svc.Resolve(ctx, np.Email)
	if err != nil {
		return Principal{}, err
	}
	if np.Role != "" || grant.Role == RoleDisabled {
		grant.Role = role
	}

	usr := Principal{
		Email:      np.Email,
		Name:       np.Name,
		Department: np.Department,
		Role:       grant.Role,
		CreatedAt:  nowFunc(),
	}
	cred := Credential{Email: np.Email}
	if err = cred.SetPassword(np.Password); err != nil {
		return Principal{}, errors.Wrap(err, "hashing password")
	}

	err = svc.store.Update(ctx, map[string]interface{}{
		core.PrincipalPath(np.Email):  usr,
		core.GrantPath(np.Email):      grant,
		core.CredentialPath(np.Email): cred,
	})
	if err != nil {
		return Principal{}, core.StoreError(err, "creating principal")
	}
	return usr, nil
}

// SetRole changes the role of a principal, keeping their course grants.
// The principal record and the grant are written together.
func (svc *Service) SetRole(ctx context.Context, actor, email string, role Role) (Principal, error) {
	if !role.IsValid() {
		return Principal{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: roleText})
	}
	actorGrant, err := svc.RequireAdmin(ctx, actor)
	if err != nil {
		return Principal{}, err
	}
	if actorGrant.Email == core.CleanString(email, true /* lower */) {
		return Principal{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: errOwnRole})
	}

	usr, err := svc.GetPrincipal(ctx, email)
	if err != nil {
		return Principal{}, err
	}
	grant, err := svc.Resolve(ctx, email)
	if err != nil {
		return Principal{}, err
	}
	// nobody outranked by the target, nor a role above the actor's
	if grant.Role.Priority() > actorGrant.Role.Priority() || role.Priority() > actorGrant.Role.Priority() {
		return Principal{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNoPermsToSetRole})
	}

	usr.Role = role
	grant.Role = role
	err = svc.store.Update(ctx, map[string]interface{}{
		core.PrincipalPath(email): usr,
		core.GrantPath(email):     grant,
	})
	if err != nil {
		return Principal{}, core.StoreError(err, "setting role")
	}
	return usr, nil
}

// Disable moves a principal to the Disabled role. Principals are never deleted.
func (svc *Service) Disable(ctx context.Context, actor, email string) (Principal, error) {
	return svc.SetRole(ctx, actor, email, RoleDisabled)
}

func (svc *Service) GetPrincipal(ctx context.Context, email string) (Principal, error) {
	var usr Principal
	if err := svc.store.Get(ctx, core.PrincipalPath(email), &usr); err != nil {
		return Principal{}, core.StoreError(err, "getting principal")
	}
	usr.Email = core.CleanString(email, true /* lower */)
	return usr, nil
}

// ListPrincipals returns every known principal, sorted by email.
func (svc *Service) ListPrincipals(ctx context.Context) ([]Principal, error) {
	nodes, err := svc.store.List(ctx, core.UsersRoot)
	if err != nil {
		return nil, core.StoreError(err, "listing principals")
	}
	users := make([]Principal, 0, len(nodes))
	for _, node := range nodes {
		var usr Principal
		if err := node.Decode(&usr); err != nil {
			return nil, err
		}
		usr.Email = core.EmailFromKey(node.Key)
		users = append(users, usr)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

// ListGrants returns every stored grant, keyed by email.
func (svc *Service) ListGrants(ctx context.Context) (map[string]RoleGrant, error) {
	nodes, err := svc.store.List(ctx, core.RolesRoot)
	if err != nil {
		return nil, core.StoreError(err, "listing grants")
	}
	grants := make(map[string]RoleGrant, len(nodes))
	for _, node := range nodes {
		var grant RoleGrant
		if err := node.Decode(&grant); err != nil {
			return nil, err
		}
		grant.Email = core.EmailFromKey(node.Key)
		if grant.Courses == nil {
			grant.Courses = make(map[string]CourseGrant)
		}
		grants[grant.Email] = grant
	}
	return grants, nil
}

// GrantCleanup returns the grant writes removing every reference to a course, or to one of its sub-courses.
// Callers add them to the Update deleting the course so no grant is left dangling.
func (svc *Service) GrantCleanup(ctx context.Context, courseID, subCourseID string) (map[string]interface{}, error) {
	grants, err := svc.ListGrants(ctx)
	if err != nil {
		return nil, err
	}
	writes := make(map[string]interface{})
	for email, grant := range grants {
		cg, ok := grant.Courses[courseID]
		if !ok {
			continue
		}
		if subCourseID != "" {
			if _, ok := cg.SubCourses[subCourseID]; !ok {
				continue
			}
		}
		grant = grant.clone()
		if subCourseID == "" {
			delete(grant.Courses, courseID)
		} else {
			delete(grant.Courses[courseID].SubCourses, subCourseID)
		}
		writes[core.GrantPath(email)] = grant
	}
	return writes, nil
}

// Authenticate checks a password and records the login time.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (Principal, error) {
	email = core.CleanString(email, true /* lower */)

	var cred Credential
	if err := svc.store.Get(ctx, core.CredentialPath(email), &cred); err != nil {
		if core.IsNotFound(err) {
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{}, core.StoreError(err, "getting credential")
	}
	if err := cred.CheckPassword(pwd); err != nil {
		return Principal{}, ErrInvalidCredentials
	}

	usr, err := svc.GetPrincipal(ctx, email)
	if err != nil {
		if core.IsNotFound(err) {
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{}, err
	}
	grant, err := svc.Resolve(ctx, email)
	if err != nil {
		return Principal{}, err
	}
	if grant.Role == RoleDisabled {
		return Principal{}, ErrAccountDisabled
	}
	usr.Role = grant.Role

	now := nowFunc()
	cred.LastLogin = &now
	if err = svc.store.Set(ctx, core.CredentialPath(email), cred); err != nil {
		return Principal{}, core.StoreError(err, "setting last login")
	}
	return usr, nil
}

// ResetPassword replaces the password of an existing principal.
func (svc *Service) ResetPassword(ctx context.Context, sp SetPassword) error {
	sp.Email = core.CleanString(sp.Email, true /* lower */)
	if err := svc.validate.Struct(sp); err != nil {
		return err
	}
	if _, err := svc.GetPrincipal(ctx, sp.Email); err != nil {
		return err
	}

	var cred Credential
	if err := svc.store.Get(ctx, core.CredentialPath(sp.Email), &cred); err != nil && !core.IsNotFound(err) {
		return core.StoreError(err, "getting credential")
	}
	cred.Email = sp.Email
	if err := cred.SetPassword(sp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return core.StoreError(svc.store.Set(ctx, core.CredentialPath(sp.Email), cred), "setting password")
}

// MigrateRoles rewrites every stored principal & grant whose role uses a legacy spelling.
// Returns the number of records rewritten.
func (svc *Service) MigrateRoles(ctx context.Context) (int, error) {
	writes := make(map[string]interface{})
	for _, root := range []string{core.RolesRoot, core.UsersRoot} {
		nodes, err := svc.store.List(ctx, root)
		if err != nil {
			return 0, core.StoreError(err, "listing "+root)
		}
		for _, node := range nodes {
			var doc map[string]interface{}
			if err := node.Decode(&doc); err != nil {
				return 0, err
			}
			stored, _ := doc["role"].(string)
			role, err := ParseRole(stored)
			if err != nil {
				svc.logger.Warn("skipping record with unknown role", map[string]interface{}{"path": core.JoinPath(root, node.Key), "role": stored})
				continue
			}
			if string(role) == stored {
				continue
			}
			doc["role"] = role
			writes[core.JoinPath(root, node.Key)] = doc
		}
	}
	if len(writes) == 0 {
		return 0, nil
	}
	if err := svc.store.Update(ctx, writes); err != nil {
		return 0, core.StoreError(err, "migrating roles")
	}
	return len(writes), nil
}
