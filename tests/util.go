package testutil

import (
	"context"
	"fmt"
	"io/ioutil"
	"log"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/course"
	"github.com/edecs/academy/core/identity"
	logsvc "github.com/edecs/academy/services/logger"
	"github.com/edecs/academy/storage/database/inmemdb"
)

// DefaultPassword satisfies the password policy.
const DefaultPassword = "Ch0colate.Rain!"

func NewStore() core.DataStore {
	return inmemdb.New()
}

// NewLogger returns a disabled RollbarLogger writing nowhere.
func NewLogger() core.Logger {
	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf)
	logger.Enable(false)
	return logger
}

// NewValidator returns a validator carrying every custom validation of the app.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	identity.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	return validate, translator
}

// CreatePrincipal stores a principal, its grant and a credential for DefaultPassword.
func CreatePrincipal(
	t *testing.T,
	store core.DataStore,
	email, name string,
	role identity.Role,
	courses map[string]identity.CourseGrant,
	createdAt ...time.Time,
) identity.Principal {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if courses == nil {
		courses = make(map[string]identity.CourseGrant)
	}
	usr := identity.Principal{Email: email, Name: name, Role: role, CreatedAt: tstamp}
	grant := identity.RoleGrant{Email: email, Role: role, Courses: courses}
	cred := identity.Credential{Email: email}
	if err := cred.SetPassword(DefaultPassword); err != nil {
		t.Fatalf("CreatePrincipal() failed: %v", err)
	}

	err := store.Update(context.Background(), map[string]interface{}{
		core.PrincipalPath(email):  usr,
		core.GrantPath(email):      grant,
		core.CredentialPath(email): cred,
	})
	if err != nil {
		t.Fatalf("CreatePrincipal() failed: %v", err)
	}
	return usr
}

// CourseAccess is a course-level grant.
func CourseAccess(courseID string) map[string]identity.CourseGrant {
	return map[string]identity.CourseGrant{
		courseID: {HasAccess: true, SubCourses: map[string]bool{}},
	}
}

// SubCourseAccess grants a single sub-course of a course.
func SubCourseAccess(courseID, subCourseID string) map[string]identity.CourseGrant {
	return map[string]identity.CourseGrant{
		courseID: {SubCourses: map[string]bool{subCourseID: true}},
	}
}

// CreateCourse stores a course header followed by its sub-courses, created one second apart.
func CreateCourse(t *testing.T, store core.DataStore, id, name string, subs ...course.SubCourse) course.Course {
	tstamp := time.Now().UTC().Truncate(time.Second)
	c := course.Course{ID: id, Name: name, CreatedAt: tstamp, UpdatedAt: tstamp}

	writes := map[string]interface{}{core.CoursePath(id): c}
	for i, sc := range subs {
		sc.CourseID = id
		sc.CreatedAt = tstamp.Add(time.Duration(i+1) * time.Second)
		sc.UpdatedAt = sc.CreatedAt
		if sc.Videos == nil {
			sc.Videos = []course.MediaRef{}
		}
		if sc.Images == nil {
			sc.Images = []course.MediaRef{}
		}
		if sc.PDFs == nil {
			sc.PDFs = []course.MediaRef{}
		}
		if sc.Questions == nil {
			sc.Questions = []course.Question{}
		}
		writes[core.SubCoursePath(id, sc.ID)] = sc
		subs[i] = sc
	}
	if err := store.Update(context.Background(), writes); err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	c.SubCourses = subs
	if c.SubCourses == nil {
		c.SubCourses = []course.SubCourse{}
	}
	return c
}

// Videos returns n video refs named v1..vn.
func Videos(n int) []course.MediaRef {
	refs := make([]course.MediaRef, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("v%d", i)
		refs = append(refs, course.MediaRef{ID: id, URL: "https://cdn.test/" + id + ".mp4", Title: id})
	}
	return refs
}

// Questions returns n questions whose correct answer is "right".
func Questions(n int) []course.Question {
	qs := make([]course.Question, 0, n)
	for i := 0; i < n; i++ {
		qs = append(qs, course.Question{
			Text: fmt.Sprintf("Question %d", i+1),
			Answers: []course.Answer{
				{Text: "right", Correct: true},
				{Text: "wrong"},
			},
		})
	}
	return qs
}
