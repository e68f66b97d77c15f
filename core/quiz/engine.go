package quiz

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/course"
	"github.com/edecs/academy/core/identity"
)

var nowFunc = func() time.Time { return time.Now().UTC() } // mockable

// Engine persists attempts & submissions. Every call re-checks the caller's access to the sub-course.
type Engine struct {
	store   core.DataStore
	ids     *identity.Service
	courses *course.Service
}

func NewEngine(store core.DataStore, ids *identity.Service, courses *course.Service) *Engine {
	return &Engine{store: store, ids: ids, courses: courses}
}

// Open starts (or restarts) the attempt of actor on a sub-course.
func (e *Engine) Open(ctx context.Context, actor, courseID, subCourseID string) (*Attempt, error) {
	if _, err := e.ids.Authorize(ctx, actor, courseID, subCourseID); err != nil {
		return nil, err
	}
	sc, err := e.courses.LoadSubCourse(ctx, courseID, subCourseID)
	if err != nil {
		return nil, err
	}
	a := Open(actor, sc, nowFunc())
	if err = e.store.Set(ctx, core.AttemptPath(actor, subCourseID), a); err != nil {
		return nil, core.StoreError(err, "saving attempt")
	}
	return a, nil
}

func (e *Engine) Get(ctx context.Context, actor, courseID, subCourseID string) (*Attempt, error) {
	if _, err := e.ids.Authorize(ctx, actor, courseID, subCourseID); err != nil {
		return nil, err
	}
	return e.load(ctx, actor, courseID, subCourseID)
}

func (e *Engine) Play(ctx context.Context, actor, courseID, subCourseID string) (*Attempt, error) {
	return e.mutate(ctx, actor, courseID, subCourseID, func(a *Attempt, _ course.SubCourse) error {
		a.Play()
		return nil
	})
}

func (e *Engine) Progress(ctx context.Context, actor, courseID, subCourseID string, position float64) (*Attempt, error) {
	return e.mutate(ctx, actor, courseID, subCourseID, func(a *Attempt, _ course.SubCourse) error {
		return a.Progress(position)
	})
}

func (e *Engine) Seek(ctx context.Context, actor, courseID, subCourseID string, position float64) (*Attempt, error) {
	return e.mutate(ctx, actor, courseID, subCourseID, func(a *Attempt, _ course.SubCourse) error {
		_, err := a.Seek(position)
		return err
	})
}

func (e *Engine) VideoEnded(ctx context.Context, actor, courseID, subCourseID string, index int) (*Attempt, error) {
	return e.mutate(ctx, actor, courseID, subCourseID, func(a *Attempt, _ course.SubCourse) error {
		return a.VideoEnded(index, nowFunc())
	})
}

func (e *Engine) Answer(ctx context.Context, actor, courseID, subCourseID string, qIdx int, text string) (*Attempt, error) {
	return e.mutate(ctx, actor, courseID, subCourseID, func(a *Attempt, sc course.SubCourse) error {
		return a.Answer(sc.Questions, qIdx, text)
	})
}

// Submit scores the attempt and writes the submission together with the attempt.
func (e *Engine) Submit(ctx context.Context, actor, courseID, subCourseID string) (Submission, error) {
	if _, err := e.ids.Authorize(ctx, actor, courseID, subCourseID); err != nil {
		return Submission{}, err
	}
	a, err := e.load(ctx, actor, courseID, subCourseID)
	if err != nil {
		return Submission{}, err
	}
	sc, err := e.courses.LoadSubCourse(ctx, courseID, subCourseID)
	if err != nil {
		return Submission{}, err
	}
	sub, err := a.Submit(sc.Questions, nowFunc())
	if err != nil {
		return Submission{}, err
	}

	err = e.store.Update(ctx, map[string]interface{}{
		core.AttemptPath(actor, subCourseID):    a,
		core.SubmissionPath(actor, subCourseID): sub,
	})
	if err != nil {
		return Submission{}, core.StoreError(err, "saving submission")
	}
	return sub, nil
}

// GetSubmission returns the submission of email on a sub-course. Only the principal and administrators may read it.
func (e *Engine) GetSubmission(ctx context.Context, actor, email, subCourseID string) (Submission, error) {
	if core.CleanString(actor, true /* lower */) != core.CleanString(email, true /* lower */) {
		if _, err := e.ids.RequireAdmin(ctx, actor); err != nil {
			return Submission{}, err
		}
	} else if _, err := e.ids.RequireActive(ctx, actor); err != nil {
		return Submission{}, err
	}

	var sub Submission
	if err := e.store.Get(ctx, core.SubmissionPath(email, subCourseID), &sub); err != nil {
		return Submission{}, core.StoreError(err, "getting submission")
	}
	return sub, nil
}

// ListSubmissions returns every stored submission, ordered by principal then sub-course. No access check.
func (e *Engine) ListSubmissions(ctx context.Context) ([]Submission, error) {
	nodes, err := e.store.Tree(ctx, core.SubmissionsRoot)
	if err != nil {
		return nil, core.StoreError(err, "listing submissions")
	}
	subs := make([]Submission, 0, len(nodes))
	for _, node := range nodes {
		segments := core.SplitPath(node.Key)
		if len(segments) != 2 {
			continue
		}
		var sub Submission
		if err := node.Decode(&sub); err != nil {
			return nil, err
		}
		sub.Email = core.EmailFromKey(segments[0])
		sub.SubCourseID = segments[1]
		subs = append(subs, sub)
	}
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].Email != subs[j].Email {
			return subs[i].Email < subs[j].Email
		}
		return subs[i].SubCourseID < subs[j].SubCourseID
	})
	return subs, nil
}

func (e *Engine) load(ctx context.Context, actor, courseID, subCourseID string) (*Attempt, error) {
	var a Attempt
	if err := e.store.Get(ctx, core.AttemptPath(actor, subCourseID), &a); err != nil {
		return nil, core.StoreError(err, "getting attempt")
	}
	if a.CourseID != courseID {
		return nil, errors.Wrapf(core.ErrNotFound, "attempt on %s", core.JoinPath(courseID, subCourseID))
	}
	return &a, nil
}

func (e *Engine) mutate(
	ctx context.Context,
	actor, courseID, subCourseID string,
	fn func(a *Attempt, sc course.SubCourse) error,
) (*Attempt, error) {
	if _, err := e.ids.Authorize(ctx, actor, courseID, subCourseID); err != nil {
		return nil, err
	}
	a, err := e.load(ctx, actor, courseID, subCourseID)
	if err != nil {
		return nil, err
	}
	sc, err := e.courses.LoadSubCourse(ctx, courseID, subCourseID)
	if err != nil {
		return nil, err
	}
	if err = fn(a, sc); err != nil {
		return nil, err
	}
	if err = e.store.Set(ctx, core.AttemptPath(actor, subCourseID), a); err != nil {
		return nil, core.StoreError(err, "saving attempt")
	}
	return a, nil
}
