package report

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/course"
	"github.com/edecs/academy/core/identity"
	"github.com/edecs/academy/core/quiz"
	"github.com/edecs/academy/core/task"
)

const defaultTimeout = 30 * time.Second

type Service struct {
	ids     *identity.Service
	courses *course.Service
	quiz    *quiz.Engine
	tasks   *task.Ledger
	timeout time.Duration
}

func NewService(ids *identity.Service, courses *course.Service, engine *quiz.Engine, tasks *task.Ledger, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{ids: ids, courses: courses, quiz: engine, tasks: tasks, timeout: timeout}
}

// Generate builds the progress report of every principal, narrowed by query. Admins only.
func (svc *Service) Generate(ctx context.Context, actor, query string) ([]Row, error) {
	if _, err := svc.ids.RequireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	snap, err := svc.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(Build(snap), query), nil
}

// Snapshot fetches the report inputs concurrently.
// The whole fetch is bounded by the configured timeout, past which it fails as backend unavailable.
func (svc *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Principals, err = svc.ids.ListPrincipals(gctx)
		return errors.Wrap(err, "fetching principals")
	})
	g.Go(func() (err error) {
		snap.Grants, err = svc.ids.ListGrants(gctx)
		return errors.Wrap(err, "fetching grants")
	})
	g.Go(func() (err error) {
		snap.Courses, err = svc.courses.AllCourses(gctx)
		return errors.Wrap(err, "fetching courses")
	})
	g.Go(func() (err error) {
		snap.Submissions, err = svc.quiz.ListSubmissions(gctx)
		return errors.Wrap(err, "fetching submissions")
	})
	g.Go(func() (err error) {
		snap.Tasks, err = svc.tasks.AllArchived(gctx)
		return errors.Wrap(err, "fetching archived tasks")
	})
	g.Go(func() (err error) {
		snap.Notifications, err = svc.tasks.AllNotifications(gctx)
		return errors.Wrap(err, "fetching notifications")
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Snapshot{}, core.NewBackendError("generating report", ctx.Err())
		}
		return Snapshot{}, err
	}
	return snap, nil
}
