package task

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/identity"
)

var nowFunc = func() time.Time { return time.Now().UTC() } // mockable

// Ledger records tasks and their notifications.
//
// A task and its notification are written in one atomic Update, so on every bundled store creation is exactly-once.
// Reconcile re-derives notifications missing for active tasks written by other clients.
type Ledger struct {
	store    core.DataStore
	ids      *identity.Service
	blobs    core.BlobStore
	validate *validator.Validate
	logger   core.Logger
}

func NewLedger(store core.DataStore, ids *identity.Service, blobs core.BlobStore, validate *validator.Validate, logger core.Logger) *Ledger {
	return &Ledger{store: store, ids: ids, blobs: blobs, validate: validate, logger: logger}
}

// CreateTask assigns a task to an existing principal and notifies them.
func (l *Ledger) CreateTask(ctx context.Context, actor string, nt NewTask) (Task, error) {
	grant, nt, err := l.checkNew(ctx, actor, nt)
	if err != nil {
		return Task{}, err
	}
	return l.create(ctx, grant, nt)
}

// CreateTaskWithFile uploads an attachment to the blob store, then creates the task pointing at it.
// The task is checked before anything is uploaded.
func (l *Ledger) CreateTaskWithFile(ctx context.Context, actor string, nt NewTask, filename string, r io.Reader, size int64) (Task, error) {
	grant, nt, err := l.checkNew(ctx, actor, nt)
	if err != nil {
		return Task{}, err
	}
	name := core.BlobName(filename)
	if name == "" {
		return Task{}, core.NewValidationError(nil, core.FieldError{Field: "file", Error: "a file name is required"})
	}
	if l.blobs == nil {
		return Task{}, core.NewBackendError("uploading file", errors.New("no blob store configured"))
	}

	url, err := l.blobs.Upload(ctx, core.JoinPath("tasks", name), r, size).Wait()
	if err != nil {
		return Task{}, err
	}
	nt.FileURL = url
	return l.create(ctx, grant, nt)
}

func (l *Ledger) checkNew(ctx context.Context, actor string, nt NewTask) (identity.RoleGrant, NewTask, error) {
	grant, err := l.ids.RequireActive(ctx, actor)
	if err != nil {
		return identity.RoleGrant{}, nt, err
	}
	nt.clean()
	if err = l.validate.Struct(nt); err != nil {
		return identity.RoleGrant{}, nt, err
	}
	if _, err = l.ids.GetPrincipal(ctx, nt.AssignedEmail); err != nil {
		return identity.RoleGrant{}, nt, errors.Wrap(err, "finding assignee")
	}
	return grant, nt, nil
}

func (l *Ledger) create(ctx context.Context, grant identity.RoleGrant, nt NewTask) (Task, error) {
	t := Task{
		ID:            uuid.New().String(),
		Message:       nt.Message,
		FileURL:       nt.FileURL,
		AssignedEmail: nt.AssignedEmail,
		CreatedBy:     grant.Email,
		CreatedAt:     nowFunc(),
		Status:        StatusActive,
	}
	err := l.store.Update(ctx, map[string]interface{}{
		core.TaskPath(t.ID):         t,
		core.NotificationPath(t.ID): NotificationFor(t),
	})
	if err != nil {
		return Task{}, core.StoreError(err, "creating task")
	}
	return t, nil
}

// ArchiveTask moves an active task to the archive in one write.
// Only the assignee, the creator or an administrator may archive; an id that is not active is NotFound.
func (l *Ledger) ArchiveTask(ctx context.Context, actor, id string) (Task, error) {
	grant, err := l.ids.RequireActive(ctx, actor)
	if err != nil {
		return Task{}, err
	}

	var t Task
	if err = l.store.Get(ctx, core.TaskPath(id), &t); err != nil {
		return Task{}, core.StoreError(err, "getting task")
	}
	if t.Status != StatusActive {
		return Task{}, errors.Wrapf(core.ErrNotFound, "active task %s", id)
	}
	if !grant.IsAdmin() && grant.Email != t.AssignedEmail && grant.Email != t.CreatedBy {
		return Task{}, errors.Wrapf(core.ErrAccessDenied, "%s on task %s", grant.Email, id)
	}

	now := nowFunc()
	t.ID = id
	t.Status = StatusArchived
	t.ArchivedAt = &now
	err = l.store.Update(ctx, map[string]interface{}{
		core.TaskPath(id):         nil,
		core.ArchivedTaskPath(id): t,
	})
	if err != nil {
		return Task{}, core.StoreError(err, "archiving task")
	}
	return t, nil
}

// MarkNotificationRead is idempotent: marking a read notification again is a no-op.
func (l *Ledger) MarkNotificationRead(ctx context.Context, actor, id string) (Notification, error) {
	grant, err := l.ids.RequireActive(ctx, actor)
	if err != nil {
		return Notification{}, err
	}

	var n Notification
	if err = l.store.Get(ctx, core.NotificationPath(id), &n); err != nil {
		return Notification{}, core.StoreError(err, "getting notification")
	}
	if !grant.IsAdmin() && grant.Email != n.AssignedEmail {
		return Notification{}, errors.Wrapf(core.ErrAccessDenied, "%s on notification %s", grant.Email, id)
	}
	if n.IsRead {
		return n, nil
	}

	n.IsRead = true
	if err = l.store.Set(ctx, core.NotificationPath(id), n); err != nil {
		return Notification{}, core.StoreError(err, "marking notification read")
	}
	return n, nil
}

// ListTasks returns the active tasks assigned to or created by actor, newest first. Administrators see every task.
func (l *Ledger) ListTasks(ctx context.Context, actor string) ([]Task, error) {
	grant, err := l.ids.RequireActive(ctx, actor)
	if err != nil {
		return nil, err
	}
	tasks, err := l.AllTasks(ctx)
	if err != nil {
		return nil, err
	}
	return visibleTasks(grant, tasks), nil
}

// ListArchived returns the archived tasks visible to actor, newest first.
func (l *Ledger) ListArchived(ctx context.Context, actor string) ([]Task, error) {
	grant, err := l.ids.RequireActive(ctx, actor)
	if err != nil {
		return nil, err
	}
	tasks, err := l.AllArchived(ctx)
	if err != nil {
		return nil, err
	}
	return visibleTasks(grant, tasks), nil
}

// ListNotifications returns the notifications addressed to actor, newest first.
func (l *Ledger) ListNotifications(ctx context.Context, actor string) ([]Notification, error) {
	grant, err := l.ids.RequireActive(ctx, actor)
	if err != nil {
		return nil, err
	}
	all, err := l.AllNotifications(ctx)
	if err != nil {
		return nil, err
	}
	mine := make([]Notification, 0)
	for _, n := range all {
		if n.AssignedEmail == grant.Email {
			mine = append(mine, n)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })
	return mine, nil
}

func visibleTasks(grant identity.RoleGrant, tasks []Task) []Task {
	visible := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if grant.IsAdmin() || t.AssignedEmail == grant.Email || t.CreatedBy == grant.Email {
			visible = append(visible, t)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool { return visible[i].CreatedAt.After(visible[j].CreatedAt) })
	return visible
}

// AllTasks returns every active task in store order. No access check.
func (l *Ledger) AllTasks(ctx context.Context) ([]Task, error) {
	return l.listTasks(ctx, core.TasksRoot)
}

// AllArchived returns every archived task in store order. No access check.
func (l *Ledger) AllArchived(ctx context.Context) ([]Task, error) {
	return l.listTasks(ctx, core.ArchivedTasksRoot)
}

func (l *Ledger) listTasks(ctx context.Context, root string) ([]Task, error) {
	nodes, err := l.store.List(ctx, root)
	if err != nil {
		return nil, core.StoreError(err, "listing "+root)
	}
	tasks := make([]Task, 0, len(nodes))
	for _, node := range nodes {
		var t Task
		if err := node.Decode(&t); err != nil {
			return nil, err
		}
		t.ID = node.Key
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// AllNotifications returns every notification in store order. No access check.
func (l *Ledger) AllNotifications(ctx context.Context) ([]Notification, error) {
	nodes, err := l.store.List(ctx, core.NotificationsRoot)
	if err != nil {
		return nil, core.StoreError(err, "listing notifications")
	}
	notifs := make([]Notification, 0, len(nodes))
	for _, node := range nodes {
		var n Notification
		if err := node.Decode(&n); err != nil {
			return nil, err
		}
		n.ID = node.Key
		notifs = append(notifs, n)
	}
	return notifs, nil
}

// Reconcile recreates the notification of every active task that lacks one. Returns how many were created.
func (l *Ledger) Reconcile(ctx context.Context) (int, error) {
	tasks, err := l.AllTasks(ctx)
	if err != nil {
		return 0, err
	}
	notifs, err := l.AllNotifications(ctx)
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool, len(notifs))
	for _, n := range notifs {
		have[n.TaskID] = true
		have[n.ID] = true
	}

	writes := make(map[string]interface{})
	for _, t := range tasks {
		if !have[t.ID] {
			writes[core.NotificationPath(t.ID)] = NotificationFor(t)
		}
	}
	if len(writes) == 0 {
		return 0, nil
	}
	if err = l.store.Update(ctx, writes); err != nil {
		return 0, core.StoreError(err, "reconciling notifications")
	}
	l.logger.Info("recreated missing notifications", map[string]interface{}{"count": len(writes)})
	return len(writes), nil
}
