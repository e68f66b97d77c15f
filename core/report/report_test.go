package report_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/course"
	"github.com/edecs/academy/core/identity"
	"github.com/edecs/academy/core/quiz"
	"github.com/edecs/academy/core/report"
	"github.com/edecs/academy/core/task"
	testutil "github.com/edecs/academy/tests"
)

var (
	t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	alice = identity.Principal{Email: "alice@test.io", Name: "Alice", Role: identity.RoleUser}
	bob   = identity.Principal{Email: "bob@test.io", Name: "Bob", Role: identity.RoleUser}
	carol = identity.Principal{Email: "carol@test.io", Name: "Carol", Role: identity.RoleAdmin}
)

func sampleSnapshot() report.Snapshot {
	return report.Snapshot{
		Principals: []identity.Principal{alice, bob, carol},
		Grants: map[string]identity.RoleGrant{
			alice.Email: {Email: alice.Email, Role: identity.RoleUser},
			carol.Email: {Email: carol.Email, Role: identity.RoleSuperAdmin},
		},
		Courses: []course.Course{
			{ID: "c1", Name: "Safety"},
		},
		Submissions: []quiz.Submission{
			{Email: alice.Email, CourseID: "c1", SubCourseID: "s1", PercentageScore: 75},
			{Email: alice.Email, CourseID: "gone", SubCourseID: "s9", PercentageScore: 200.0 / 3},
		},
		Tasks: []task.Task{
			{ID: "t0", Message: "Review Safety", AssignedEmail: bob.Email, CreatedAt: t0},
			{ID: "t1", Message: "Finish Safety module", AssignedEmail: alice.Email, FileURL: "https://cdn.test/t1.pdf", CreatedAt: t0},
			{ID: "t2", Message: "Finish Safety again", AssignedEmail: alice.Email, CreatedAt: t0.Add(time.Hour)},
		},
		Notifications: []task.Notification{
			{ID: "t1", TaskID: "t1", Message: "New task assigned by carol@test.io: Finish Safety module", AssignedEmail: alice.Email, CreatedAt: t0.Add(time.Minute)},
		},
	}
}

func TestBuild(t *testing.T) {
	rows := report.Build(sampleSnapshot())

	want := []report.Row{
		{
			Email:               alice.Email,
			Name:                "Alice",
			Role:                "User",
			Course:              "Safety",
			Score:               "75",
			TaskMessage:         "Finish Safety module",
			SubmissionDate:      "2024-03-01T10:00:00Z",
			TaskFileURL:         "https://cdn.test/t1.pdf",
			NotificationMessage: "New task assigned by carol@test.io: Finish Safety module",
			NotificationDate:    "2024-03-01T10:01:00Z",
			NotificationFileURL: report.NotAvailable,
		},
		{
			Email:               alice.Email,
			Name:                "Alice",
			Role:                "User",
			Course:              report.UnknownCourse,
			Score:               "66.67",
			TaskMessage:         report.NotAvailable,
			SubmissionDate:      report.NotAvailable,
			TaskFileURL:         report.NotAvailable,
			NotificationMessage: report.NotAvailable,
			NotificationDate:    report.NotAvailable,
			NotificationFileURL: report.NotAvailable,
		},
		noProgress(bob, "User"),
		noProgress(carol, "SuperAdmin"),
	}
	assert.Equal(t, want, rows)
}

func noProgress(p identity.Principal, role string) report.Row {
	return report.Row{
		Email:               p.Email,
		Name:                p.Name,
		Role:                role,
		Course:              report.NoProgressData,
		Score:               report.NoProgressData,
		TaskMessage:         report.NoProgressData,
		SubmissionDate:      report.NoProgressData,
		TaskFileURL:         report.NoProgressData,
		NotificationMessage: report.NoNotificationData,
		NotificationDate:    report.NoNotificationData,
		NotificationFileURL: report.NoNotificationData,
	}
}

func TestBuild_Dedupe(t *testing.T) {
	snap := sampleSnapshot()
	snap.Principals = []identity.Principal{bob, bob}
	snap.Submissions = []quiz.Submission{
		{Email: bob.Email, CourseID: "c1", SubCourseID: "s1", PercentageScore: 50},
		{Email: bob.Email, CourseID: "c1", SubCourseID: "s2", PercentageScore: 50},
	}

	rows := report.Build(snap)
	if assert.Len(t, rows, 1) {
		assert.Equal(t, "Review Safety", rows[0].TaskMessage)
		assert.Equal(t, report.NotAvailable, rows[0].NotificationMessage)
	}
}

func TestBuild_Empty(t *testing.T) {
	assert.Empty(t, report.Build(report.Snapshot{}))
}

func TestFilter(t *testing.T) {
	rows := report.Build(sampleSnapshot())

	tests := []struct {
		name   string
		query  string
		emails []string
	}{
		{name: "empty", query: "  ", emails: []string{alice.Email, alice.Email, bob.Email, carol.Email}},
		{name: "email", query: "BOB@", emails: []string{bob.Email}},
		{name: "name", query: "carol", emails: []string{carol.Email}},
		{name: "role", query: "superadmin", emails: []string{carol.Email}},
		{name: "course keeps all rows of the principal", query: "safety", emails: []string{alice.Email, alice.Email}},
		{name: "score keeps all rows of the principal", query: "66.6", emails: []string{alice.Email, alice.Email}},
		{name: "task message not searched", query: "module", emails: []string{}},
		{name: "no data sentinel not searched", query: "no progress", emails: []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			emails := make([]string, 0)
			for _, r := range report.Filter(rows, tc.query) {
				emails = append(emails, r.Email)
			}
			assert.Equal(t, tc.emails, emails)
		})
	}
}

func TestFormatScore(t *testing.T) {
	tests := map[float64]string{
		0:         "0",
		75:        "75",
		100:       "100",
		200.0 / 3: "66.67",
		12.5:      "12.5",
	}
	for score, want := range tests {
		assert.Equal(t, want, report.FormatScore(score))
	}
}

func TestWriteCSV(t *testing.T) {
	rows := report.Build(sampleSnapshot())

	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	if assert.Len(t, records, len(rows)+1) {
		assert.Equal(t, report.Columns, records[0])
		for i, r := range rows {
			assert.Equal(t, r.Values(), records[i+1])
		}
	}
}

func TestWriteXLSX(t *testing.T) {
	rows := report.Build(sampleSnapshot())

	var buf bytes.Buffer
	require.NoError(t, report.WriteXLSX(&buf, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{report.SheetName}, f.GetSheetList())
	got, err := f.GetRows(report.SheetName)
	require.NoError(t, err)
	if assert.Len(t, got, len(rows)+1) {
		assert.Equal(t, report.Columns, got[0])
		assert.Equal(t, rows[0].Values(), got[1])
	}
}

func TestService_Generate(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore()
	validate, _ := testutil.NewValidator()
	logger := testutil.NewLogger()

	ids := identity.NewService(store, validate, logger)
	courses := course.NewService(store, ids, nil, validate)
	engine := quiz.NewEngine(store, ids, courses)
	ledger := task.NewLedger(store, ids, nil, validate, logger)
	svc := report.NewService(ids, courses, engine, ledger, time.Second)

	testutil.CreateCourse(t, store, "c1", "Safety", course.SubCourse{ID: "s1", Name: "Intro", Questions: testutil.Questions(2)})
	admin := testutil.CreatePrincipal(t, store, "admin@test.io", "Admin", identity.RoleAdmin, nil)
	usr := testutil.CreatePrincipal(t, store, "user@test.io", "User", identity.RoleUser, testutil.CourseAccess("c1"))

	_, err := engine.Open(ctx, usr.Email, "c1", "s1")
	require.NoError(t, err)
	_, err = engine.Answer(ctx, usr.Email, "c1", "s1", 0, "right")
	require.NoError(t, err)
	_, err = engine.Submit(ctx, usr.Email, "c1", "s1")
	require.NoError(t, err)

	t.Run("admin only", func(t *testing.T) {
		_, err := svc.Generate(ctx, usr.Email, "")
		assert.Equal(t, core.ErrAccessDenied, errors.Cause(err))
	})

	t.Run("rows", func(t *testing.T) {
		rows, err := svc.Generate(ctx, admin.Email, "")
		require.NoError(t, err)
		if assert.Len(t, rows, 2) {
			assert.Equal(t, admin.Email, rows[0].Email)
			assert.Equal(t, report.NoProgressData, rows[0].Course)
			assert.Equal(t, usr.Email, rows[1].Email)
			assert.Equal(t, "Safety", rows[1].Course)
			assert.Equal(t, "50", rows[1].Score)
		}
	})

	t.Run("filtered", func(t *testing.T) {
		rows, err := svc.Generate(ctx, admin.Email, "safety")
		require.NoError(t, err)
		if assert.Len(t, rows, 1) {
			assert.Equal(t, usr.Email, rows[0].Email)
		}
	})

	t.Run("canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := svc.Generate(cctx, admin.Email, "")
		assert.Error(t, err)
	})
}

// stallingStore never answers a listing of notifications before its context ends.
type stallingStore struct {
	core.DataStore
}

func (s stallingStore) List(ctx context.Context, path string) ([]core.Node, error) {
	if path == core.NotificationsRoot {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.DataStore.List(ctx, path)
}

func TestService_GenerateTimeout(t *testing.T) {
	store := stallingStore{DataStore: testutil.NewStore()}
	validate, _ := testutil.NewValidator()
	logger := testutil.NewLogger()

	ids := identity.NewService(store, validate, logger)
	courses := course.NewService(store, ids, nil, validate)
	engine := quiz.NewEngine(store, ids, courses)
	ledger := task.NewLedger(store, ids, nil, validate, logger)
	svc := report.NewService(ids, courses, engine, ledger, 100*time.Millisecond)

	admin := testutil.CreatePrincipal(t, store, "admin@test.io", "Admin", identity.RoleAdmin, nil)

	start := time.Now()
	_, err := svc.Generate(context.Background(), admin.Email, "")
	elapsed := time.Since(start)

	assert.True(t, core.IsBackendUnavailable(err), "got %v", err)
	assert.Less(t, int64(elapsed), int64(2*time.Second))
}
