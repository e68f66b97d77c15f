package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/edecs/academy/core/course"
	"github.com/edecs/academy/core/identity"
	"github.com/edecs/academy/core/quiz"
	"github.com/edecs/academy/core/task"
)

const (
	NoProgressData     = "No progress data"
	NoNotificationData = "No notifications data"
	NotAvailable       = "N/A"
	UnknownCourse      = "Unknown Course"
)

// Columns is the fixed column order of exported reports.
var Columns = []string{
	"Email",
	"Name",
	"Role",
	"Course",
	"Score",
	"TaskMessage",
	"SubmissionDate",
	"TaskFileURL",
	"NotificationMessage",
	"NotificationDate",
	"NotificationFileURL",
}

type Row struct {
	Email               string `json:"email"`
	Name                string `json:"name"`
	Role                string `json:"role"`
	Course              string `json:"course"`
	Score               string `json:"score"`
	TaskMessage         string `json:"taskMessage"`
	SubmissionDate      string `json:"submissionDate"`
	TaskFileURL         string `json:"taskFileUrl"`
	NotificationMessage string `json:"notificationMessage"`
	NotificationDate    string `json:"notificationDate"`
	NotificationFileURL string `json:"notificationFileUrl"`
}

// Values returns the cells of the row in Columns order.
func (r Row) Values() []string {
	return []string{
		r.Email,
		r.Name,
		r.Role,
		r.Course,
		r.Score,
		r.TaskMessage,
		r.SubmissionDate,
		r.TaskFileURL,
		r.NotificationMessage,
		r.NotificationDate,
		r.NotificationFileURL,
	}
}

// Snapshot is the already fetched data a report is built from.
// Tasks are the archived tasks: a task is archived once its assignee completed it.
type Snapshot struct {
	Principals    []identity.Principal
	Grants        map[string]identity.RoleGrant
	Courses       []course.Course
	Submissions   []quiz.Submission
	Tasks         []task.Task
	Notifications []task.Notification
}

// Build produces one row per submission, and a single "no data" row for a principal without submissions.
// Each submission is joined with the first task & notification addressed to the principal whose message mentions the course name.
// Identical rows are dropped, keeping the first.
func Build(s Snapshot) []Row {
	courseNames := make(map[string]string, len(s.Courses))
	for _, c := range s.Courses {
		courseNames[c.ID] = c.Name
	}
	subsByEmail := make(map[string][]quiz.Submission)
	for _, sub := range s.Submissions {
		subsByEmail[sub.Email] = append(subsByEmail[sub.Email], sub)
	}

	rows := make([]Row, 0, len(s.Principals)+len(s.Submissions))
	seen := make(map[Row]bool)
	add := func(r Row) {
		if !seen[r] {
			seen[r] = true
			rows = append(rows, r)
		}
	}

	for _, p := range s.Principals {
		role := p.Role
		if grant, ok := s.Grants[p.Email]; ok {
			role = grant.Role
		}
		base := Row{Email: p.Email, Name: p.Name, Role: string(role)}

		subs := subsByEmail[p.Email]
		if len(subs) == 0 {
			r := base
			r.Course = NoProgressData
			r.Score = NoProgressData
			r.TaskMessage = NoProgressData
			r.SubmissionDate = NoProgressData
			r.TaskFileURL = NoProgressData
			r.NotificationMessage = NoNotificationData
			r.NotificationDate = NoNotificationData
			r.NotificationFileURL = NoNotificationData
			add(r)
			continue
		}

		for _, sub := range subs {
			name, ok := courseNames[sub.CourseID]
			if !ok {
				name = UnknownCourse
			}
			r := base
			r.Course = name
			r.Score = FormatScore(sub.PercentageScore)
			r.TaskMessage, r.SubmissionDate, r.TaskFileURL = NotAvailable, NotAvailable, NotAvailable
			r.NotificationMessage, r.NotificationDate, r.NotificationFileURL = NotAvailable, NotAvailable, NotAvailable

			if t, ok := matchTask(s.Tasks, p.Email, name); ok {
				r.TaskMessage = t.Message
				r.SubmissionDate = formatTime(t.CreatedAt)
				r.TaskFileURL = orNA(t.FileURL)
			}
			if n, ok := matchNotification(s.Notifications, p.Email, name); ok {
				r.NotificationMessage = n.Message
				r.NotificationDate = formatTime(n.CreatedAt)
				r.NotificationFileURL = orNA(n.FileURL)
			}
			add(r)
		}
	}
	return rows
}

func matchTask(tasks []task.Task, email, courseName string) (task.Task, bool) {
	for _, t := range tasks {
		if t.AssignedEmail == email && strings.Contains(t.Message, courseName) {
			return t, true
		}
	}
	return task.Task{}, false
}

func matchNotification(notifs []task.Notification, email, courseName string) (task.Notification, bool) {
	for _, n := range notifs {
		if n.AssignedEmail == email && strings.Contains(n.Message, courseName) {
			return n, true
		}
	}
	return task.Notification{}, false
}

// Filter keeps every row of the principals matching query, ignoring case.
// A principal matches on its email, name or role, or on the course or score of any of its progress rows.
func Filter(rows []Row, query string) []Row {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return rows
	}
	contains := func(field string) bool {
		return strings.Contains(strings.ToLower(field), query)
	}

	matched := make(map[string]bool)
	for _, r := range rows {
		if matched[r.Email] {
			continue
		}
		if contains(r.Email) || contains(r.Name) || contains(r.Role) {
			matched[r.Email] = true
			continue
		}
		if r.Course != NoProgressData && (contains(r.Course) || contains(r.Score)) {
			matched[r.Email] = true
		}
	}

	filtered := make([]Row, 0, len(rows))
	for _, r := range rows {
		if matched[r.Email] {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// FormatScore renders a percentage with at most two decimals: 75, 66.67.
func FormatScore(score float64) string {
	return strconv.FormatFloat(roundTo2(score), 'f', -1, 64)
}

func roundTo2(f float64) float64 {
	s := strconv.FormatFloat(f, 'f', 2, 64)
	r, _ := strconv.ParseFloat(s, 64)
	return r
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return NotAvailable
	}
	return t.UTC().Format(time.RFC3339)
}

func orNA(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}
