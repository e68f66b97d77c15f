package core

import "strings"

// Top-level Data Store namespaces.
const (
	UsersRoot         = "users"
	RolesRoot         = "roles"
	CredentialsRoot   = "credentials"
	CoursesRoot       = "courses/mainCourses"
	SubCoursesSegment = "subCourses"
	TasksRoot         = "tasks"
	ArchivedTasksRoot = "archivedTasks"
	NotificationsRoot = "notifications"
	SubmissionsRoot   = "submissions"
	AttemptsRoot      = "attempts"
)

// EmailKey sanitizes an email for use as a path segment: the address is lowered and every '.' becomes ','.
func EmailKey(email string) string {
	return strings.ReplaceAll(CleanString(email, true /* lower */), ".", ",")
}

// EmailFromKey reverses EmailKey.
func EmailFromKey(key string) string {
	return strings.ReplaceAll(key, ",", ".")
}

func PrincipalPath(email string) string  { return JoinPath(UsersRoot, EmailKey(email)) }
func GrantPath(email string) string      { return JoinPath(RolesRoot, EmailKey(email)) }
func CredentialPath(email string) string { return JoinPath(CredentialsRoot, EmailKey(email)) }

func CoursePath(courseID string) string { return JoinPath(CoursesRoot, courseID) }

func SubCoursesPath(courseID string) string {
	return JoinPath(CoursesRoot, courseID, SubCoursesSegment)
}

func SubCoursePath(courseID, subCourseID string) string {
	return JoinPath(CoursesRoot, courseID, SubCoursesSegment, subCourseID)
}

func TaskPath(id string) string         { return JoinPath(TasksRoot, id) }
func ArchivedTaskPath(id string) string { return JoinPath(ArchivedTasksRoot, id) }
func NotificationPath(id string) string { return JoinPath(NotificationsRoot, id) }

func SubmissionPath(email, subCourseID string) string {
	return JoinPath(SubmissionsRoot, EmailKey(email), subCourseID)
}

func AttemptPath(email, subCourseID string) string {
	return JoinPath(AttemptsRoot, EmailKey(email), subCourseID)
}
