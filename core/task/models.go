package task

import (
	"time"

	"github.com/edecs/academy/core"
)

type Status string

const (
	StatusActive   Status = "Active"
	StatusArchived Status = "Archived"
)

// Task is an assignment from one principal to another.
// It lives at tasks/{id} while Active and at archivedTasks/{id} once Archived, never both.
type Task struct {
	ID            string     `json:"id"`
	Message       string     `json:"message"`
	FileURL       string     `json:"fileUrl,omitempty"`
	AssignedEmail string     `json:"assignedEmail"`
	CreatedBy     string     `json:"createdBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	Status        Status     `json:"status"`
	ArchivedAt    *time.Time `json:"archivedAt,omitempty"`
}

// Notification tells the assignee about a task. It shares the id of its task.
type Notification struct {
	ID            string    `json:"id"`
	TaskID        string    `json:"taskId"`
	Message       string    `json:"message"`
	AssignedEmail string    `json:"assignedEmail"`
	CreatedBy     string    `json:"createdBy"`
	IsRead        bool      `json:"isRead"`
	FileURL       string    `json:"fileUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NotificationFor derives the notification of a task.
func NotificationFor(t Task) Notification {
	return Notification{
		ID:            t.ID,
		TaskID:        t.ID,
		Message:       "New task assigned by " + t.CreatedBy + ": " + t.Message,
		AssignedEmail: t.AssignedEmail,
		CreatedBy:     t.CreatedBy,
		FileURL:       t.FileURL,
		CreatedAt:     t.CreatedAt,
	}
}

// NewTask contains information needed to create a new Task.
type NewTask struct {
	Message       string `json:"message" validate:"required,notblank"`
	AssignedEmail string `json:"assignedEmail" validate:"required,email"`
	FileURL       string `json:"fileUrl" validate:"omitempty,url"`
}

func (nt *NewTask) clean() {
	nt.Message = core.CleanString(nt.Message)
	nt.AssignedEmail = core.CleanString(nt.AssignedEmail, true /* lower */)
	nt.FileURL = core.CleanString(nt.FileURL)
}
