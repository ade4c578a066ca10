package model

import "time"

// TaskStatus is the progress state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskSkipped    TaskStatus = "skipped"
)

// TaskStatuses lists every valid status in display order.
func TaskStatuses() []TaskStatus {
	return []TaskStatus{TaskPending, TaskInProgress, TaskCompleted, TaskSkipped}
}

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskSkipped:
		return true
	}
	return false
}

// Task is a unit of work inside a session. Subjects are unique per session.
type Task struct {
	ID        string     `json:"id"`
	Subject   string     `json:"subject"`
	Status    TaskStatus `json:"status"`
	AddedAt   time.Time  `json:"added_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TaskSummary counts tasks by status.
type TaskSummary struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Pending    int `json:"pending"`
	Skipped    int `json:"skipped"`
}

// Summarize counts tasks by status.
func Summarize(tasks []Task) TaskSummary {
	sum := TaskSummary{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case TaskCompleted:
			sum.Completed++
		case TaskInProgress:
			sum.InProgress++
		case TaskPending:
			sum.Pending++
		case TaskSkipped:
			sum.Skipped++
		}
	}
	return sum
}

// FindTask returns the index of the task with id, or -1.
func (s *Session) FindTask(id string) int {
	for i := range s.Tasks {
		if s.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// SubjectTaken reports whether any task other than exceptID uses subject.
func (s *Session) SubjectTaken(subject, exceptID string) bool {
	for _, t := range s.Tasks {
		if t.ID != exceptID && t.Subject == subject {
			return true
		}
	}
	return false
}
