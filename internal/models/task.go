package models

import "time"

// Task represents a household task in the authoritative store
type Task struct {
	ID          string     `json:"id" db:"id"`
	ExternID    string     `json:"externId,omitempty" db:"extern_id"`
	Title       string     `json:"title" db:"title"`
	IsCompleted bool       `json:"isCompleted" db:"completed"`
	DueDate     *time.Time `json:"dueDate,omitempty" db:"due_date"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	CompletedAt *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}

// Snapshot returns the projection form of the task.
func (t Task) Snapshot() TaskSnapshot {
	return TaskSnapshot{
		ID:          t.ID,
		Title:       t.Title,
		IsCompleted: t.IsCompleted,
		DueDate:     t.DueDate,
	}
}

// TaskSnapshot is the denormalized task copy rendered by out-of-process surfaces
type TaskSnapshot struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	IsCompleted bool       `json:"isCompleted"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// Timer represents a running household timer
type Timer struct {
	ID              string    `json:"id" db:"id"`
	ExternID        string    `json:"externId,omitempty" db:"extern_id"`
	Type            string    `json:"type" db:"timer_type"`
	DurationSeconds int       `json:"durationSeconds" db:"duration_seconds"`
	TaskID          string    `json:"taskId,omitempty" db:"task_id"`
	StartedAt       time.Time `json:"startedAt" db:"started_at"`
}

// CreateTaskInput represents the input for creating a new task
type CreateTaskInput struct {
	Title    string     `json:"title" minLength:"1" maxLength:"500" doc:"The task title"`
	DueDate  *time.Time `json:"dueDate,omitempty" doc:"Optional due date"`
	ExternID string     `json:"externId,omitempty" maxLength:"80" doc:"Idempotency key; repeated creates return the existing task"`
}

// StartTimerInput represents the input for starting a timer
type StartTimerInput struct {
	Type            string `json:"type" minLength:"1" maxLength:"80" doc:"Timer type, e.g. laundry"`
	DurationSeconds int    `json:"durationSeconds" minimum:"1" doc:"Timer duration in seconds"`
	TaskID          string `json:"taskId,omitempty" doc:"Task the timer belongs to"`
	ExternID        string `json:"externId,omitempty" maxLength:"80" doc:"Idempotency key; repeated starts return the existing timer"`
}

// ClusterMemberInfo represents cluster member information
type ClusterMemberInfo struct {
	Name   string `json:"name"`
	Addr   string `json:"addr"`
	Status string `json:"status"`
}
