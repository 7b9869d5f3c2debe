// Package task models a decomposed plan as a set of dependency-aware tasks
// and owns every status transition applied to them.
package task

import (
	"errors"
	"time"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in_progress"
	StatusRetrying   Status = "retrying"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Dispatchable reports whether a task in this status may be started once its
// dependencies are complete.
func (s Status) Dispatchable() bool {
	return s == StatusReady || s == StatusRetrying
}

// DefaultMaxRetries applies when a step does not set its own retry budget.
const DefaultMaxRetries = 2

var (
	// ErrTaskNotFound is returned for unknown task ids.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned when a status change is not allowed
	// from the task's current status.
	ErrInvalidTransition = errors.New("invalid task transition")
	// ErrDependenciesIncomplete is returned when starting a task whose
	// dependencies have not all completed.
	ErrDependenciesIncomplete = errors.New("task dependencies incomplete")
	// ErrRetryBudgetExhausted is returned by MarkRetry once retry_count has
	// reached max_retries; the task is failed permanently.
	ErrRetryBudgetExhausted = errors.New("task retry budget exhausted")
)

// Task is one unit of work inside a Queue.
type Task struct {
	ID            string    `json:"id" yaml:"id"`
	Title         string    `json:"title" yaml:"title"`
	Description   string    `json:"description" yaml:"description"`
	AssignedAgent string    `json:"assigned_agent" yaml:"assigned_agent"`
	DependsOn     []string  `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Status        Status    `json:"status" yaml:"status"`
	RetryCount    int       `json:"retry_count" yaml:"retry_count"`
	MaxRetries    int       `json:"max_retries" yaml:"max_retries"`
	Attempts      int       `json:"attempts" yaml:"attempts"`
	Priority      int       `json:"priority" yaml:"priority"`
	ShowToUser    bool      `json:"show_to_user,omitempty" yaml:"show_to_user,omitempty"`
	Result        string    `json:"result,omitempty" yaml:"result,omitempty"`
	Error         string    `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	StartedAt     time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt   time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// PermanentlyFailed reports whether the task failed with no retries left.
func (t Task) PermanentlyFailed() bool {
	return t.Status == StatusFailed && t.RetryCount >= t.MaxRetries
}

// Terminal reports whether the task will never change status again.
func (t Task) Terminal() bool {
	return t.Status == StatusCompleted || t.PermanentlyFailed()
}

func (t Task) clone() Task {
	t.DependsOn = append([]string(nil), t.DependsOn...)
	return t
}

// LogEntry is one record of the queue's monotonic execution log.
type LogEntry struct {
	Seq    int       `json:"seq"`
	TaskID string    `json:"task_id"`
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Progress aggregates task counts by status.
type Progress struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Ready      int `json:"ready"`
	InProgress int `json:"in_progress"`
	Retrying   int `json:"retrying"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Retries    int `json:"retries"`
}

// Done reports the count of tasks in a terminal state.
func (p Progress) Done() int {
	return p.Completed + p.Failed
}
