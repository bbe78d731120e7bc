package models

import "time"

// InstanceStatus is the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusCreated   InstanceStatus = "created"
	InstanceStatusRunning   InstanceStatus = "running"
	InstanceStatusPaused    InstanceStatus = "paused"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusFailed    InstanceStatus = "failed"
	InstanceStatusCancelled InstanceStatus = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusFailed || s == InstanceStatusCancelled
}

// TaskStatus is the lifecycle state of one task execution.
type TaskStatus string

const (
	TaskStatusPending        TaskStatus = "pending"
	TaskStatusRunning        TaskStatus = "running"
	TaskStatusCompleted      TaskStatus = "completed"
	TaskStatusFailed         TaskStatus = "failed"
	TaskStatusSkipped        TaskStatus = "skipped"
	TaskStatusWaiting        TaskStatus = "waiting"
	TaskStatusUpstreamFailed TaskStatus = "upstream_failed"
)

// Terminal reports whether the task can no longer change state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped, TaskStatusUpstreamFailed:
		return true
	default:
		return false
	}
}

// WorkflowInstance is one run of a definition. It is created on start,
// mutated only by the engine while running, and retained afterward for
// analytics.
type WorkflowInstance struct {
	ID               string                   `json:"id"`
	DefinitionID     string                   `json:"definition_id"`
	Status           InstanceStatus           `json:"status"`
	Tasks            map[string]*TaskInstance `json:"tasks"`
	Context          map[string]any           `json:"context"`
	TriggerType      TriggerType              `json:"trigger_type"`
	TriggeredBy      string                   `json:"triggered_by"`
	ParentInstanceID string                   `json:"parent_instance_id,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
	StartedAt        *time.Time               `json:"started_at,omitempty"`
	FinishedAt       *time.Time               `json:"finished_at,omitempty"`
}

// Duration is the wall time between start and finish, or zero while either
// timestamp is missing.
func (w *WorkflowInstance) Duration() time.Duration {
	if w.StartedAt == nil || w.FinishedAt == nil {
		return 0
	}

	return w.FinishedAt.Sub(*w.StartedAt)
}

// TaskInstance records one task execution inside a workflow instance,
// including its final attempt count and failure attribution.
type TaskInstance struct {
	ID                 string         `json:"id"`
	TaskID             string         `json:"task_id"`
	WorkflowInstanceID string         `json:"workflow_instance_id"`
	Status             TaskStatus     `json:"status"`
	Input              map[string]any `json:"input,omitempty"`
	Output             map[string]any `json:"output,omitempty"`
	Attempt            int            `json:"attempt"`
	StartedAt          *time.Time     `json:"started_at,omitempty"`
	FinishedAt         *time.Time     `json:"finished_at,omitempty"`
	Error              string         `json:"error,omitempty"`
	ErrorDetails       map[string]any `json:"error_details,omitempty"`
}

// Duration is the wall time between start and finish, or zero while either
// timestamp is missing.
func (t *TaskInstance) Duration() time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}

	return t.FinishedAt.Sub(*t.StartedAt)
}
