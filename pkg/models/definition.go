// Package models defines the core domain models for workflow graph orchestration.
package models

import "time"

// TriggerType identifies what kind of event started a workflow instance.
type TriggerType string

const (
	TriggerTypeManual    TriggerType = "manual"
	TriggerTypeScheduled TriggerType = "scheduled"
	TriggerTypeEvent     TriggerType = "event"
	TriggerTypeWebhook   TriggerType = "webhook"
	TriggerTypeAPI       TriggerType = "api"
)

// TriggerDescriptor declares how a definition may be started. Scheduled
// triggers carry a cron expression in Configuration under "cron".
type TriggerDescriptor struct {
	ID            string         `json:"id"`
	Type          TriggerType    `json:"type"          validate:"required"`
	Configuration map[string]any `json:"configuration"`
}

// WorkflowDefinition is an immutable workflow graph. Re-registering the same
// name never mutates an existing definition; it creates a new one appended to
// that name's version history.
type WorkflowDefinition struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"          validate:"required,min=3"`
	Version      string                     `json:"version"`
	Tasks        map[string]*TaskDefinition `json:"tasks"         validate:"required,min=1"`
	EntryTaskID  string                     `json:"entry_task_id" validate:"required"`
	Triggers     []TriggerDescriptor        `json:"triggers,omitempty"`
	InputSchema  map[string]any             `json:"input_schema,omitempty"`
	OutputSchema map[string]any             `json:"output_schema,omitempty"`
	Active       bool                       `json:"active"`
	CreatedAt    time.Time                  `json:"created_at"`
}

// Task returns the task definition for id, or nil when the id is unknown.
func (d *WorkflowDefinition) Task(id string) *TaskDefinition {
	return d.Tasks[id]
}
