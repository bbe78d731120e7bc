// Package events defines the append-only audit events emitted during
// workflow execution.
package events

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
)

// Topic is the event bus topic all workflow events are published on.
const Topic = "skein.workflow.events"

const (
	// KeyMetadataKey carries the partition key (the instance id) on bus messages.
	KeyMetadataKey = "key"
	// TypeMetadataKey carries the event type on bus messages.
	TypeMetadataKey = "event_type"
)

// EventType classifies a workflow event.
type EventType string

const (
	WorkflowStartedEvent   EventType = "workflow.started"
	WorkflowCompletedEvent EventType = "workflow.completed"
	WorkflowFailedEvent    EventType = "workflow.failed"
	WorkflowCancelledEvent EventType = "workflow.cancelled"
	TaskStartedEvent       EventType = "task.started"
	TaskCompletedEvent     EventType = "task.completed"
	TaskFailedEvent        EventType = "task.failed"
)

// WorkflowEvent is one entry of the audit trail. Events are append-only:
// never mutated, never deleted, ordered by insertion.
type WorkflowEvent struct {
	ID             string         `json:"id"`
	InstanceID     string         `json:"instance_id"`
	Type           EventType      `json:"type"`
	TaskInstanceID string         `json:"task_instance_id,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// GetType implements the event bus Event interface.
func (e *WorkflowEvent) GetType() EventType {
	return e.Type
}

// New creates an event with a fresh ULID and the current timestamp.
func New(instanceID string, eventType EventType) *WorkflowEvent {
	return &WorkflowEvent{
		ID:         watermill.NewULID(),
		InstanceID: instanceID,
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
	}
}

// WithTask attributes the event to a task instance.
func (e *WorkflowEvent) WithTask(taskInstanceID string) *WorkflowEvent {
	e.TaskInstanceID = taskInstanceID

	return e
}

// WithData attaches free-form payload data.
func (e *WorkflowEvent) WithData(data map[string]any) *WorkflowEvent {
	e.Data = data

	return e
}
