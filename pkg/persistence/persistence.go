// Package persistence provides the storage abstraction for workflow
// definitions, instances and the audit event log.
package persistence

import (
	"context"

	"github.com/skein-dev/skein/pkg/events"
	"github.com/skein-dev/skein/pkg/models"
)

// DefinitionRepository stores immutable workflow definitions and the version
// history per definition name.
type DefinitionRepository interface {
	// Save stores a definition and appends its id to the version history of
	// its name. Definitions are never updated in place.
	Save(ctx context.Context, def *models.WorkflowDefinition) error
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	// LatestByName returns the most recently registered definition for a name.
	LatestByName(ctx context.Context, name string) (*models.WorkflowDefinition, error)
	List(ctx context.Context) ([]*models.WorkflowDefinition, error)
}

// InstanceRepository stores workflow instances. Save is an upsert; the engine
// writes snapshots as a run progresses and once more at the terminal state.
type InstanceRepository interface {
	Save(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	List(ctx context.Context) ([]*models.WorkflowInstance, error)
}

// EventRepository is the append-only event log. Implementations must be safe
// for concurrent appenders and preserve insertion order per instance.
type EventRepository interface {
	Append(ctx context.Context, event *events.WorkflowEvent) error
	ListByInstance(ctx context.Context, instanceID string) ([]*events.WorkflowEvent, error)
}

// Persistence bundles the three repositories behind one backend.
type Persistence interface {
	Definitions() DefinitionRepository
	Instances() InstanceRepository
	Events() EventRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
