// Package memory provides the in-process persistence backend. It is the
// engine default: mutex-guarded maps, no external service.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/skein-dev/skein/pkg/events"
	"github.com/skein-dev/skein/pkg/models"
	"github.com/skein-dev/skein/pkg/persistence"
)

// Persistence keeps everything in process memory. All repositories are safe
// for concurrent use.
type Persistence struct {
	definitions *definitionRepository
	instances   *instanceRepository
	events      *eventRepository
}

// NewPersistence creates an empty in-memory backend.
func NewPersistence() *Persistence {
	return &Persistence{
		definitions: &definitionRepository{
			byID:     make(map[string]*models.WorkflowDefinition),
			versions: make(map[string][]string),
		},
		instances: &instanceRepository{
			byID: make(map[string]*models.WorkflowInstance),
		},
		events: &eventRepository{
			byInstance: make(map[string][]*events.WorkflowEvent),
		},
	}
}

func (p *Persistence) Definitions() persistence.DefinitionRepository { return p.definitions }
func (p *Persistence) Instances() persistence.InstanceRepository     { return p.instances }
func (p *Persistence) Events() persistence.EventRepository           { return p.events }

// HealthCheck always succeeds for the in-memory backend.
func (p *Persistence) HealthCheck(_ context.Context) error { return nil }

// Close is a no-op for the in-memory backend.
func (p *Persistence) Close(_ context.Context) error { return nil }

type definitionRepository struct {
	mu       sync.RWMutex
	byID     map[string]*models.WorkflowDefinition
	versions map[string][]string // name -> definition ids in registration order
}

func (r *definitionRepository) Save(_ context.Context, def *models.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[def.ID] = def
	r.versions[def.Name] = append(r.versions[def.Name], def.ID)

	return nil
}

func (r *definitionRepository) GetByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byID[id]
	if !ok {
		return nil, persistence.NewStoreError("GetByID", id, persistence.ErrDefinitionNotFound)
	}

	return def, nil
}

func (r *definitionRepository) LatestByName(_ context.Context, name string) (*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.versions[name]
	if len(ids) == 0 {
		return nil, persistence.NewStoreError("LatestByName", name, persistence.ErrDefinitionNotFound)
	}

	return r.byID[ids[len(ids)-1]], nil
}

func (r *definitionRepository) List(_ context.Context) ([]*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.WorkflowDefinition, 0, len(r.byID))
	for _, def := range r.byID {
		out = append(out, def)
	}

	return out, nil
}

type instanceRepository struct {
	mu   sync.RWMutex
	byID map[string]*models.WorkflowInstance
}

// Save stores a deep copy so the engine can keep mutating its live instance
// while readers hold the last snapshot.
func (r *instanceRepository) Save(_ context.Context, instance *models.WorkflowInstance) error {
	snapshot, err := cloneInstance(instance)
	if err != nil {
		return persistence.NewStoreError("Save", instance.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[instance.ID] = snapshot

	return nil
}

func (r *instanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, ok := r.byID[id]
	if !ok {
		return nil, persistence.NewStoreError("GetByID", id, persistence.ErrInstanceNotFound)
	}

	return instance, nil
}

func (r *instanceRepository) List(_ context.Context) ([]*models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.WorkflowInstance, 0, len(r.byID))
	for _, instance := range r.byID {
		out = append(out, instance)
	}

	return out, nil
}

func cloneInstance(instance *models.WorkflowInstance) (*models.WorkflowInstance, error) {
	raw, err := json.Marshal(instance)
	if err != nil {
		return nil, err
	}

	clone := &models.WorkflowInstance{}
	if err := json.Unmarshal(raw, clone); err != nil {
		return nil, err
	}

	return clone, nil
}

type eventRepository struct {
	mu         sync.Mutex
	byInstance map[string][]*events.WorkflowEvent
}

func (r *eventRepository) Append(_ context.Context, event *events.WorkflowEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byInstance[event.InstanceID] = append(r.byInstance[event.InstanceID], event)

	return nil
}

func (r *eventRepository) ListByInstance(_ context.Context, instanceID string) ([]*events.WorkflowEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := r.byInstance[instanceID]
	out := make([]*events.WorkflowEvent, len(stored))
	copy(out, stored)

	return out, nil
}
