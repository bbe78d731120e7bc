// Package redis provides the Redis persistence backend. Definitions and
// instances live in hashes; per-instance event logs are lists, so appends
// stay ordered without extra bookkeeping.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/skein-dev/skein/pkg/events"
	"github.com/skein-dev/skein/pkg/models"
	"github.com/skein-dev/skein/pkg/persistence"
)

const keyPrefix = "skein:"

// Persistence implements persistence.Persistence on Redis.
type Persistence struct {
	client      *redis.Client
	definitions *DefinitionRepository
	instances   *InstanceRepository
	events      *EventRepository
}

// NewPersistence connects to the Redis URL (redis://...) and verifies the
// connection.
func NewPersistence(ctx context.Context, redisURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewPersistenceWithClient(client), nil
}

// NewPersistenceWithClient wraps an existing client, which tests use with
// miniature or shared servers.
func NewPersistenceWithClient(client *redis.Client) *Persistence {
	return &Persistence{
		client:      client,
		definitions: &DefinitionRepository{client: client},
		instances:   &InstanceRepository{client: client},
		events:      &EventRepository{client: client},
	}
}

func (p *Persistence) Definitions() persistence.DefinitionRepository { return p.definitions }
func (p *Persistence) Instances() persistence.InstanceRepository     { return p.instances }
func (p *Persistence) Events() persistence.EventRepository           { return p.events }

// HealthCheck pings the server.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the client.
func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

// DefinitionRepository stores definitions in a hash plus a per-name version list.
type DefinitionRepository struct {
	client *redis.Client
}

func definitionsKey() string             { return keyPrefix + "definitions" }
func versionsKey(name string) string     { return keyPrefix + "definitions:versions:" + name }
func instancesKey() string               { return keyPrefix + "instances" }
func eventsKey(instanceID string) string { return keyPrefix + "events:" + instanceID }

// Save stores the definition and appends its id to the name's version list.
func (r *DefinitionRepository) Save(ctx context.Context, def *models.WorkflowDefinition) error {
	payload, err := json.Marshal(def)
	if err != nil {
		return persistence.NewStoreError("Save", def.ID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, definitionsKey(), def.ID, payload)
	pipe.RPush(ctx, versionsKey(def.Name), def.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewStoreError("Save", def.ID, err)
	}

	return nil
}

// GetByID loads one definition.
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	payload, err := r.client.HGet(ctx, definitionsKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.NewStoreError("GetByID", id, persistence.ErrDefinitionNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	def := &models.WorkflowDefinition{}
	if err := json.Unmarshal(payload, def); err != nil {
		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	return def, nil
}

// LatestByName resolves the last id on the name's version list.
func (r *DefinitionRepository) LatestByName(ctx context.Context, name string) (*models.WorkflowDefinition, error) {
	ids, err := r.client.LRange(ctx, versionsKey(name), -1, -1).Result()
	if err != nil {
		return nil, persistence.NewStoreError("LatestByName", name, err)
	}

	if len(ids) == 0 {
		return nil, persistence.NewStoreError("LatestByName", name, persistence.ErrDefinitionNotFound)
	}

	return r.GetByID(ctx, ids[0])
}

// List loads every stored definition.
func (r *DefinitionRepository) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	values, err := r.client.HVals(ctx, definitionsKey()).Result()
	if err != nil {
		return nil, persistence.NewStoreError("List", "", err)
	}

	out := make([]*models.WorkflowDefinition, 0, len(values))

	for _, value := range values {
		def := &models.WorkflowDefinition{}
		if err := json.Unmarshal([]byte(value), def); err != nil {
			return nil, persistence.NewStoreError("List", "", err)
		}

		out = append(out, def)
	}

	return out, nil
}

// InstanceRepository stores instance snapshots in a hash.
type InstanceRepository struct {
	client *redis.Client
}

// Save upserts the instance snapshot.
func (r *InstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	payload, err := json.Marshal(instance)
	if err != nil {
		return persistence.NewStoreError("Save", instance.ID, err)
	}

	if err := r.client.HSet(ctx, instancesKey(), instance.ID, payload).Err(); err != nil {
		return persistence.NewStoreError("Save", instance.ID, err)
	}

	return nil
}

// GetByID loads one instance.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	payload, err := r.client.HGet(ctx, instancesKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.NewStoreError("GetByID", id, persistence.ErrInstanceNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	instance := &models.WorkflowInstance{}
	if err := json.Unmarshal(payload, instance); err != nil {
		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	return instance, nil
}

// List loads every stored instance.
func (r *InstanceRepository) List(ctx context.Context) ([]*models.WorkflowInstance, error) {
	values, err := r.client.HVals(ctx, instancesKey()).Result()
	if err != nil {
		return nil, persistence.NewStoreError("List", "", err)
	}

	out := make([]*models.WorkflowInstance, 0, len(values))

	for _, value := range values {
		instance := &models.WorkflowInstance{}
		if err := json.Unmarshal([]byte(value), instance); err != nil {
			return nil, persistence.NewStoreError("List", "", err)
		}

		out = append(out, instance)
	}

	return out, nil
}

// EventRepository appends events to a per-instance list.
type EventRepository struct {
	client *redis.Client
}

// Append pushes one event onto the instance's list; RPUSH keeps insertion order.
func (r *EventRepository) Append(ctx context.Context, event *events.WorkflowEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return persistence.NewStoreError("Append", event.InstanceID, err)
	}

	if err := r.client.RPush(ctx, eventsKey(event.InstanceID), payload).Err(); err != nil {
		return persistence.NewStoreError("Append", event.InstanceID, err)
	}

	return nil
}

// ListByInstance replays the instance's event list.
func (r *EventRepository) ListByInstance(ctx context.Context, instanceID string) ([]*events.WorkflowEvent, error) {
	values, err := r.client.LRange(ctx, eventsKey(instanceID), 0, -1).Result()
	if err != nil {
		return nil, persistence.NewStoreError("ListByInstance", instanceID, err)
	}

	out := make([]*events.WorkflowEvent, 0, len(values))

	for _, value := range values {
		event := &events.WorkflowEvent{}
		if err := json.Unmarshal([]byte(value), event); err != nil {
			return nil, persistence.NewStoreError("ListByInstance", instanceID, err)
		}

		out = append(out, event)
	}

	return out, nil
}
