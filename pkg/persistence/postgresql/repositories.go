package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/skein-dev/skein/pkg/events"
	"github.com/skein-dev/skein/pkg/models"
	"github.com/skein-dev/skein/pkg/persistence"
)

// DefinitionRepository stores definitions as JSONB rows; the serial sequence
// column gives version ordering per name.
type DefinitionRepository struct {
	db *sql.DB
}

// Save inserts the definition. Definitions are immutable, so a duplicate id
// is an error rather than an update.
func (r *DefinitionRepository) Save(ctx context.Context, def *models.WorkflowDefinition) error {
	payload, err := json.Marshal(def)
	if err != nil {
		return persistence.NewStoreError("Save", def.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_definitions (id, name, payload, created_at)
		VALUES ($1, $2, $3, $4)`,
		def.ID, def.Name, payload, def.CreatedAt)
	if err != nil {
		return persistence.NewStoreError("Save", def.ID, err)
	}

	return nil
}

// GetByID loads one definition by id.
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return r.scanOne(ctx, "GetByID", id,
		`SELECT payload FROM workflow_definitions WHERE id = $1`, id)
}

// LatestByName loads the most recently registered definition for a name.
func (r *DefinitionRepository) LatestByName(ctx context.Context, name string) (*models.WorkflowDefinition, error) {
	return r.scanOne(ctx, "LatestByName", name,
		`SELECT payload FROM workflow_definitions WHERE name = $1 ORDER BY seq DESC LIMIT 1`, name)
}

// List loads every definition in registration order.
func (r *DefinitionRepository) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT payload FROM workflow_definitions ORDER BY seq`)
	if err != nil {
		return nil, persistence.NewStoreError("List", "", err)
	}
	defer rows.Close()

	out := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, persistence.NewStoreError("List", "", err)
		}

		def := &models.WorkflowDefinition{}
		if err := json.Unmarshal(payload, def); err != nil {
			return nil, persistence.NewStoreError("List", "", err)
		}

		out = append(out, def)
	}

	return out, rows.Err()
}

func (r *DefinitionRepository) scanOne(ctx context.Context, op, key, query string, args ...any) (*models.WorkflowDefinition, error) {
	var payload []byte

	err := r.db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStoreError(op, key, persistence.ErrDefinitionNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError(op, key, err)
	}

	def := &models.WorkflowDefinition{}
	if err := json.Unmarshal(payload, def); err != nil {
		return nil, persistence.NewStoreError(op, key, err)
	}

	return def, nil
}

// InstanceRepository upserts instance snapshots as JSONB rows.
type InstanceRepository struct {
	db *sql.DB
}

// Save upserts the instance snapshot.
func (r *InstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	payload, err := json.Marshal(instance)
	if err != nil {
		return persistence.NewStoreError("Save", instance.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_instances (id, definition_id, status, payload, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, payload = EXCLUDED.payload, updated_at = NOW()`,
		instance.ID, instance.DefinitionID, instance.Status, payload)
	if err != nil {
		return persistence.NewStoreError("Save", instance.ID, err)
	}

	return nil
}

// GetByID loads one instance by id.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	var payload []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM workflow_instances WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
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
	rows, err := r.db.QueryContext(ctx, `SELECT payload FROM workflow_instances`)
	if err != nil {
		return nil, persistence.NewStoreError("List", "", err)
	}
	defer rows.Close()

	out := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, persistence.NewStoreError("List", "", err)
		}

		instance := &models.WorkflowInstance{}
		if err := json.Unmarshal(payload, instance); err != nil {
			return nil, persistence.NewStoreError("List", "", err)
		}

		out = append(out, instance)
	}

	return out, rows.Err()
}

// EventRepository appends events to a serial-ordered table.
type EventRepository struct {
	db *sql.DB
}

// Append inserts one event row. The serial sequence preserves insertion order
// under concurrent appenders.
func (r *EventRepository) Append(ctx context.Context, event *events.WorkflowEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return persistence.NewStoreError("Append", event.InstanceID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_events (id, instance_id, event_type, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.InstanceID, event.Type, payload, event.Timestamp)
	if err != nil {
		return persistence.NewStoreError("Append", event.InstanceID, err)
	}

	return nil
}

// ListByInstance replays events for one instance in insertion order.
func (r *EventRepository) ListByInstance(ctx context.Context, instanceID string) ([]*events.WorkflowEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT payload FROM workflow_events WHERE instance_id = $1 ORDER BY seq`, instanceID)
	if err != nil {
		return nil, persistence.NewStoreError("ListByInstance", instanceID, err)
	}
	defer rows.Close()

	out := make([]*events.WorkflowEvent, 0)

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, persistence.NewStoreError("ListByInstance", instanceID, err)
		}

		event := &events.WorkflowEvent{}
		if err := json.Unmarshal(payload, event); err != nil {
			return nil, persistence.NewStoreError("ListByInstance", instanceID, err)
		}

		out = append(out, event)
	}

	return out, rows.Err()
}
