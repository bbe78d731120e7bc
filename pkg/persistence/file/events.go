package file

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/skein-dev/skein/pkg/events"
	"github.com/skein-dev/skein/pkg/persistence"
)

// EventRepository appends events to one JSON-lines file per instance, which
// keeps appends cheap and preserves insertion order on disk.
type EventRepository struct {
	root string

	mu sync.Mutex
}

// NewEventRepository creates an event repository under root.
func NewEventRepository(root string) *EventRepository {
	return &EventRepository{root: root}
}

func (r *EventRepository) dir() string {
	return filepath.Join(r.root, "events")
}

func (r *EventRepository) path(instanceID string) string {
	return filepath.Join(r.dir(), instanceID+".jsonl")
}

// Append writes one event line. Safe for concurrent appenders.
func (r *EventRepository) Append(_ context.Context, event *events.WorkflowEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir(), dirPermissions); err != nil {
		return persistence.NewStoreError("Append", event.InstanceID, err)
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return persistence.NewStoreError("Append", event.InstanceID, err)
	}

	f, err := os.OpenFile(r.path(event.InstanceID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return persistence.NewStoreError("Append", event.InstanceID, err)
	}
	defer f.Close()

	if _, err := f.Write(append(raw, '\n')); err != nil {
		return persistence.NewStoreError("Append", event.InstanceID, err)
	}

	return nil
}

// ListByInstance replays the instance's event file in insertion order.
func (r *EventRepository) ListByInstance(_ context.Context, instanceID string) ([]*events.WorkflowEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path(instanceID))
	if err != nil {
		if os.IsNotExist(err) {
			return []*events.WorkflowEvent{}, nil
		}

		return nil, persistence.NewStoreError("ListByInstance", instanceID, err)
	}
	defer f.Close()

	out := make([]*events.WorkflowEvent, 0)
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		event := &events.WorkflowEvent{}
		if err := json.Unmarshal(scanner.Bytes(), event); err != nil {
			return nil, persistence.NewStoreError("ListByInstance", instanceID, err)
		}

		out = append(out, event)
	}

	if err := scanner.Err(); err != nil {
		return nil, persistence.NewStoreError("ListByInstance", instanceID, err)
	}

	return out, nil
}
