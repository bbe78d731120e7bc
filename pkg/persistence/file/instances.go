package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/skein-dev/skein/pkg/models"
	"github.com/skein-dev/skein/pkg/persistence"
)

// InstanceRepository stores one JSON file per workflow instance.
type InstanceRepository struct {
	root string

	mu sync.Mutex
}

// NewInstanceRepository creates an instance repository under root.
func NewInstanceRepository(root string) *InstanceRepository {
	return &InstanceRepository{root: root}
}

func (r *InstanceRepository) dir() string {
	return filepath.Join(r.root, "instances")
}

func (r *InstanceRepository) path(id string) string {
	return filepath.Join(r.dir(), id+".json")
}

// Save upserts the instance document.
func (r *InstanceRepository) Save(_ context.Context, instance *models.WorkflowInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir(), dirPermissions); err != nil {
		return persistence.NewStoreError("Save", instance.ID, err)
	}

	if err := writeJSON(r.path(instance.ID), instance); err != nil {
		return persistence.NewStoreError("Save", instance.ID, err)
	}

	return nil
}

// GetByID reads one instance document.
func (r *InstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance := &models.WorkflowInstance{}
	if err := readJSON(r.path(id), instance); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStoreError("GetByID", id, persistence.ErrInstanceNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	return instance, nil
}

// List loads every stored instance.
func (r *InstanceRepository) List(ctx context.Context) ([]*models.WorkflowInstance, error) {
	files, err := fs.Glob(os.DirFS(r.dir()), "*.json")
	if err != nil {
		return nil, persistence.NewStoreError("List", "", err)
	}

	out := make([]*models.WorkflowInstance, 0, len(files))

	for _, file := range files {
		id := file[:len(file)-len(".json")]

		instance, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load instance %s: %w", id, err)
		}

		out = append(out, instance)
	}

	return out, nil
}
