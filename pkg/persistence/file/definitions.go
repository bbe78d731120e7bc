package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/skein-dev/skein/pkg/models"
	"github.com/skein-dev/skein/pkg/persistence"
)

const dirPermissions = 0o755

// DefinitionRepository stores one JSON file per definition plus a versions
// index mapping each name to its registration history.
type DefinitionRepository struct {
	root string

	mu sync.Mutex
}

// NewDefinitionRepository creates a definition repository under root.
func NewDefinitionRepository(root string) *DefinitionRepository {
	return &DefinitionRepository{root: root}
}

func (r *DefinitionRepository) dir() string {
	return filepath.Join(r.root, "definitions")
}

func (r *DefinitionRepository) path(id string) string {
	return filepath.Join(r.dir(), id+".json")
}

func (r *DefinitionRepository) versionsPath() string {
	return filepath.Join(r.dir(), "versions.json")
}

// Save writes the definition document and appends its id to the name's
// version history.
func (r *DefinitionRepository) Save(_ context.Context, def *models.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir(), dirPermissions); err != nil {
		return persistence.NewStoreError("Save", def.ID, err)
	}

	if err := writeJSON(r.path(def.ID), def); err != nil {
		return persistence.NewStoreError("Save", def.ID, err)
	}

	versions, err := r.readVersions()
	if err != nil {
		return persistence.NewStoreError("Save", def.ID, err)
	}

	versions[def.Name] = append(versions[def.Name], def.ID)

	if err := writeJSON(r.versionsPath(), versions); err != nil {
		return persistence.NewStoreError("Save", def.ID, err)
	}

	return nil
}

// GetByID reads one definition document.
func (r *DefinitionRepository) GetByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	def := &models.WorkflowDefinition{}
	if err := readJSON(r.path(id), def); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStoreError("GetByID", id, persistence.ErrDefinitionNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	return def, nil
}

// LatestByName resolves the last id in the name's version history.
func (r *DefinitionRepository) LatestByName(ctx context.Context, name string) (*models.WorkflowDefinition, error) {
	r.mu.Lock()

	versions, err := r.readVersions()
	if err != nil {
		r.mu.Unlock()

		return nil, persistence.NewStoreError("LatestByName", name, err)
	}

	r.mu.Unlock()

	ids := versions[name]
	if len(ids) == 0 {
		return nil, persistence.NewStoreError("LatestByName", name, persistence.ErrDefinitionNotFound)
	}

	return r.GetByID(ctx, ids[len(ids)-1])
}

// List loads every stored definition.
func (r *DefinitionRepository) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	files, err := fs.Glob(os.DirFS(r.dir()), "*.json")
	if err != nil {
		return nil, persistence.NewStoreError("List", "", err)
	}

	out := make([]*models.WorkflowDefinition, 0, len(files))

	for _, file := range files {
		if file == "versions.json" {
			continue
		}

		id := file[:len(file)-len(".json")]

		def, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load definition %s: %w", id, err)
		}

		out = append(out, def)
	}

	return out, nil
}

func (r *DefinitionRepository) readVersions() (map[string][]string, error) {
	versions := make(map[string][]string)

	err := readJSON(r.versionsPath(), &versions)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return versions, nil
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, raw, 0o600)
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, v)
}
