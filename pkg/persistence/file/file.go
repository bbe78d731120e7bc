// Package file provides file-based persistence: one JSON document per
// aggregate under a root directory. Suited to single-process deployments and
// local development.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/skein-dev/skein/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root        string
	definitions *DefinitionRepository
	instances   *InstanceRepository
	events      *EventRepository
}

// NewPersistence creates a file backend rooted at the given directory. A
// "file://" prefix on the root is accepted and stripped.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:        cleanRoot,
		definitions: NewDefinitionRepository(cleanRoot),
		instances:   NewInstanceRepository(cleanRoot),
		events:      NewEventRepository(cleanRoot),
	}
}

func (fp *Persistence) Definitions() persistence.DefinitionRepository { return fp.definitions }
func (fp *Persistence) Instances() persistence.InstanceRepository     { return fp.instances }
func (fp *Persistence) Events() persistence.EventRepository           { return fp.events }

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close is a no-op for file persistence.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}
