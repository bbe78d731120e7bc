// Package definitions implements the workflow definition store. Definitions
// are validated once at registration and immutable afterwards; registering an
// existing name again appends a new version instead of mutating the old one.
package definitions

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/skein-dev/skein/pkg/models"
	"github.com/skein-dev/skein/pkg/persistence"
	"github.com/skein-dev/skein/pkg/registry"
)

// Store registers and resolves workflow definitions.
type Store struct {
	logger    *slog.Logger
	repo      persistence.DefinitionRepository
	registry  *registry.Registry
	validator *validator.Validate
}

// NewStore wires the store to its repository. The handler registry is used to
// warn about handlers that are not registered yet; late registration is
// allowed, so unknown handlers never fail validation.
func NewStore(logger *slog.Logger, repo persistence.DefinitionRepository, reg *registry.Registry) *Store {
	return &Store{
		logger:    logger.With("module", "definitions"),
		repo:      repo,
		registry:  reg,
		validator: validator.New(),
	}
}

// Register validates the definition and persists it as a new version of its
// name. The stored copy gets a fresh id, a version number one past the name's
// current latest, and a creation timestamp.
func (s *Store) Register(ctx context.Context, def *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if err := s.validate(def); err != nil {
		return nil, err
	}

	def.ID = uuid.NewString()
	def.CreatedAt = time.Now().UTC()
	def.Version = s.nextVersion(ctx, def.Name)

	if err := s.repo.Save(ctx, def); err != nil {
		return nil, fmt.Errorf("failed to save definition: %w", err)
	}

	s.logger.InfoContext(ctx, "Registered workflow definition",
		"name", def.Name, "version", def.Version, "definition_id", def.ID, "tasks", len(def.Tasks))

	return def, nil
}

// Get resolves a definition by id.
func (s *Store) Get(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return s.repo.GetByID(ctx, id)
}

// Latest resolves the most recently registered version of a name.
func (s *Store) Latest(ctx context.Context, name string) (*models.WorkflowDefinition, error) {
	return s.repo.LatestByName(ctx, name)
}

// List returns every stored definition, all versions included.
func (s *Store) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	return s.repo.List(ctx)
}

func (s *Store) nextVersion(ctx context.Context, name string) string {
	latest, err := s.repo.LatestByName(ctx, name)
	if err != nil || latest == nil {
		return "1"
	}

	n, err := strconv.Atoi(latest.Version)
	if err != nil {
		return "1"
	}

	return strconv.Itoa(n + 1)
}

// validate runs struct tags, per-kind checks and graph integrity, collecting
// every problem before reporting.
func (s *Store) validate(def *models.WorkflowDefinition) error {
	problems := make([]string, 0)

	if err := s.validator.Struct(def); err != nil {
		problems = append(problems, err.Error())
	}

	for id, task := range def.Tasks {
		if task == nil {
			problems = append(problems, fmt.Sprintf("task %q is empty", id))

			continue
		}

		if task.ID != id {
			problems = append(problems, fmt.Sprintf("task %q declares mismatched id %q", id, task.ID))
		}

		problems = append(problems, s.validateTask(task)...)
	}

	if err := models.ValidateGraph(def); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return &ValidationError{Name: def.Name, Problems: problems}
	}

	return nil
}

func (s *Store) validateTask(task *models.TaskDefinition) []string {
	problems := make([]string, 0)

	switch task.Kind {
	case models.TaskKindAction:
		if task.Handler == "" {
			problems = append(problems, fmt.Sprintf("action task %q has no handler", task.ID))
		}
	case models.TaskKindDecision:
		if len(task.Conditions) == 0 {
			problems = append(problems, fmt.Sprintf("decision task %q has no condition branches", task.ID))
		}

		for i, branch := range task.Conditions {
			if branch.When.Field == "" || branch.When.Operator == "" {
				problems = append(problems, fmt.Sprintf("decision task %q branch %d has an incomplete condition", task.ID, i))
			}
		}
	case models.TaskKindParallel:
		if len(task.NextTasks) < 2 {
			problems = append(problems, fmt.Sprintf("parallel task %q needs at least two branches", task.ID))
		}
	case models.TaskKindWait, models.TaskKindHumanApproval, models.TaskKindSubWorkflow:
		// No structural requirements beyond the graph checks.
	default:
		problems = append(problems, fmt.Sprintf("task %q has unknown kind %q", task.ID, task.Kind))
	}

	if task.Retry != nil {
		if task.Retry.MaxAttempts < 1 {
			problems = append(problems, fmt.Sprintf("task %q retry policy needs max_attempts >= 1", task.ID))
		}

		if task.Retry.BackoffMultiplier < 1 {
			problems = append(problems, fmt.Sprintf("task %q retry policy needs backoff_multiplier >= 1", task.ID))
		}
	}

	if s.registry != nil && task.Kind == models.TaskKindAction && !s.registry.Has(task.Handler) {
		s.logger.Warn("Task references an unregistered handler", "task_id", task.ID, "handler", task.Handler)
	}

	return problems
}
