// Package scheduler starts workflow runs from cron-based triggers. Each
// active definition with a scheduled trigger gets a cron entry that fires
// Engine.Start with the scheduled trigger type.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/skein-dev/skein/pkg/engine"
	"github.com/skein-dev/skein/pkg/models"
	"github.com/skein-dev/skein/pkg/persistence"
)

type Scheduler struct {
	logger      *slog.Logger
	definitions persistence.DefinitionRepository
	engine      *engine.Engine
	cron        *cron.Cron

	mu      sync.Mutex
	entries map[string][]cron.EntryID
}

func NewScheduler(logger *slog.Logger, definitions persistence.DefinitionRepository, eng *engine.Engine) *Scheduler {
	return &Scheduler{
		logger:      logger.With("module", "scheduler"),
		definitions: definitions,
		engine:      eng,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		entries: make(map[string][]cron.EntryID),
	}
}

// Start schedules every active definition that declares a scheduled trigger
// and begins firing them.
func (s *Scheduler) Start(ctx context.Context) error {
	defs, err := s.definitions.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load definitions: %w", err)
	}

	for _, def := range defs {
		if !def.Active {
			continue
		}

		if err := s.Schedule(def); err != nil {
			s.logger.WarnContext(ctx, "Skipping unschedulable definition",
				"definition_id", def.ID, "name", def.Name, "error", err)
		}
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started", "entries", len(s.cron.Entries()))

	return nil
}

// Schedule adds cron entries for the definition's scheduled triggers. A
// definition without scheduled triggers is a no-op.
func (s *Scheduler) Schedule(def *models.WorkflowDefinition) error {
	for _, trigger := range def.Triggers {
		if trigger.Type != models.TriggerTypeScheduled {
			continue
		}

		expr, _ := trigger.Configuration["cron"].(string)
		if expr == "" {
			return fmt.Errorf("scheduled trigger %q of definition %q has no cron expression", trigger.ID, def.ID)
		}

		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("scheduled trigger %q of definition %q: %w", trigger.ID, def.ID, err)
		}

		definitionID := def.ID
		triggerID := trigger.ID

		entryID, err := s.cron.AddFunc(expr, func() {
			s.fire(definitionID, triggerID)
		})
		if err != nil {
			return fmt.Errorf("failed to add cron entry for definition %q: %w", def.ID, err)
		}

		s.mu.Lock()
		s.entries[def.ID] = append(s.entries[def.ID], entryID)
		s.mu.Unlock()

		s.logger.Info("Scheduled workflow definition",
			"definition_id", def.ID, "name", def.Name, "trigger_id", trigger.ID, "cron", expr)
	}

	return nil
}

// Unschedule removes every cron entry of one definition.
func (s *Scheduler) Unschedule(definitionID string) {
	s.mu.Lock()
	ids := s.entries[definitionID]
	delete(s.entries, definitionID)
	s.mu.Unlock()

	for _, id := range ids {
		s.cron.Remove(id)
	}
}

// EntryCount reports how many cron entries are live.
func (s *Scheduler) EntryCount() int {
	return len(s.cron.Entries())
}

// Stop halts firing and waits for in-flight cron callbacks. Running workflow
// instances are not interrupted.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()

	select {
	case <-stopped.Done():
		s.logger.InfoContext(ctx, "Scheduler stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fire starts one scheduled run. Each firing is detached from the cron clock
// goroutine so a long run never delays other entries.
func (s *Scheduler) fire(definitionID, triggerID string) {
	ctx := context.Background()

	instance, err := s.engine.Start(ctx, engine.StartRequest{
		DefinitionID: definitionID,
		TriggeredBy:  triggerID,
		TriggerType:  models.TriggerTypeScheduled,
	})
	if err != nil {
		s.logger.Error("Failed to start scheduled workflow",
			"definition_id", definitionID, "trigger_id", triggerID, "error", err)

		return
	}

	s.logger.Info("Started scheduled workflow",
		"definition_id", definitionID, "trigger_id", triggerID, "instance_id", instance.ID)
}
