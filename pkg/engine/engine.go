// Package engine owns workflow instances. It walks a definition's task graph
// from the entry task, drives the retry coordinator per task, merges task
// output into the instance context and records every lifecycle transition in
// the event log.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/skein-dev/skein/pkg/eventbus"
	"github.com/skein-dev/skein/pkg/events"
	"github.com/skein-dev/skein/pkg/executor"
	"github.com/skein-dev/skein/pkg/models"
	"github.com/skein-dev/skein/pkg/otelhelper"
	"github.com/skein-dev/skein/pkg/persistence"
)

const tracerName = "github.com/skein-dev/skein/pkg/engine"

// StartRequest carries everything needed to begin one workflow run.
type StartRequest struct {
	DefinitionID     string
	Input            map[string]any
	TriggeredBy      string
	TriggerType      models.TriggerType
	ParentInstanceID string
}

// Engine executes workflow instances against registered definitions.
type Engine struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	retry       *executor.RetryCoordinator
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventBus mirrors audit events onto a message broker in addition to the
// event log.
func WithEventBus(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

// WithTracer overrides the tracer used for run and task spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

func NewEngine(logger *slog.Logger, store persistence.Persistence, retry *executor.RetryCoordinator, opts ...Option) *Engine {
	e := &Engine{
		logger:      logger.With("module", "engine"),
		persistence: store,
		retry:       retry,
		tracer:      otel.Tracer(tracerName),
		running:     make(map[string]context.CancelFunc),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run executes a workflow synchronously and returns the instance in a
// terminal state. Task failures do not surface as an error return; the caller
// inspects the instance status. Errors are reserved for runs that could not
// begin or persist.
func (e *Engine) Run(ctx context.Context, req StartRequest) (*models.WorkflowInstance, error) {
	instance, def, err := e.createInstance(ctx, req)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.trackRun(instance.ID, cancel)

	defer func() {
		e.untrackRun(instance.ID)
		cancel()
	}()

	e.execute(runCtx, instance, def)

	return instance, nil
}

// Start begins a workflow asynchronously and returns as soon as the instance
// is persisted in running state. Progress is observed via GetInstance,
// ListEvents or the event bus.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*models.WorkflowInstance, error) {
	instance, def, err := e.createInstance(ctx, req)
	if err != nil {
		return nil, err
	}

	// The run outlives the caller's request context.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.trackRun(instance.ID, cancel)

	go func() {
		defer func() {
			e.untrackRun(instance.ID)
			cancel()
		}()

		e.execute(runCtx, instance, def)
	}()

	return instance, nil
}

// Cancel requests cancellation of a running instance. The run observes the
// cancellation at its next suspend point; handlers that ignore their context
// finish their current attempt first.
func (e *Engine) Cancel(ctx context.Context, instanceID string) error {
	e.mu.Lock()
	cancel, ok := e.running[instanceID]
	e.mu.Unlock()

	if ok {
		e.logger.InfoContext(ctx, "Cancelling workflow instance", "instance_id", instanceID)
		cancel()

		return nil
	}

	instance, err := e.persistence.Instances().GetByID(ctx, instanceID)
	if err != nil {
		return err
	}

	return fmt.Errorf("instance %q is not running (status %s)", instanceID, instance.Status)
}

// GetInstance returns the current snapshot of an instance.
func (e *Engine) GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	return e.persistence.Instances().GetByID(ctx, id)
}

// ListEvents replays the ordered event log of one instance.
func (e *Engine) ListEvents(ctx context.Context, instanceID string) ([]*events.WorkflowEvent, error) {
	return e.persistence.Events().ListByInstance(ctx, instanceID)
}

func (e *Engine) trackRun(instanceID string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.running[instanceID] = cancel
}

func (e *Engine) untrackRun(instanceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.running, instanceID)
}

func (e *Engine) createInstance(ctx context.Context, req StartRequest) (*models.WorkflowInstance, *models.WorkflowDefinition, error) {
	def, err := e.persistence.Definitions().GetByID(ctx, req.DefinitionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve definition %q: %w", req.DefinitionID, err)
	}

	if !def.Active {
		return nil, nil, fmt.Errorf("definition %q is not active", req.DefinitionID)
	}

	now := time.Now().UTC()
	instance := &models.WorkflowInstance{
		ID:               uuid.NewString(),
		DefinitionID:     def.ID,
		Status:           models.InstanceStatusCreated,
		Tasks:            make(map[string]*models.TaskInstance),
		Context:          cloneContext(req.Input),
		TriggerType:      req.TriggerType,
		TriggeredBy:      req.TriggeredBy,
		ParentInstanceID: req.ParentInstanceID,
		CreatedAt:        now,
	}

	instance.Status = models.InstanceStatusRunning
	instance.StartedAt = &now

	if err := e.persistence.Instances().Save(ctx, instance); err != nil {
		return nil, nil, fmt.Errorf("failed to persist instance: %w", err)
	}

	return instance, def, nil
}

// runState is the per-run shared state. Parallel branches mutate the instance
// concurrently, so every instance access goes through the lock.
type runState struct {
	mu       sync.Mutex
	def      *models.WorkflowDefinition
	instance *models.WorkflowInstance
}

// execute drives one instance to a terminal state.
func (e *Engine) execute(ctx context.Context, instance *models.WorkflowInstance, def *models.WorkflowDefinition) {
	logger := e.logger.With("instance_id", instance.ID, "definition_id", def.ID, "definition_name", def.Name)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.run",
		attribute.String(otelhelper.DefinitionIDKey, def.ID),
		attribute.String(otelhelper.DefinitionNameKey, def.Name),
		attribute.String(otelhelper.InstanceIDKey, instance.ID),
		attribute.String(otelhelper.TriggerTypeKey, string(instance.TriggerType)),
	)
	defer span.End()

	st := &runState{def: def, instance: instance}

	logger.InfoContext(ctx, "Workflow instance started", "entry_task", def.EntryTaskID)
	e.emit(ctx, st, events.New(instance.ID, events.WorkflowStartedEvent).WithData(map[string]any{
		"definition_name": def.Name,
		"triggered_by":    instance.TriggeredBy,
	}))

	final, runErr := e.runBranch(ctx, st, def.EntryTaskID, cloneContext(instance.Context))

	now := time.Now().UTC()

	st.mu.Lock()
	instance.FinishedAt = &now
	instance.Context = final

	switch {
	case ctx.Err() != nil:
		instance.Status = models.InstanceStatusCancelled
	case runErr != nil:
		instance.Status = models.InstanceStatusFailed
	default:
		instance.Status = models.InstanceStatusCompleted
	}
	st.mu.Unlock()

	switch instance.Status {
	case models.InstanceStatusCancelled:
		logger.InfoContext(ctx, "Workflow instance cancelled")
		e.emit(ctx, st, events.New(instance.ID, events.WorkflowCancelledEvent))
	case models.InstanceStatusFailed:
		logger.WarnContext(ctx, "Workflow instance failed", "error", runErr)
		otelhelper.SetError(span, runErr)
		e.emit(ctx, st, events.New(instance.ID, events.WorkflowFailedEvent).WithData(map[string]any{
			"error": runErr.Error(),
		}))
	default:
		logger.InfoContext(ctx, "Workflow instance completed", "duration", instance.Duration().String())
		e.emit(ctx, st, events.New(instance.ID, events.WorkflowCompletedEvent))
	}

	e.saveInstance(st)
}

// runBranch walks one sequential branch with an explicit worklist. branchCtx
// is owned by this branch alone; parallel children get their own copies and
// are merged back at the join. The returned map is the branch's final context.
func (e *Engine) runBranch(ctx context.Context, st *runState, startTaskID string, branchCtx map[string]any) (map[string]any, error) {
	queue := []string{startTaskID}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return branchCtx, err
		}

		taskID := queue[0]
		queue = queue[1:]

		task := st.def.Task(taskID)
		if task == nil {
			return branchCtx, fmt.Errorf("task %q not found in definition %q", taskID, st.def.ID)
		}

		output, err := e.runTask(ctx, st, task, branchCtx)
		if err != nil {
			return branchCtx, err
		}

		mergeContext(branchCtx, output)

		switch task.Kind {
		case models.TaskKindDecision:
			if target, ok := selectBranch(task, branchCtx); ok {
				queue = append(queue, target)
			}
		case models.TaskKindParallel:
			merged, err := e.runParallel(ctx, st, task, branchCtx)
			if err != nil {
				return branchCtx, err
			}

			branchCtx = merged
		default:
			queue = append(queue, task.NextTasks...)
		}
	}

	return branchCtx, nil
}

// selectBranch evaluates a decision task's branches in declared order and
// returns the first matching target. No match ends the branch without error.
func selectBranch(task *models.TaskDefinition, branchCtx map[string]any) (string, bool) {
	for _, branch := range task.Conditions {
		if branch.When.Evaluate(branchCtx) {
			return branch.Target, true
		}
	}

	return "", false
}

// runParallel fans out every next task onto its own goroutine and joins on
// all of them. Branches run to completion even when a sibling fails; the
// first failure in declaration order is the one reported. Successful branch
// contexts merge back in declaration order, so a later-declared branch wins
// conflicting keys deterministically.
func (e *Engine) runParallel(ctx context.Context, st *runState, task *models.TaskDefinition, branchCtx map[string]any) (map[string]any, error) {
	n := len(task.NextTasks)
	results := make([]map[string]any, n)
	errs := make([]error, n)

	var wg sync.WaitGroup

	for i, childID := range task.NextTasks {
		wg.Add(1)

		go func(i int, childID string) {
			defer wg.Done()

			results[i], errs[i] = e.runBranch(ctx, st, childID, cloneContext(branchCtx))
		}(i, childID)
	}

	wg.Wait()

	for i, childCtx := range results {
		if errs[i] == nil {
			mergeContext(branchCtx, childCtx)
		}
	}

	for _, err := range errs {
		if err != nil {
			return branchCtx, err
		}
	}

	return branchCtx, nil
}

// runTask creates the task instance, runs the task through the retry
// coordinator and records the terminal result. wait and sub_workflow kinds
// bypass the handler chain; everything else resolves a handler by name.
func (e *Engine) runTask(ctx context.Context, st *runState, task *models.TaskDefinition, branchCtx map[string]any) (map[string]any, error) {
	now := time.Now().UTC()
	taskInstance := &models.TaskInstance{
		ID:                 uuid.NewString(),
		TaskID:             task.ID,
		WorkflowInstanceID: st.instance.ID,
		Status:             models.TaskStatusRunning,
		Input:              cloneContext(branchCtx),
		StartedAt:          &now,
	}

	st.mu.Lock()
	st.instance.Tasks[task.ID] = taskInstance
	st.mu.Unlock()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.task",
		attribute.String(otelhelper.InstanceIDKey, st.instance.ID),
		attribute.String(otelhelper.TaskIDKey, task.ID),
		attribute.String(otelhelper.TaskKindKey, string(task.Kind)),
		attribute.String(otelhelper.TaskHandlerKey, task.Handler),
	)
	defer span.End()

	e.emit(ctx, st, events.New(st.instance.ID, events.TaskStartedEvent).WithTask(taskInstance.ID).WithData(map[string]any{
		"task_id": task.ID,
		"kind":    string(task.Kind),
	}))

	// The task instance is visible to sibling branches through st.instance, so
	// attempt bookkeeping goes through the run lock like every other mutation.
	record := func(attempt int) {
		st.mu.Lock()
		taskInstance.Attempt = attempt
		st.mu.Unlock()
	}

	output, err := e.invokeTask(ctx, st, task, taskInstance, record)

	finished := time.Now().UTC()

	st.mu.Lock()
	taskInstance.FinishedAt = &finished

	if err != nil {
		taskInstance.Status = models.TaskStatusFailed
		taskInstance.Error = err.Error()
	} else {
		taskInstance.Status = models.TaskStatusCompleted
		taskInstance.Output = output
	}
	st.mu.Unlock()

	if err != nil {
		otelhelper.SetError(span, err)
		e.emit(ctx, st, events.New(st.instance.ID, events.TaskFailedEvent).WithTask(taskInstance.ID).WithData(map[string]any{
			"task_id": task.ID,
			"error":   err.Error(),
			"attempt": taskInstance.Attempt,
		}))
		e.saveInstance(st)

		return nil, err
	}

	e.emit(ctx, st, events.New(st.instance.ID, events.TaskCompletedEvent).WithTask(taskInstance.ID).WithData(map[string]any{
		"task_id": task.ID,
		"attempt": taskInstance.Attempt,
	}))
	e.saveInstance(st)

	return output, nil
}

func (e *Engine) invokeTask(ctx context.Context, st *runState, task *models.TaskDefinition, taskInstance *models.TaskInstance, record executor.AttemptRecorder) (map[string]any, error) {
	switch task.Kind {
	case models.TaskKindWait:
		record(1)

		return nil, e.waitTask(ctx, task)
	case models.TaskKindSubWorkflow:
		record(1)

		return e.runSubWorkflow(ctx, st, task, taskInstance.Input)
	default:
		return e.retry.Run(ctx, task, taskInstance.Input, record)
	}
}

// waitTask pauses the branch for the duration in the task config ("duration",
// Go syntax).
func (e *Engine) waitTask(ctx context.Context, task *models.TaskDefinition) error {
	raw, _ := task.Config["duration"].(string)

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("wait task %q: invalid duration %q", task.ID, raw)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runSubWorkflow executes a child workflow synchronously and returns its final
// context as the task output. The child definition is named in the task
// config, either "definition_id" or "workflow_name" (latest version).
func (e *Engine) runSubWorkflow(ctx context.Context, st *runState, task *models.TaskDefinition, input map[string]any) (map[string]any, error) {
	definitionID, _ := task.Config["definition_id"].(string)

	if definitionID == "" {
		name, _ := task.Config["workflow_name"].(string)
		if name == "" {
			return nil, fmt.Errorf("sub_workflow task %q names no definition", task.ID)
		}

		def, err := e.persistence.Definitions().LatestByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("sub_workflow task %q: %w", task.ID, err)
		}

		definitionID = def.ID
	}

	child, err := e.Run(ctx, StartRequest{
		DefinitionID:     definitionID,
		Input:            input,
		TriggeredBy:      st.instance.ID,
		TriggerType:      models.TriggerTypeEvent,
		ParentInstanceID: st.instance.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("sub_workflow task %q: %w", task.ID, err)
	}

	if child.Status != models.InstanceStatusCompleted {
		return nil, fmt.Errorf("sub_workflow task %q: child instance %s finished %s", task.ID, child.ID, child.Status)
	}

	return child.Context, nil
}

// emit appends the event to the log and mirrors it on the bus. Neither sink
// may abort the run; failures are logged and execution continues.
func (e *Engine) emit(ctx context.Context, st *runState, event *events.WorkflowEvent) {
	if err := e.persistence.Events().Append(ctx, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to append workflow event",
			"instance_id", event.InstanceID, "event_type", event.Type, "error", err)
	}

	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, event.InstanceID, event); err != nil {
			e.logger.WarnContext(ctx, "Failed to publish workflow event",
				"instance_id", event.InstanceID, "event_type", event.Type, "error", err)
		}
	}
}

func (e *Engine) saveInstance(st *runState) {
	st.mu.Lock()
	defer st.mu.Unlock()

	// Persist with a background context so cancellation does not lose the
	// final snapshot.
	if err := e.persistence.Instances().Save(context.Background(), st.instance); err != nil {
		e.logger.Error("Failed to persist instance snapshot", "instance_id", st.instance.ID, "error", err)
	}
}

func cloneContext(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}

	return out
}

func mergeContext(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}
