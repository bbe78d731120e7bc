// Package executor runs single task attempts and coordinates retries around
// them. It knows nothing about graph traversal; the engine decides what runs,
// the executor decides how one task run behaves.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skein-dev/skein/pkg/models"
	"github.com/skein-dev/skein/pkg/registry"
)

// Executor resolves a task's handler and runs one attempt with timeout
// enforcement.
type Executor struct {
	logger   *slog.Logger
	registry *registry.Registry
}

func NewExecutor(logger *slog.Logger, reg *registry.Registry) *Executor {
	return &Executor{
		logger:   logger.With("module", "executor"),
		registry: reg,
	}
}

// Execute runs one attempt of the task. The attempt number is supplied by the
// caller; the executor never writes to shared task-instance state, so the
// engine can snapshot instances from other goroutines while an attempt runs.
// On success the handler output is returned; the caller merges it into the
// instance context.
func (e *Executor) Execute(ctx context.Context, task *models.TaskDefinition, attempt int, input map[string]any) (map[string]any, error) {
	handler, err := e.registry.Lookup(task.Handler)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve handler for task %q: %w", task.ID, err)
	}

	logger := e.logger.With("task_id", task.ID, "handler", task.Handler, "attempt", attempt)
	logger.DebugContext(ctx, "Executing task attempt")

	if task.Timeout <= 0 {
		output, err := handler.Execute(ctx, input, task.Config)
		if err != nil {
			return nil, &HandlerError{TaskID: task.ID, Handler: task.Handler, Attempt: attempt, Err: err}
		}

		return output, nil
	}

	return e.executeWithTimeout(ctx, logger, task, attempt, handler.Execute, input)
}

type invokeFunc func(ctx context.Context, input map[string]any, config map[string]any) (map[string]any, error)

type attemptResult struct {
	output map[string]any
	err    error
}

// executeWithTimeout runs the handler in its own goroutine and abandons it
// when the deadline passes. The context handed to the handler is cancelled on
// timeout; cooperative handlers stop early, uncooperative ones leak until they
// return on their own.
func (e *Executor) executeWithTimeout(ctx context.Context, logger *slog.Logger, task *models.TaskDefinition, attempt int, invoke invokeFunc, input map[string]any) (map[string]any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, task.Timeout)
	defer cancel()

	done := make(chan attemptResult, 1)

	go func() {
		output, err := invoke(attemptCtx, input, task.Config)
		done <- attemptResult{output: output, err: err}
	}()

	select {
	case result := <-done:
		if result.err != nil {
			return nil, &HandlerError{TaskID: task.ID, Handler: task.Handler, Attempt: attempt, Err: result.err}
		}

		return result.output, nil
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		logger.WarnContext(ctx, "Task attempt timed out", "timeout", task.Timeout)

		return nil, &HandlerError{
			TaskID:  task.ID,
			Handler: task.Handler,
			Attempt: attempt,
			Err:     fmt.Errorf("%w after %s", ErrTaskTimeout, task.Timeout),
		}
	}
}

// AttemptRecorder publishes the current attempt number to the owning task
// instance. The engine supplies one that holds the run's lock, keeping all
// instance mutation on the engine's side.
type AttemptRecorder func(attempt int)

// RetryCoordinator wraps the executor with a task's retry policy.
type RetryCoordinator struct {
	logger   *slog.Logger
	executor *Executor

	// sleep is replaceable in tests so backoff does not slow them down.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryCoordinator(logger *slog.Logger, exec *Executor) *RetryCoordinator {
	return &RetryCoordinator{
		logger:   logger.With("module", "retry"),
		executor: exec,
		sleep:    sleepContext,
	}
}

// Run executes the task until it succeeds, the policy is exhausted or the
// context ends. record is called before each attempt runs, so a crash mid-run
// still shows the attempt as consumed and the final recorded count is the
// true one.
func (r *RetryCoordinator) Run(ctx context.Context, task *models.TaskDefinition, input map[string]any, record AttemptRecorder) (map[string]any, error) {
	policy := models.DefaultRetryPolicy()
	if task.Retry != nil {
		policy = *task.Retry
	}

	attempt := 0

	var lastErr error

	for attempt < policy.MaxAttempts {
		attempt++
		record(attempt)

		output, err := r.executor.Execute(ctx, task, attempt, input)
		if err == nil {
			return output, nil
		}

		lastErr = err
		category := Categorize(err)

		if category == CategoryCanceled {
			return nil, err
		}

		if !policy.Retryable(category) {
			r.logger.InfoContext(ctx, "Task error category is not retryable",
				"task_id", task.ID, "category", category, "attempt", attempt)

			break
		}

		if attempt >= policy.MaxAttempts {
			break
		}

		delay := policy.Delay(attempt)
		r.logger.InfoContext(ctx, "Retrying task after backoff",
			"task_id", task.ID, "attempt", attempt, "delay", delay)

		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	r.runErrorHandler(ctx, task, attempt, input, lastErr)

	return nil, &RetryExhaustedError{TaskID: task.ID, Attempts: attempt, Err: lastErr}
}

// runErrorHandler invokes the task's compensation handler once after the final
// failure. Its result never changes the task outcome; resolution and execution
// failures are logged and dropped.
func (r *RetryCoordinator) runErrorHandler(ctx context.Context, task *models.TaskDefinition, attempts int, input map[string]any, cause error) {
	if task.ErrorHandler == "" {
		return
	}

	handler, err := r.executor.registry.Lookup(task.ErrorHandler)
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to resolve error handler",
			"task_id", task.ID, "handler", task.ErrorHandler, "error", err)

		return
	}

	compensationInput := map[string]any{
		"task_id":  task.ID,
		"error":    cause.Error(),
		"attempts": attempts,
		"input":    input,
	}

	if _, err := handler.Execute(ctx, compensationInput, task.Config); err != nil {
		r.logger.WarnContext(ctx, "Error handler failed",
			"task_id", task.ID, "handler", task.ErrorHandler, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
