package executor

import (
	"context"
	"errors"
	"fmt"
)

// ErrTaskTimeout indicates a task ran past its configured timeout. Timed-out
// tasks count as failed attempts and follow the task's retry policy.
var ErrTaskTimeout = errors.New("task timeout")

// Error categories a retry policy may reference in RetryableErrors.
const (
	CategoryTimeout  = "timeout"
	CategoryHandler  = "handler_error"
	CategoryCanceled = "canceled"
)

// HandlerError attributes a failure to a specific task attempt.
type HandlerError struct {
	TaskID  string
	Handler string
	Attempt int
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("task %q handler %q failed on attempt %d: %v", e.TaskID, e.Handler, e.Attempt, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError reports that every allowed attempt failed. Err is the
// error of the final attempt.
type RetryExhaustedError struct {
	TaskID   string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("task %q failed after %d attempts: %v", e.TaskID, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// Categorize maps an attempt error onto a retry policy category.
func Categorize(err error) string {
	switch {
	case errors.Is(err, ErrTaskTimeout):
		return CategoryTimeout
	case errors.Is(err, context.Canceled):
		return CategoryCanceled
	default:
		return CategoryHandler
	}
}
