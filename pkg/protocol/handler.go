// Package protocol defines the contract between the executor and task
// handler implementations.
package protocol

import "context"

// Handler executes one task attempt. Input is the task's context snapshot,
// config the task definition's configuration map. The returned map is merged
// into the branch context by the engine; nil means no output.
type Handler interface {
	Execute(ctx context.Context, input map[string]any, config map[string]any) (map[string]any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, input map[string]any, config map[string]any) (map[string]any, error)

func (f HandlerFunc) Execute(ctx context.Context, input map[string]any, config map[string]any) (map[string]any, error) {
	return f(ctx, input, config)
}
