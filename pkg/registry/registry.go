// Package registry maps handler names to task implementations.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skein-dev/skein/pkg/protocol"
)

// EchoHandlerName is the name reported for the fallback handler.
const EchoHandlerName = "echo"

// echoHandler returns its input unchanged. It backs the permissive lookup
// mode: a task whose handler name is unregistered becomes a pass-through
// instead of an error.
var echoHandler = protocol.HandlerFunc(
	func(_ context.Context, input map[string]any, _ map[string]any) (map[string]any, error) {
		return input, nil
	},
)

// Registry is a concurrency-safe lookup table of named task handlers.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]protocol.Handler
	strict   bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithStrictLookup makes Lookup fail for unregistered names instead of
// falling back to the echo handler.
func WithStrictLookup() Option {
	return func(r *Registry) { r.strict = true }
}

// NewRegistry creates an empty handler registry. By default lookups are
// permissive: a missing handler resolves to the echo handler.
func NewRegistry(logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		logger:   logger,
		handlers: make(map[string]protocol.Handler),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register stores a handler under a name. The last registration for a name wins.
func (r *Registry) Register(name string, handler protocol.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		r.logger.Warn("Replacing registered handler", "handler", name)
	}

	r.handlers[name] = handler
}

// Lookup resolves a handler by name. In permissive mode an unknown name
// returns the echo handler; in strict mode it is an error.
func (r *Registry) Lookup(name string) (protocol.Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[name]
	if !ok {
		if r.strict {
			return nil, fmt.Errorf("handler '%s' not registered", name)
		}

		r.logger.Debug("Handler not registered, using echo fallback", "handler", name)

		return echoHandler, nil
	}

	return handler, nil
}

// Has reports whether a handler is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.handlers[name]

	return ok
}

// Names returns the registered handler names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}

	return names
}
