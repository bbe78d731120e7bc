// Package handlers ships the built-in task handlers: log, transform,
// http_request and delay. Everything else plugs in through the registry.
package handlers

import (
	"log/slog"

	"github.com/skein-dev/skein/pkg/registry"
)

// RegisterDefaults installs every built-in handler on the registry.
func RegisterDefaults(logger *slog.Logger, reg *registry.Registry) {
	reg.Register("log", NewLogHandler(logger))
	reg.Register("transform", NewTransformHandler())
	reg.Register("http_request", NewHTTPRequestHandler())
	reg.Register("delay", NewDelayHandler())
}
