package cmd

import (
	"log/slog"

	"github.com/skein-dev/skein/pkg/handlers"
	"github.com/skein-dev/skein/pkg/registry"
)

// NewRegistry builds a handler registry with the built-in handlers installed.
func NewRegistry(logger *slog.Logger, opts ...registry.Option) *registry.Registry {
	reg := registry.NewRegistry(logger, opts...)
	handlers.RegisterDefaults(logger, reg)

	return reg
}
