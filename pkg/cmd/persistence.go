// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/skein-dev/skein/pkg/persistence"
	"github.com/skein-dev/skein/pkg/persistence/file"
	"github.com/skein-dev/skein/pkg/persistence/memory"
	"github.com/skein-dev/skein/pkg/persistence/postgresql"
	"github.com/skein-dev/skein/pkg/persistence/redis"
)

// NewPersistence selects a backend by URL scheme: postgres://, redis://,
// file:// or memory://.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseScheme(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "redis", "rediss":
		return redis.NewPersistence(ctx, databaseURL)
	case "file":
		return file.NewPersistence(databaseURL), nil
	case "memory", "":
		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence URL %q (supported: postgres, redis, file, memory)", databaseURL)
	}
}

func parseScheme(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return scheme
}
