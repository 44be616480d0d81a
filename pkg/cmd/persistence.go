// Package cmd wires the shared infrastructure pieces the binaries need:
// persistence, event bus, and the node registry.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/repopulse/pulseflow/pkg/persistence"
	"github.com/repopulse/pulseflow/pkg/persistence/file"
	"github.com/repopulse/pulseflow/pkg/persistence/postgresql"
)

// NewPersistence selects the persistence backend by URL scheme:
// postgres:// for PostgreSQL, anything else is treated as a file root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
