package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/file"
	"github.com/dukex/flowrun/pkg/persistence/postgresql"
)

// NewPersistence opens the store named by the URL scheme: postgres:// or postgresql:// for PostgreSQL,
// file:// or a bare path for the JSON file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL persistence: %w", err)
		}

		return p, nil
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch provider {
	case "postgres", "postgresql":
		return "postgresql"
	default:
		return "file"
	}
}
