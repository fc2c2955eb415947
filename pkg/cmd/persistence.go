// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/thibo-redpepper/convoflow/pkg/persistence"
	"github.com/thibo-redpepper/convoflow/pkg/persistence/file"
	"github.com/thibo-redpepper/convoflow/pkg/persistence/postgresql"
)

// NewPersistence picks the backing store from the URL scheme: postgres URLs
// get the migrated SQL store, anything else is treated as a file root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return store
	}

	return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
}
