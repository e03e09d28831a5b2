package repository

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/reshetovitsme/tubefeed/internal/modules/subscription/domain"
	"github.com/reshetovitsme/tubefeed/internal/shared/rowstore"
	"github.com/samber/oops"
)

// FileName is the subscription table inside the storage directory.
const FileName = "subscriptions.csv"

// FileStorage keeps subscriptions as [platform, id] rows.
type FileStorage = rowstore.Manager[domain.Subscription]

// NewFileStorage creates the storage directory and returns the row store for
// its subscription table.
func NewFileStorage(basePath string, logger *slog.Logger) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, oops.With("base_path", basePath, "context", "failed to create storage directory").Wrap(err)
	}

	return rowstore.New(filepath.Join(basePath, FileName), domain.ParseRow, rowstore.WithLogger(logger)), nil
}

var _ Repository = (*FileStorage)(nil)
