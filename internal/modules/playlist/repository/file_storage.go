package repository

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/reshetovitsme/tubefeed/internal/modules/playlist/domain"
	"github.com/reshetovitsme/tubefeed/internal/shared/observer"
	"github.com/reshetovitsme/tubefeed/internal/shared/rowstore"
	"github.com/samber/oops"
)

const FileName = "playlists.csv"

// Repository persists playlist items.
type Repository interface {
	observer.Observer[domain.Item]
	Load(insert func(domain.Item)) error
	Path() string
}

// FileStorage keeps one row per playlist item.
type FileStorage = rowstore.Manager[domain.Item]

func NewFileStorage(basePath string, logger *slog.Logger) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, oops.With("base_path", basePath, "context", "failed to create storage directory").Wrap(err)
	}

	return rowstore.New(filepath.Join(basePath, FileName), domain.ParseRow, rowstore.WithLogger(logger)), nil
}

var _ Repository = (*FileStorage)(nil)
