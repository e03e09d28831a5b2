package repository

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/reshetovitsme/tubefeed/internal/modules/filter/domain"
	"github.com/reshetovitsme/tubefeed/internal/shared/observer"
	"github.com/reshetovitsme/tubefeed/internal/shared/rowstore"
	"github.com/samber/oops"
)

const FileName = "filters.csv"

// Repository persists filters.
type Repository interface {
	observer.Observer[*domain.EntryFilter]
	Load(insert func(*domain.EntryFilter)) error
	Path() string
}

// FileStorage keeps filters in a table headed by title,channel. Loading a
// table whose structure is broken fails instead of skipping rows.
type FileStorage = rowstore.Manager[*domain.EntryFilter]

func NewFileStorage(basePath string, logger *slog.Logger) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, oops.With("base_path", basePath, "context", "failed to create storage directory").Wrap(err)
	}

	return rowstore.New(
		filepath.Join(basePath, FileName),
		domain.ParseRow,
		rowstore.WithHeader(domain.Header...),
		rowstore.WithLogger(logger),
	), nil
}

var _ Repository = (*FileStorage)(nil)
