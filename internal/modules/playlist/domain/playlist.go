package domain

import (
	"strings"

	feed "github.com/reshetovitsme/tubefeed/internal/modules/feed/domain"
	apperrors "github.com/reshetovitsme/tubefeed/internal/shared/errors"
	"github.com/samber/oops"
)

// WatchLater is the playlist toggled from feed views.
const WatchLater = "WATCHLATER"

// Item is one video placed in a named playlist. Within a playlist videos are
// identified by URL.
type Item struct {
	Playlist string     `json:"playlist"`
	Video    feed.Video `json:"video"`
}

func NewItem(playlist string, v feed.Video) Item {
	return Item{Playlist: strings.TrimSpace(playlist), Video: v}
}

// Row serializes the item as the playlist name followed by the video row.
func (i Item) Row() []string {
	return append([]string{i.Playlist}, i.Video.Row()...)
}

// ParseRow is the inverse of Row.
func ParseRow(fields []string) (Item, error) {
	if len(fields) < 1 || strings.TrimSpace(fields[0]) == "" {
		return Item{}, oops.Wrapf(apperrors.ErrMalformedRow, "playlist row without playlist name")
	}

	v, err := feed.ParseVideoRow(fields[1:])
	if err != nil {
		return Item{}, oops.With("playlist", fields[0]).Wrap(err)
	}
	return NewItem(fields[0], v), nil
}
