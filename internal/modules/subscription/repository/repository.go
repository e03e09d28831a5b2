package repository

import (
	"github.com/reshetovitsme/tubefeed/internal/modules/subscription/domain"
	"github.com/reshetovitsme/tubefeed/internal/shared/observer"
)

// Repository persists subscriptions. It replays stored rows on Load and
// mirrors group changes it is notified about.
type Repository interface {
	observer.Observer[domain.Subscription]
	Load(insert func(domain.Subscription)) error
	Path() string
}
