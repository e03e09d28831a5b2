package service

import (
	"context"
	"slices"
	"sync"

	feed "github.com/reshetovitsme/tubefeed/internal/modules/feed/domain"
	"github.com/reshetovitsme/tubefeed/internal/modules/subscription/domain"
	"github.com/reshetovitsme/tubefeed/internal/shared/observer"
	"github.com/samber/lo"
	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"
)

// Fetcher downloads the recent videos of one subscription.
type Fetcher interface {
	Fetch(ctx context.Context, sub domain.Subscription) ([]feed.Video, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, sub domain.Subscription) ([]feed.Video, error)

func (f FetcherFunc) Fetch(ctx context.Context, sub domain.Subscription) ([]feed.Video, error) {
	return f(ctx, sub)
}

// Group is the deduplicated, always sorted set of subscriptions.
//
// Observers are notified while the mutation that caused the event still holds
// notifyMu, so they see events in the same order the slice changed. They must
// not call Add or Remove on the same group.
type Group struct {
	events   observer.Subject[domain.Subscription]
	notifyMu sync.Mutex
	mu       sync.RWMutex
	subs     []domain.Subscription
}

// New creates an empty group.
func New() *Group {
	return &Group{}
}

// Events is where observers of subscription changes register.
func (g *Group) Events() *observer.Subject[domain.Subscription] {
	return &g.events
}

// Add inserts sub unless a subscription with the same identity exists.
func (g *Group) Add(sub domain.Subscription) bool {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	if !g.insert(sub) {
		return false
	}
	g.events.Notify(observer.AddEvent(sub))
	return true
}

// Insert adds sub without notifying observers. Used when replaying a file.
func (g *Group) Insert(sub domain.Subscription) {
	g.insert(sub)
}

func (g *Group) insert(sub domain.Subscription) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if slices.ContainsFunc(g.subs, sub.Same) {
		return false
	}
	g.subs = append(g.subs, sub)
	slices.SortFunc(g.subs, domain.Compare)
	return true
}

// Remove deletes the subscription with the identity of sub.
func (g *Group) Remove(sub domain.Subscription) bool {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	idx := slices.IndexFunc(g.subs, sub.Same)
	if idx < 0 {
		g.mu.Unlock()
		return false
	}
	removed := g.subs[idx]
	g.subs = slices.Delete(g.subs, idx, idx+1)
	g.mu.Unlock()

	g.events.Notify(observer.RemoveEvent(removed))
	return true
}

// ResolveName copies names from other onto unnamed members with the same
// identity. Names already set are kept.
func (g *Group) ResolveName(other []domain.Subscription) {
	names := lo.SliceToMap(lo.Filter(other, func(s domain.Subscription, _ int) bool {
		return s.Name != ""
	}), func(s domain.Subscription) (domain.Key, string) {
		return s.Key(), s.Name
	})
	if len(names) == 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	changed := false
	for i, sub := range g.subs {
		if sub.Name != "" {
			continue
		}
		if name, ok := names[sub.Key()]; ok {
			g.subs[i].Name = name
			changed = true
		}
	}
	if changed {
		slices.SortFunc(g.subs, domain.Compare)
	}
}

// Snapshot returns a copy of the members in display order.
func (g *Group) Snapshot() []domain.Subscription {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.subs)
}

func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.subs)
}

// Contains reports whether a subscription with the identity of sub exists.
func (g *Group) Contains(sub domain.Subscription) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.ContainsFunc(g.subs, sub.Same)
}

// Find returns the member with the given identity.
func (g *Group) Find(key domain.Key) (domain.Subscription, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return lo.Find(g.subs, func(s domain.Subscription) bool {
		return s.Key() == key
	})
}

// GetFeed fetches every member concurrently and combines the results. The
// first failure cancels the remaining fetches and is returned alone.
func (g *Group) GetFeed(ctx context.Context, fetcher Fetcher) (feed.Feed, error) {
	subs := g.Snapshot()
	feeds := make([]feed.Feed, len(subs))

	eg, ctx := errgroup.WithContext(ctx)
	for i, sub := range subs {
		eg.Go(func() error {
			videos, err := fetcher.Fetch(ctx, sub)
			if err != nil {
				return oops.With("subscription", sub.String()).Wrap(err)
			}
			feeds[i] = videos
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return feed.Combine(feeds...), nil
}

// GetFeedPartial fetches every member concurrently and combines whatever
// succeeded. Every failure is returned.
func (g *Group) GetFeedPartial(ctx context.Context, fetcher Fetcher) (feed.Feed, []error) {
	subs := g.Snapshot()
	feeds := make([]feed.Feed, len(subs))
	errs := make([]error, len(subs))

	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			videos, err := fetcher.Fetch(ctx, sub)
			if err != nil {
				errs[i] = oops.With("subscription", sub.String()).Wrap(err)
				return
			}
			feeds[i] = videos
		}()
	}
	wg.Wait()

	return feed.Combine(feeds...), lo.Compact(errs)
}
