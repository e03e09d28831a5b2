package service

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"sync"

	feed "github.com/reshetovitsme/tubefeed/internal/modules/feed/domain"
	"github.com/reshetovitsme/tubefeed/internal/modules/filter/domain"
	"github.com/reshetovitsme/tubefeed/internal/shared/observer"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// errMatched stops the remaining checks once one filter has matched.
var errMatched = errors.New("filter matched")

// Group holds the active filters. Safe for concurrent use.
//
// Add and Remove notify observers under notifyMu, so events arrive in the
// order the filters changed.
type Group struct {
	events   observer.Subject[*domain.EntryFilter]
	notifyMu sync.Mutex
	mu       sync.RWMutex
	filters  []*domain.EntryFilter
}

// New creates an empty filter group.
func New() *Group {
	return &Group{}
}

// Events is where observers of filter changes register.
func (g *Group) Events() *observer.Subject[*domain.EntryFilter] {
	return &g.events
}

// Add inserts f unless an equal filter is already present.
func (g *Group) Add(f *domain.EntryFilter) bool {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	if lo.ContainsBy(g.filters, f.Equal) {
		g.mu.Unlock()
		return false
	}
	g.filters = append(g.filters, f)
	g.mu.Unlock()

	g.events.Notify(observer.AddEvent(f))
	return true
}

// Remove deletes the filter with the same patterns as f. Removing an absent
// filter does nothing.
func (g *Group) Remove(f *domain.EntryFilter) bool {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	idx := slices.IndexFunc(g.filters, f.Equal)
	if idx < 0 {
		g.mu.Unlock()
		return false
	}
	removed := g.filters[idx]
	g.filters = slices.Delete(g.filters, idx, idx+1)
	g.mu.Unlock()

	g.events.Notify(observer.RemoveEvent(removed))
	return true
}

// Insert adds f without notifying observers. Used when replaying a file.
func (g *Group) Insert(f *domain.EntryFilter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !lo.ContainsBy(g.filters, f.Equal) {
		g.filters = append(g.filters, f)
	}
}

// Snapshot returns a copy of the current filters.
func (g *Group) Snapshot() []*domain.EntryFilter {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.filters)
}

func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.filters)
}

// MatchesAny reports whether at least one filter matches v. Filters are
// checked in parallel and the first match cancels the remaining checks.
func (g *Group) MatchesAny(v feed.Video) bool {
	filters := g.Snapshot()
	switch len(filters) {
	case 0:
		return false
	case 1:
		return filters[0].Matches(v)
	}

	eg, ctx := errgroup.WithContext(context.Background())
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for _, f := range filters {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if f.Matches(v) {
				return errMatched
			}
			return nil
		})
	}

	return errors.Is(eg.Wait(), errMatched)
}

// Filter returns the videos no filter matches, preserving order.
func (g *Group) Filter(videos feed.Feed) feed.Feed {
	if g.Len() == 0 {
		return videos
	}
	return lo.Reject(videos, func(v feed.Video, _ int) bool {
		return g.MatchesAny(v)
	})
}
