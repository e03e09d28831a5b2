package service

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	feed "github.com/reshetovitsme/tubefeed/internal/modules/feed/domain"
	"github.com/reshetovitsme/tubefeed/internal/modules/filter/domain"
	subscription "github.com/reshetovitsme/tubefeed/internal/modules/subscription/domain"
	apperrors "github.com/reshetovitsme/tubefeed/internal/shared/errors"
	"github.com/reshetovitsme/tubefeed/internal/shared/observer"
	"github.com/reshetovitsme/tubefeed/internal/shared/rowstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustFilter(t *testing.T, title, channel string) *domain.EntryFilter {
	t.Helper()
	f, err := domain.New(title, channel)
	require.NoError(t, err)
	return f
}

func entry(title, channel string) feed.Video {
	return feed.Video{
		Title:        title,
		Subscription: subscription.Subscription{Platform: subscription.PlatformYoutube, ID: "UC1", Name: channel},
		URL:          "https://www.youtube.com/watch?v=" + title,
		Published:    time.Now(),
	}
}

func TestNewEntryFilter(t *testing.T) {
	t.Run("valid patterns", func(t *testing.T) {
		for _, p := range [][2]string{{"", ""}, {"^Shorts", ""}, {"(?i)live", "Channel.*"}} {
			f, err := domain.New(p[0], p[1])
			require.NoError(t, err)
			assert.Equal(t, p[0], f.TitlePattern())
			assert.Equal(t, p[1], f.ChannelPattern())
		}
	})

	t.Run("invalid title", func(t *testing.T) {
		f, err := domain.New("(", "")
		assert.Nil(t, f)
		require.ErrorIs(t, err, apperrors.ErrPattern)
		var pe *apperrors.PatternError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "title", pe.Field)
	})

	t.Run("invalid channel", func(t *testing.T) {
		f, err := domain.New("ok", "[z-a]")
		assert.Nil(t, f)
		var pe *apperrors.PatternError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "channel", pe.Field)
	})
}

func TestEntryFilterMatches(t *testing.T) {
	f := mustFilter(t, "(?i)trailer", "^Studio")

	assert.True(t, f.Matches(entry("Official Trailer", "Studio X")))
	assert.False(t, f.Matches(entry("Official Trailer", "Indie Studio")))
	assert.False(t, f.Matches(entry("Review", "Studio X")))

	anything := mustFilter(t, "", "")
	assert.True(t, anything.Matches(entry("whatever", "")))
}

func TestEntryFilterMatchesUnnamedChannelByID(t *testing.T) {
	f := mustFilter(t, "", "^UC1$")
	assert.True(t, f.Matches(entry("x", "")))
}

func TestGroupAddRemove(t *testing.T) {
	g := New()
	var events []observer.Event[*domain.EntryFilter]
	g.Events().AttachFunc(func(ev observer.Event[*domain.EntryFilter]) {
		events = append(events, ev)
	})

	assert.True(t, g.Add(mustFilter(t, "a", "b")))
	assert.False(t, g.Add(mustFilter(t, "a", "b")))
	assert.Equal(t, 1, g.Len())

	assert.False(t, g.Remove(mustFilter(t, "a", "")))
	assert.True(t, g.Remove(mustFilter(t, "a", "b")))
	assert.Zero(t, g.Len())

	require.Len(t, events, 2)
	assert.Equal(t, observer.Add, events[0].Action)
	assert.Equal(t, observer.Remove, events[1].Action)
}

func TestMatchesAnyEquivalentToSequential(t *testing.T) {
	g := New()
	for i := range 32 {
		g.Add(mustFilter(t, fmt.Sprintf("^title-%d$", i), ""))
	}
	g.Add(mustFilter(t, "", "^blocked$"))

	videos := []feed.Video{
		entry("title-0", "c"),
		entry("title-31", "c"),
		entry("title-32", "c"),
		entry("other", "blocked"),
		entry("other", "fine"),
	}

	for _, v := range videos {
		sequential := false
		for _, f := range g.Snapshot() {
			if f.Matches(v) {
				sequential = true
				break
			}
		}
		for range 20 {
			assert.Equal(t, sequential, g.MatchesAny(v), "%s by %s", v.Title, v.Author())
		}
	}
}

func TestMatchesAnyEmptyGroup(t *testing.T) {
	assert.False(t, New().MatchesAny(entry("x", "y")))
}

func TestGroupFilter(t *testing.T) {
	g := New()
	g.Add(mustFilter(t, "(?i)#shorts", ""))
	g.Add(mustFilter(t, "", "^Spam$"))

	in := feed.Feed{
		entry("Long video", "Good"),
		entry("Quick one #Shorts", "Good"),
		entry("Anything", "Spam"),
		entry("Another", "Good"),
	}

	out := g.Filter(in)

	require.Len(t, out, 2)
	assert.Equal(t, "Long video", out[0].Title)
	assert.Equal(t, "Another", out[1].Title)
}

func TestFilterPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.csv")

	g := New()
	store := rowstore.New(path, domain.ParseRow, rowstore.WithHeader(domain.Header...))
	require.NoError(t, store.Load(g.Insert))
	observer.Attach(g.Events(), store)

	g.Add(mustFilter(t, "a,b", ""))
	g.Add(mustFilter(t, "^x", "y\"z"))
	g.Add(mustFilter(t, "^x", "y\"z"))
	g.Remove(mustFilter(t, "never", ""))

	reloaded := New()
	require.NoError(t, rowstore.New(path, domain.ParseRow, rowstore.WithHeader(domain.Header...)).Load(reloaded.Insert))

	got := reloaded.Snapshot()
	require.Len(t, got, 2)
	for _, f := range g.Snapshot() {
		assert.Condition(t, func() bool {
			for _, r := range got {
				if r.Equal(f) {
					return true
				}
			}
			return false
		}, "missing %s", f)
	}
	runtime.KeepAlive(store)
}

func TestGroupEventsFollowMutationOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.csv")
	store := rowstore.New(path, domain.ParseRow, rowstore.WithHeader(domain.Header...))

	g := New()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	g.Events().AttachFunc(func(observer.Event[*domain.EntryFilter]) {
		once.Do(func() {
			close(started)
			<-release
		})
	})
	observer.Attach(g.Events(), store)

	addDone := make(chan struct{})
	go func() {
		defer close(addDone)
		g.Add(mustFilter(t, "^Shorts", ""))
	}()
	<-started

	removeDone := make(chan struct{})
	go func() {
		defer close(removeDone)
		g.Remove(mustFilter(t, "^Shorts", ""))
	}()

	assert.Never(t, func() bool {
		select {
		case <-removeDone:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond)

	close(release)
	<-addDone
	<-removeDone

	assert.Empty(t, g.Snapshot())
	reloaded := New()
	require.NoError(t, rowstore.New(path, domain.ParseRow, rowstore.WithHeader(domain.Header...)).Load(reloaded.Insert))
	assert.Empty(t, reloaded.Snapshot())
	runtime.KeepAlive(store)
}
