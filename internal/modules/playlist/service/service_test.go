package service

import (
	"runtime"
	"sync"
	"testing"
	"time"

	feed "github.com/reshetovitsme/tubefeed/internal/modules/feed/domain"
	"github.com/reshetovitsme/tubefeed/internal/modules/playlist/domain"
	"github.com/reshetovitsme/tubefeed/internal/modules/playlist/repository"
	subscription "github.com/reshetovitsme/tubefeed/internal/modules/subscription/domain"
	"github.com/reshetovitsme/tubefeed/internal/shared/observer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func video(id string) feed.Video {
	return feed.Video{
		Title:        "Video " + id,
		Subscription: subscription.Subscription{Platform: subscription.PlatformYoutube, ID: "UC1", Name: "Chan"},
		URL:          "https://www.youtube.com/watch?v=" + id,
		ThumbnailURL: "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg",
		Published:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestAddDeduplicatesByURL(t *testing.T) {
	m := New()
	var events int
	m.Events().AttachFunc(func(observer.Event[domain.Item]) { events++ })

	assert.True(t, m.Add("music", video("a")))
	renamed := video("a")
	renamed.Title = "Other title"
	assert.False(t, m.Add("music", renamed))
	assert.True(t, m.Add("music", video("b")))
	assert.True(t, m.Add("talks", video("a")))

	assert.Equal(t, []string{"music", "talks"}, m.Playlists())
	assert.Len(t, m.Items("music"), 2)
	assert.Equal(t, "Video a", m.Items("music")[0].Title)
	assert.Equal(t, 3, events)
}

func TestRemove(t *testing.T) {
	m := New()
	m.Add("music", video("a"))

	var removed []domain.Item
	m.Events().AttachFunc(func(ev observer.Event[domain.Item]) {
		if ev.Action == observer.Remove {
			removed = append(removed, ev.Item)
		}
	})

	assert.False(t, m.Remove("music", video("zzz")))
	assert.False(t, m.Remove("talks", video("a")))
	assert.True(t, m.Remove("music", video("a")))

	assert.Empty(t, m.Playlists())
	require.Len(t, removed, 1)
	assert.Equal(t, "music", removed[0].Playlist)
}

func TestToggleWatchLater(t *testing.T) {
	m := New()
	v := video("x")

	assert.True(t, m.ToggleWatchLater(v))
	assert.True(t, m.Contains(domain.WatchLater, v))

	assert.False(t, m.ToggleWatchLater(v))
	assert.False(t, m.Contains(domain.WatchLater, v))
}

func TestPlaylistsPersist(t *testing.T) {
	dir := t.TempDir()
	store, err := repository.NewFileStorage(dir, nil)
	require.NoError(t, err)

	m := New()
	require.NoError(t, store.Load(m.Insert))
	observer.Attach(m.Events(), store)

	m.Add("music", video("a"))
	m.Add("music", video("b"))
	m.ToggleWatchLater(video("c"))
	m.ToggleWatchLater(video("d"))
	m.ToggleWatchLater(video("d"))
	m.Remove("music", video("a"))

	reloaded := New()
	other, err := repository.NewFileStorage(dir, nil)
	require.NoError(t, err)
	require.NoError(t, other.Load(reloaded.Insert))

	assert.Equal(t, m.Playlists(), reloaded.Playlists())
	assert.Equal(t, m.Items("music"), reloaded.Items("music"))
	assert.Equal(t, m.Items(domain.WatchLater), reloaded.Items(domain.WatchLater))
	runtime.KeepAlive(store)
}

func TestItemRowRoundTrip(t *testing.T) {
	item := domain.NewItem(domain.WatchLater, video("a"))

	parsed, err := domain.ParseRow(item.Row())
	require.NoError(t, err)
	assert.Equal(t, item, parsed)

	_, err = domain.ParseRow([]string{"music"})
	assert.Error(t, err)
}

func TestEventsFollowMutationOrder(t *testing.T) {
	dir := t.TempDir()
	store, err := repository.NewFileStorage(dir, nil)
	require.NoError(t, err)

	m := New()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	m.Events().AttachFunc(func(observer.Event[domain.Item]) {
		once.Do(func() {
			close(started)
			<-release
		})
	})
	observer.Attach(m.Events(), store)

	addDone := make(chan struct{})
	go func() {
		defer close(addDone)
		m.Add("music", video("a"))
	}()
	<-started

	removeDone := make(chan struct{})
	go func() {
		defer close(removeDone)
		m.Remove("music", video("a"))
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

	assert.Empty(t, m.Playlists())
	reloaded := New()
	other, err := repository.NewFileStorage(dir, nil)
	require.NoError(t, err)
	require.NoError(t, other.Load(reloaded.Insert))
	assert.Empty(t, reloaded.Playlists())
	runtime.KeepAlive(store)
}
