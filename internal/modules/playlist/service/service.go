package service

import (
	"slices"
	"sync"

	feed "github.com/reshetovitsme/tubefeed/internal/modules/feed/domain"
	"github.com/reshetovitsme/tubefeed/internal/modules/playlist/domain"
	"github.com/reshetovitsme/tubefeed/internal/shared/observer"
	"github.com/samber/lo"
)

// Manager holds named playlists. Safe for concurrent use.
//
// notifyMu serializes a mutation together with its event.
type Manager struct {
	events    observer.Subject[domain.Item]
	notifyMu  sync.Mutex
	mu        sync.RWMutex
	playlists map[string][]feed.Video
}

func New() *Manager {
	return &Manager{playlists: make(map[string][]feed.Video)}
}

// Events is where observers of playlist changes register.
func (m *Manager) Events() *observer.Subject[domain.Item] {
	return &m.events
}

// Add appends v to playlist unless a video with the same URL is already in it.
func (m *Manager) Add(playlist string, v feed.Video) bool {
	item := domain.NewItem(playlist, v)

	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	if !m.insert(item) {
		return false
	}
	m.events.Notify(observer.AddEvent(item))
	return true
}

// Insert adds an item without notifying observers. Used when replaying a file.
func (m *Manager) Insert(item domain.Item) {
	m.insert(item)
}

func (m *Manager) insert(item domain.Item) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	videos := m.playlists[item.Playlist]
	if slices.ContainsFunc(videos, sameURL(item.Video.URL)) {
		return false
	}
	m.playlists[item.Playlist] = append(videos, item.Video)
	return true
}

// Remove deletes the video with the URL of v from playlist.
func (m *Manager) Remove(playlist string, v feed.Video) bool {
	item := domain.NewItem(playlist, v)

	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	videos := m.playlists[item.Playlist]
	idx := slices.IndexFunc(videos, sameURL(v.URL))
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	item.Video = videos[idx]
	videos = slices.Delete(videos, idx, idx+1)
	if len(videos) == 0 {
		delete(m.playlists, item.Playlist)
	} else {
		m.playlists[item.Playlist] = videos
	}
	m.mu.Unlock()

	m.events.Notify(observer.RemoveEvent(item))
	return true
}

// Items returns a copy of the videos in playlist, in insertion order.
func (m *Manager) Items(playlist string) []feed.Video {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.playlists[playlist])
}

// Playlists returns the names of the non-empty playlists, sorted.
func (m *Manager) Playlists() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := lo.Keys(m.playlists)
	slices.Sort(names)
	return names
}

// Contains reports whether a video with the URL of v is in playlist.
func (m *Manager) Contains(playlist string, v feed.Video) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.ContainsFunc(m.playlists[playlist], sameURL(v.URL))
}

// ToggleWatchLater adds v to the watch later playlist or removes it when
// already there. It reports whether v is in the playlist afterwards.
func (m *Manager) ToggleWatchLater(v feed.Video) bool {
	if m.Remove(domain.WatchLater, v) {
		return false
	}
	m.Add(domain.WatchLater, v)
	return true
}

func sameURL(url string) func(feed.Video) bool {
	return func(v feed.Video) bool {
		return v.URL == url
	}
}
