package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reshetovitsme/tubefeed/internal/modules/feed/domain"
	filterDomain "github.com/reshetovitsme/tubefeed/internal/modules/filter/domain"
	filterService "github.com/reshetovitsme/tubefeed/internal/modules/filter/service"
	subscription "github.com/reshetovitsme/tubefeed/internal/modules/subscription/domain"
	subscriptionService "github.com/reshetovitsme/tubefeed/internal/modules/subscription/service"
	apperrors "github.com/reshetovitsme/tubefeed/internal/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	mu      sync.Mutex
	feeds   map[string][]domain.Video
	errs    map[string]error
	block   chan struct{}
	calls   int
	started chan struct{}
}

func (f *stubFetcher) Fetch(ctx context.Context, sub subscription.Subscription) ([]domain.Video, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, apperrors.NewNetworking(sub.String(), ctx.Err())
		}
	}

	if err := f.errs[sub.ID]; err != nil {
		return nil, err
	}
	return f.feeds[sub.ID], nil
}

func named(id, name string) subscription.Subscription {
	return subscription.Subscription{Platform: subscription.PlatformYoutube, ID: id, Name: name}
}

func clip(sub subscription.Subscription, title string, ts int64) domain.Video {
	return domain.Video{
		Title:        title,
		Subscription: sub,
		URL:          "https://www.youtube.com/watch?v=" + title,
		Published:    time.Unix(ts, 0).UTC(),
	}
}

func setup(t *testing.T, ids ...string) (*subscriptionService.Group, *filterService.Group) {
	t.Helper()
	subs := subscriptionService.New()
	for _, id := range ids {
		subs.Add(subscription.New(subscription.PlatformYoutube, id))
	}
	return subs, filterService.New()
}

func titles(f domain.Feed) []string {
	out := make([]string, len(f))
	for i, v := range f {
		out[i] = v.Title
	}
	return out
}

func TestGenerateMergesFiltersAndResolvesNames(t *testing.T) {
	subs, filters := setup(t, "A", "B")
	f, err := filterDomain.New("(?i)shorts", "")
	require.NoError(t, err)
	filters.Add(f)

	fetcher := &stubFetcher{feeds: map[string][]domain.Video{
		"A": {clip(named("A", "Alpha"), "a2", 20), clip(named("A", "Alpha"), "a1 #shorts", 10)},
		"B": {clip(named("B", "Beta"), "b1", 15)},
	}}

	svc := New(subs, filters, fetcher, Options{})
	res := svc.Generate(context.Background())

	assert.Equal(t, []string{"a2", "b1"}, titles(res.Feed))
	assert.Zero(t, res.Errors.Total())
	assert.Empty(t, res.Errors.Message())

	alpha, ok := subs.Find(subscription.New(subscription.PlatformYoutube, "A").Key())
	require.True(t, ok)
	assert.Equal(t, "Alpha", alpha.Name)
}

func TestGenerateStrictDiscardsEverythingOnFailure(t *testing.T) {
	subs, filters := setup(t, "ok", "down")
	fetcher := &stubFetcher{
		feeds: map[string][]domain.Video{"ok": {clip(named("ok", "Ok"), "v", 1)}},
		errs:  map[string]error{"down": apperrors.NewNetworking("youtube:down", errors.New("dial tcp: refused"))},
	}

	res := New(subs, filters, fetcher, Options{}).Generate(context.Background())

	assert.Empty(t, res.Feed)
	assert.Equal(t, ErrorSummary{Network: 1}, res.Errors)
	assert.True(t, strings.HasPrefix(res.Errors.Message(), "Network error"))
}

func TestGeneratePartialKeepsSuccesses(t *testing.T) {
	subs, filters := setup(t, "ok", "down", "junk")
	fetcher := &stubFetcher{
		feeds: map[string][]domain.Video{"ok": {clip(named("ok", "Ok"), "v", 1)}},
		errs: map[string]error{
			"down": apperrors.NewNetworking("youtube:down", errors.New("timeout")),
			"junk": apperrors.NewParsing("youtube:junk", errors.New("EOF")),
		},
	}

	res := New(subs, filters, fetcher, Options{PartialResults: true}).Generate(context.Background())

	assert.Equal(t, []string{"v"}, titles(res.Feed))
	assert.Equal(t, ErrorSummary{Network: 1, Parse: 1}, res.Errors)
}

func TestErrorSummaryMessage(t *testing.T) {
	tests := []struct {
		summary ErrorSummary
		want    string
	}{
		{ErrorSummary{}, ""},
		{ErrorSummary{Network: 2}, "Network error: 2 subscription(s) could not be reached"},
		{ErrorSummary{Parse: 3, Network: 1}, "Parse error: 3 feed(s) could not be parsed; 1 subscription(s) could not be reached"},
		{ErrorSummary{Other: 1}, "1 fetch(es) failed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.summary.Message())
	}
}

func TestReloadPublishesResult(t *testing.T) {
	subs, filters := setup(t, "A")
	fetcher := &stubFetcher{feeds: map[string][]domain.Video{"A": {clip(named("A", "Alpha"), "a", 1)}}}

	svc := New(subs, filters, fetcher, Options{})
	defer svc.Stop()

	_, ok := svc.Latest()
	assert.False(t, ok)

	gen := svc.Reload()

	select {
	case res := <-svc.Results():
		assert.Equal(t, gen, res.Generation)
		assert.Equal(t, []string{"a"}, titles(res.Feed))
		assert.False(t, res.GeneratedAt.IsZero())
	case <-time.After(5 * time.Second):
		t.Fatal("no result published")
	}

	latest, ok := svc.Latest()
	require.True(t, ok)
	assert.Equal(t, gen, latest.Generation)
}

func TestReloadDropsStaleGeneration(t *testing.T) {
	subs, filters := setup(t, "A")
	fetcher := &stubFetcher{
		feeds:   map[string][]domain.Video{"A": {clip(named("A", "Alpha"), "a", 1)}},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}

	svc := New(subs, filters, fetcher, Options{})
	defer svc.Stop()

	first := svc.Reload()
	<-fetcher.started

	fetcher.mu.Lock()
	fetcher.block = nil
	fetcher.mu.Unlock()

	second := svc.Reload()
	require.Greater(t, second, first)

	select {
	case res := <-svc.Results():
		assert.Equal(t, second, res.Generation)
		assert.Equal(t, []string{"a"}, titles(res.Feed))
	case <-time.After(5 * time.Second):
		t.Fatal("no result published")
	}

	select {
	case res := <-svc.Results():
		t.Fatalf("stale generation %d published", res.Generation)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStartPollsUntilStopped(t *testing.T) {
	subs, filters := setup(t, "A")
	fetcher := &stubFetcher{feeds: map[string][]domain.Video{"A": {clip(named("A", "Alpha"), "a", 1)}}}

	svc := New(subs, filters, fetcher, Options{UpdateInterval: 10 * time.Millisecond})
	svc.Start(context.Background())

	seen := map[uint64]bool{}
	deadline := time.After(5 * time.Second)
	for len(seen) < 3 {
		select {
		case res := <-svc.Results():
			seen[res.Generation] = true
		case <-deadline:
			t.Fatalf("only %d generations published", len(seen))
		}
	}

	svc.Stop()
}

func TestStopDropsRunningReload(t *testing.T) {
	subs, filters := setup(t, "A")
	fetcher := &stubFetcher{
		feeds:   map[string][]domain.Video{"A": {clip(named("A", "Alpha"), "a", 1)}},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}

	svc := New(subs, filters, fetcher, Options{PartialResults: true})
	svc.Reload()
	<-fetcher.started

	svc.Stop()

	_, ok := svc.Latest()
	assert.False(t, ok)
	select {
	case res := <-svc.Results():
		t.Fatalf("cancelled generation %d published", res.Generation)
	default:
	}
}

func TestReloadAfterStopIsIgnored(t *testing.T) {
	subs, filters := setup(t, "A")
	fetcher := &stubFetcher{feeds: map[string][]domain.Video{"A": {clip(named("A", "Alpha"), "a", 1)}}}

	svc := New(subs, filters, fetcher, Options{UpdateInterval: time.Hour})
	svc.Start(context.Background())

	var gen uint64
	select {
	case res := <-svc.Results():
		gen = res.Generation
	case <-time.After(5 * time.Second):
		t.Fatal("no result published")
	}
	svc.Stop()

	assert.Equal(t, gen, svc.Reload())
	assert.Equal(t, gen, svc.Generation())
	svc.Start(context.Background())
	svc.Stop()

	select {
	case res := <-svc.Results():
		t.Fatalf("generation %d published after stop", res.Generation)
	case <-time.After(100 * time.Millisecond):
	}
	latest, ok := svc.Latest()
	require.True(t, ok)
	assert.Equal(t, gen, latest.Generation)
}

func TestBuildFeed(t *testing.T) {
	res := Result{
		Feed: domain.Feed{
			clip(named("A", "Alpha"), "<b>first</b>", 20),
			clip(named("A", "Alpha"), "second", 10),
		},
		Errors:      ErrorSummary{Parse: 1},
		GeneratedAt: time.Unix(30, 0),
	}
	res.Feed[0].ThumbnailURL = "https://i.ytimg.com/vi/x/hqdefault.jpg"

	out := BuildFeed(res, "http://localhost:8080", 1)

	require.Len(t, out.Items, 1)
	item := out.Items[0]
	assert.Equal(t, "<b>first</b>", item.Title)
	assert.Equal(t, "Alpha", item.Author.Name)
	assert.Contains(t, item.Content, "&lt;b&gt;first&lt;/b&gt;")
	assert.Contains(t, item.Content, `<img src="https://i.ytimg.com/vi/x/hqdefault.jpg"`)
	assert.Contains(t, out.Description, "Parse error")

	rss, err := out.ToRss()
	require.NoError(t, err)
	assert.Contains(t, rss, "https://www.youtube.com/watch?v=")
}
