package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	subscription "github.com/reshetovitsme/tubefeed/internal/modules/subscription/domain"
	apperrors "github.com/reshetovitsme/tubefeed/internal/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const youtubeAtom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
 <title>Example Channel</title>
 <author><name>Example Channel</name></author>
 <entry>
  <id>yt:video:aaa</id>
  <yt:videoId>aaa</yt:videoId>
  <title>Newer video</title>
  <link rel="alternate" href="https://www.youtube.com/watch?v=aaa"/>
  <published>2024-05-02T10:00:00+00:00</published>
  <media:group>
   <media:title>Newer video</media:title>
   <media:thumbnail url="https://i.ytimg.com/vi/aaa/hqdefault.jpg" width="480" height="360"/>
  </media:group>
 </entry>
 <entry>
  <id>yt:video:bbb</id>
  <title>Older video</title>
  <link rel="alternate" href="https://www.youtube.com/watch?v=bbb"/>
  <published>2024-05-01T10:00:00+00:00</published>
 </entry>
</feed>`

const peertubeRSS = `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
 <channel>
  <title>News Channel</title>
  <link>https://video.example.org/c/news</link>
  <item>
   <title>Episode 1</title>
   <link>https://video.example.org/w/ep1</link>
   <pubDate>Thu, 02 May 2024 08:00:00 GMT</pubDate>
   <media:thumbnail url="https://video.example.org/thumb/ep1.jpg"/>
  </item>
 </channel>
</rss>`

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchYouTube(t *testing.T) {
	var gotQuery string
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("channel_id")
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(youtubeAtom))
	})

	f := New(WithYouTubeBaseURL(srv.URL + "/feeds/videos.xml"))
	videos, err := f.Fetch(context.Background(), subscription.New(subscription.PlatformYoutube, "UCexample"))

	require.NoError(t, err)
	assert.Equal(t, "UCexample", gotQuery)
	require.Len(t, videos, 2)

	first := videos[0]
	assert.Equal(t, "Newer video", first.Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=aaa", first.URL)
	assert.Equal(t, "https://i.ytimg.com/vi/aaa/hqdefault.jpg", first.ThumbnailURL)
	assert.Equal(t, "Example Channel", first.Author())
	assert.Equal(t, "UCexample", first.Subscription.ID)
	assert.Equal(t, time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC), first.Published)
	assert.Empty(t, videos[1].ThumbnailURL)
}

func TestFetchPeerTube(t *testing.T) {
	var gotPath, gotChannel string
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotChannel = r.URL.Query().Get("videoChannelName")
		_, _ = w.Write([]byte(peertubeRSS))
	})

	host := strings.TrimPrefix(srv.URL, "http://")
	f := New(WithPeerTubeScheme("http"))
	videos, err := f.Fetch(context.Background(), subscription.New(subscription.PlatformPeertube, "news@"+host))

	require.NoError(t, err)
	assert.Equal(t, "/feeds/videos.xml", gotPath)
	assert.Equal(t, "news", gotChannel)
	require.Len(t, videos, 1)
	assert.Equal(t, "News Channel", videos[0].Author())
	assert.Equal(t, "https://video.example.org/thumb/ep1.jpg", videos[0].ThumbnailURL)
	assert.Equal(t, subscription.PlatformPeertube, videos[0].Platform())
}

func TestFetchLBRY(t *testing.T) {
	var gotPath string
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(peertubeRSS))
	})

	f := New(WithLBRYBaseURL(srv.URL + "/$/rss/"))
	_, err := f.Fetch(context.Background(), subscription.New(subscription.PlatformLbry, "veritasium:f"))

	require.NoError(t, err)
	assert.Equal(t, "/$/rss/@veritasium:f", gotPath)
}

func TestFetchClassifiesErrors(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name    string
		baseURL string
		want    error
	}{
		{
			name: "server error",
			baseURL: serve(t, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			}).URL,
			want: apperrors.ErrNetworking,
		},
		{
			name:    "connection refused",
			baseURL: closedURL,
			want:    apperrors.ErrNetworking,
		},
		{
			name: "not a feed",
			baseURL: serve(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("<html><body>hello</body></html>"))
			}).URL,
			want: apperrors.ErrParsing,
		},
		{
			name: "truncated xml",
			baseURL: serve(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(youtubeAtom[:200]))
			}).URL,
			want: apperrors.ErrParsing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(WithYouTubeBaseURL(tt.baseURL))
			_, err := f.Fetch(context.Background(), subscription.New(subscription.PlatformYoutube, "UC1"))

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var fe *apperrors.FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, "youtube:UC1", fe.Source)
		})
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	f := New(WithYouTubeBaseURL(srv.URL), WithTimeout(50*time.Millisecond))
	_, err := f.Fetch(context.Background(), subscription.New(subscription.PlatformYoutube, "UC1"))

	assert.ErrorIs(t, err, apperrors.ErrNetworking)
}

func TestFetchRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(youtubeAtom))
	})

	f := New(WithYouTubeBaseURL(srv.URL), WithRateLimit(1))
	sub := subscription.New(subscription.PlatformYoutube, "UC1")

	_, err := f.Fetch(context.Background(), sub)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, sub)

	assert.ErrorIs(t, err, apperrors.ErrNetworking)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFeedURL(t *testing.T) {
	f := New()

	tests := []struct {
		sub  subscription.Subscription
		want string
	}{
		{subscription.New(subscription.PlatformYoutube, "UCabc"), "https://www.youtube.com/feeds/videos.xml?channel_id=UCabc"},
		{subscription.New(subscription.PlatformPeertube, "news@video.example.org"), "https://video.example.org/feeds/videos.xml?videoChannelName=news"},
		{subscription.New(subscription.PlatformLbry, "@chan:3"), "https://odysee.com/$/rss/@chan:3"},
	}

	for _, tt := range tests {
		t.Run(tt.sub.String(), func(t *testing.T) {
			got, err := f.FeedURL(tt.sub)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := f.FeedURL(subscription.Subscription{Platform: "vimeo", ID: "1"})
	assert.ErrorIs(t, err, apperrors.ErrUnknownPlatform)
}
