// Package fetcher downloads and normalizes the public video feeds of
// YouTube, PeerTube and LBRY channels.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	feed "github.com/reshetovitsme/tubefeed/internal/modules/feed/domain"
	subscription "github.com/reshetovitsme/tubefeed/internal/modules/subscription/domain"
	apperrors "github.com/reshetovitsme/tubefeed/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
	"golang.org/x/time/rate"
)

const (
	DefaultYouTubeBaseURL = "https://www.youtube.com/feeds/videos.xml"
	DefaultLBRYBaseURL    = "https://odysee.com/$/rss"
	DefaultPeerTubeScheme = "https"
	DefaultTimeout        = 15 * time.Second

	userAgent = "tubefeed/1.0 (+https://github.com/reshetovitsme/tubefeed)"

	// Feeds larger than this are rejected instead of parsed.
	maxFeedSize = 10 << 20
)

// HTTPClient allows injecting a custom transport in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures the Fetcher.
type Option func(*Fetcher)

func WithHTTPClient(client HTTPClient) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithYouTubeBaseURL overrides the YouTube feed endpoint. The channel id is
// passed as the channel_id query parameter.
func WithYouTubeBaseURL(u string) Option {
	return func(f *Fetcher) {
		if u != "" {
			f.youtubeBaseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithLBRYBaseURL overrides the LBRY feed endpoint. The channel name is
// appended as the last path segment. Empty values keep the default.
func WithLBRYBaseURL(u string) Option {
	return func(f *Fetcher) {
		if u != "" {
			f.lbryBaseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithPeerTubeScheme sets the scheme used to reach PeerTube instances.
func WithPeerTubeScheme(scheme string) Option {
	return func(f *Fetcher) {
		if scheme != "" {
			f.peertubeScheme = scheme
		}
	}
}

// WithTimeout bounds every single fetch. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithRateLimit caps outgoing requests per second across all platforms.
// Zero or less means unlimited.
func WithRateLimit(perSecond float64) Option {
	return func(f *Fetcher) {
		if perSecond <= 0 {
			f.limiter = nil
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Fetcher turns a subscription into its recent videos.
type Fetcher struct {
	client         HTTPClient
	youtubeBaseURL string
	lbryBaseURL    string
	peertubeScheme string
	timeout        time.Duration
	limiter        *rate.Limiter
	logger         *slog.Logger
}

// New creates a fetcher talking to the public endpoints.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:         &http.Client{},
		youtubeBaseURL: DefaultYouTubeBaseURL,
		lbryBaseURL:    DefaultLBRYBaseURL,
		peertubeScheme: DefaultPeerTubeScheme,
		timeout:        DefaultTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FeedURL returns the address of the feed of sub.
func (f *Fetcher) FeedURL(sub subscription.Subscription) (string, error) {
	switch sub.Platform {
	case subscription.PlatformYoutube:
		return f.youtubeBaseURL + "?channel_id=" + url.QueryEscape(sub.ID), nil
	case subscription.PlatformPeertube:
		channel, host, err := sub.PeerTubeHandle()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s://%s/feeds/videos.xml?videoChannelName=%s", f.peertubeScheme, host, url.QueryEscape(channel)), nil
	case subscription.PlatformLbry:
		name := sub.ID
		if !strings.HasPrefix(name, "@") {
			name = "@" + name
		}
		return f.lbryBaseURL + "/" + url.PathEscape(name), nil
	default:
		return "", oops.With("platform", sub.Platform).Wrap(apperrors.ErrUnknownPlatform)
	}
}

// Fetch downloads and parses the feed of sub. Transport failures and HTTP
// error statuses are networking errors, anything the parser rejects is a
// parsing error.
func (f *Fetcher) Fetch(ctx context.Context, sub subscription.Subscription) ([]feed.Video, error) {
	feedURL, err := f.FeedURL(sub)
	if err != nil {
		return nil, apperrors.NewParsing(sub.String(), err)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, apperrors.NewNetworking(sub.String(), err)
		}
	}

	body, err := f.download(ctx, feedURL)
	if err != nil {
		return nil, apperrors.NewNetworking(sub.String(), err)
	}

	parsed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, apperrors.NewParsing(sub.String(), err)
	}

	videos := normalize(sub, parsed)
	f.logger.Debug("Fetched feed", "subscription", sub.String(), "videos", len(videos))
	return videos, nil
}

func (f *Fetcher) download(ctx context.Context, feedURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return "", oops.With("url", feedURL).Wrap(err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/atom+xml, application/rss+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", oops.With("url", feedURL).Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", oops.With("url", feedURL, "status", resp.StatusCode).Errorf("feed returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize+1))
	if err != nil {
		return "", oops.With("url", feedURL, "context", "failed to read feed").Wrap(err)
	}
	if len(data) > maxFeedSize {
		return "", oops.With("url", feedURL).Errorf("feed larger than %d bytes", maxFeedSize)
	}
	return string(data), nil
}

// normalize maps parsed items onto videos of sub. The channel name comes from
// the item author, falling back to the feed title.
func normalize(sub subscription.Subscription, parsed *gofeed.Feed) []feed.Video {
	channel := sub
	if channel.Name == "" {
		channel.Name = strings.TrimSpace(parsed.Title)
		if len(parsed.Authors) > 0 && parsed.Authors[0] != nil && parsed.Authors[0].Name != "" {
			channel.Name = strings.TrimSpace(parsed.Authors[0].Name)
		}
	}

	return lo.FilterMap(parsed.Items, func(item *gofeed.Item, _ int) (feed.Video, bool) {
		if item == nil || item.Link == "" {
			return feed.Video{}, false
		}

		v := feed.Video{
			Title:        strings.TrimSpace(item.Title),
			Subscription: channel,
			URL:          item.Link,
			ThumbnailURL: thumbnail(item),
		}
		switch {
		case item.PublishedParsed != nil:
			v.Published = item.PublishedParsed.UTC()
		case item.UpdatedParsed != nil:
			v.Published = item.UpdatedParsed.UTC()
		}
		return v, true
	})
}

// thumbnail looks for a preview image in the places the three platforms put
// one: the item image, media:group/media:thumbnail (YouTube Atom),
// media:thumbnail (PeerTube, LBRY) and image enclosures.
func thumbnail(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}

	if media, ok := item.Extensions["media"]; ok {
		if u := thumbnailURL(media["thumbnail"]); u != "" {
			return u
		}
		for _, group := range media["group"] {
			if u := thumbnailURL(group.Children["thumbnail"]); u != "" {
				return u
			}
		}
	}

	if enc, ok := lo.Find(item.Enclosures, func(e *gofeed.Enclosure) bool {
		return e != nil && strings.HasPrefix(e.Type, "image/")
	}); ok {
		return enc.URL
	}
	return ""
}

func thumbnailURL(thumbs []ext.Extension) string {
	for _, t := range thumbs {
		if u := t.Attrs["url"]; u != "" {
			return u
		}
	}
	return ""
}
