package service

import (
	"fmt"
	"html"
	"time"

	"github.com/gorilla/feeds"
	"github.com/reshetovitsme/tubefeed/internal/modules/feed/domain"
)

// BuildFeed renders a result as a syndication feed of at most limit videos
// (no limit when limit <= 0). baseURL is the public address of the server.
func BuildFeed(res Result, baseURL string, limit int) *feeds.Feed {
	updated := res.GeneratedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	out := &feeds.Feed{
		Title:       "tubefeed",
		Link:        &feeds.Link{Href: baseURL + "/feed.rss"},
		Description: "Latest videos from all subscriptions",
		Id:          baseURL + "/feed",
		Updated:     updated,
		Created:     updated,
	}
	if msg := res.Errors.Message(); msg != "" {
		out.Description += " (" + msg + ")"
	}

	videos := res.Feed.Limit(limit)
	out.Items = make([]*feeds.Item, 0, len(videos))
	for _, v := range videos {
		out.Items = append(out.Items, videoToFeedItem(v))
	}
	return out
}

func videoToFeedItem(v domain.Video) *feeds.Item {
	description := fmt.Sprintf("%s by %s on %s", v.Title, v.Author(), v.Platform())

	content := fmt.Sprintf(`<p><a href="%s">%s</a></p>`, html.EscapeString(v.URL), html.EscapeString(v.Title))
	if v.ThumbnailURL != "" {
		content = fmt.Sprintf(`<p><a href="%s"><img src="%s" alt="%s"/></a></p>`,
			html.EscapeString(v.URL), html.EscapeString(v.ThumbnailURL), html.EscapeString(v.Title)) + content
	}

	return &feeds.Item{
		Title:       domain.Truncate(v.Title, 200),
		Link:        &feeds.Link{Href: v.URL},
		Description: description,
		Content:     content,
		Author:      &feeds.Author{Name: v.Author()},
		Created:     v.Published,
		Id:          v.URL,
	}
}
