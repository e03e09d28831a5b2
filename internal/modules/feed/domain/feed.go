package domain

import (
	"cmp"
	"slices"
	"strings"
	"time"

	subscription "github.com/reshetovitsme/tubefeed/internal/modules/subscription/domain"
	apperrors "github.com/reshetovitsme/tubefeed/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// Video is one normalized entry of a channel feed.
type Video struct {
	Title        string                    `json:"title"`
	Subscription subscription.Subscription `json:"subscription"`
	URL          string                    `json:"url"`
	ThumbnailURL string                    `json:"thumbnail_url,omitempty"`
	Published    time.Time                 `json:"published"`
}

// Platform is the platform of the channel the video belongs to.
func (v Video) Platform() subscription.Platform {
	return v.Subscription.Platform
}

// Author is the channel name shown next to the video.
func (v Video) Author() string {
	return v.Subscription.DisplayName()
}

// Row serializes the video as
// [platform, url, title, author_id, author_name, published, thumbnail_url].
func (v Video) Row() []string {
	published := ""
	if !v.Published.IsZero() {
		published = v.Published.UTC().Format(time.RFC3339)
	}
	return []string{
		v.Subscription.Platform.String(),
		v.URL,
		v.Title,
		v.Subscription.ID,
		v.Subscription.Name,
		published,
		v.ThumbnailURL,
	}
}

// ParseVideoRow is the inverse of Row. Only platform and url are required;
// later columns are read when present.
func ParseVideoRow(fields []string) (Video, error) {
	if len(fields) < 2 {
		return Video{}, oops.With("columns", len(fields)).Wrapf(apperrors.ErrMalformedRow, "video row needs platform and url")
	}

	platform, err := subscription.ParsePlatform(strings.TrimSpace(fields[0]))
	if err != nil {
		return Video{}, oops.With("platform", fields[0]).Wrapf(apperrors.ErrMalformedRow, "%v", err)
	}

	v := Video{
		URL:          strings.TrimSpace(fields[1]),
		Subscription: subscription.Subscription{Platform: platform},
	}
	if v.URL == "" {
		return Video{}, oops.Wrapf(apperrors.ErrMalformedRow, "empty video url")
	}

	column := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	v.Title = column(2)
	v.Subscription.ID = column(3)
	v.Subscription.Name = column(4)
	if published := column(5); published != "" {
		t, err := time.Parse(time.RFC3339, published)
		if err != nil {
			return Video{}, oops.With("published", published).Wrapf(apperrors.ErrMalformedRow, "%v", err)
		}
		v.Published = t
	}
	v.ThumbnailURL = column(6)

	return v, nil
}

// Feed is a list of videos, newest first once combined.
type Feed []Video

// Combine merges feeds into one ordered newest first. Videos published at the
// same instant keep their input order.
func Combine(feeds ...Feed) Feed {
	total := lo.SumBy(feeds, func(f Feed) int { return len(f) })
	out := make(Feed, 0, total)
	for _, f := range feeds {
		out = append(out, f...)
	}
	slices.SortStableFunc(out, func(a, b Video) int {
		return cmp.Compare(b.Published.UnixNano(), a.Published.UnixNano())
	})
	return out
}

// Limit returns at most n videos; n <= 0 means no limit.
func (f Feed) Limit(n int) Feed {
	if n <= 0 || n >= len(f) {
		return f
	}
	return f[:n]
}

// Subscriptions returns the distinct channels appearing in the feed, keeping
// the first name seen for each.
func (f Feed) Subscriptions() []subscription.Subscription {
	return lo.UniqBy(lo.Map(f, func(v Video, _ int) subscription.Subscription {
		return v.Subscription
	}), func(s subscription.Subscription) subscription.Key {
		return s.Key()
	})
}

// Truncate shortens s to at most n runes, marking a cut with an ellipsis.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	return string(runes[:n-1]) + "…"
}
