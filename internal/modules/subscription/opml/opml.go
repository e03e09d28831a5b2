// Package opml imports and exports subscriptions as OPML documents.
package opml

import (
	"encoding/xml"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/reshetovitsme/tubefeed/internal/modules/subscription/domain"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

type document struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    head     `xml:"head"`
	Body    body     `xml:"body"`
}

type head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

type body struct {
	Outlines []outline `xml:"outline"`
}

type outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	Outlines []outline `xml:"outline,omitempty"`
}

// URLResolver gives the feed address of a subscription.
type URLResolver interface {
	FeedURL(sub domain.Subscription) (string, error)
}

// Parse reads every outline, folders included, and returns the subscriptions
// whose xmlUrl is a YouTube, PeerTube or LBRY channel feed. Other outlines are
// skipped. Names come from the outline title or text.
func Parse(r io.Reader) ([]domain.Subscription, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, oops.Wrapf(err, "decode opml")
	}

	var subs []domain.Subscription
	var walk func(outlines []outline)
	walk = func(outlines []outline) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				if sub, ok := FromFeedURL(o.XMLURL); ok {
					sub.Name = strings.TrimSpace(lo.CoalesceOrEmpty(o.Title, o.Text))
					subs = append(subs, sub)
				}
			}
			walk(o.Outlines)
		}
	}
	walk(doc.Body.Outlines)

	return lo.UniqBy(subs, domain.Subscription.Key), nil
}

// FromFeedURL recognizes the channel a feed address points at.
func FromFeedURL(raw string) (domain.Subscription, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return domain.Subscription{}, false
	}

	query := u.Query()
	switch {
	case query.Get("channel_id") != "":
		return domain.New(domain.PlatformYoutube, query.Get("channel_id")), true
	case query.Get("videoChannelName") != "":
		return domain.New(domain.PlatformPeertube, query.Get("videoChannelName")+"@"+u.Host), true
	case strings.Contains(u.Path, "/$/rss/"):
		_, name, _ := strings.Cut(u.Path, "/$/rss/")
		name = strings.Trim(name, "/")
		if name == "" {
			return domain.Subscription{}, false
		}
		return domain.New(domain.PlatformLbry, name), true
	}
	return domain.Subscription{}, false
}

// Write emits an OPML 2.0 document with one outline per subscription.
func Write(w io.Writer, title string, subs []domain.Subscription, resolver URLResolver) error {
	doc := document{
		Version: "2.0",
		Head: head{
			Title:       title,
			DateCreated: time.Now().UTC().Format(time.RFC1123Z),
		},
	}

	for _, sub := range subs {
		feedURL, err := resolver.FeedURL(sub)
		if err != nil {
			return oops.With("subscription", sub.String()).Wrap(err)
		}
		doc.Body.Outlines = append(doc.Body.Outlines, outline{
			Text:   sub.DisplayName(),
			Title:  sub.DisplayName(),
			Type:   "rss",
			XMLURL: feedURL,
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return oops.Wrap(err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return oops.Wrapf(err, "encode opml")
	}
	return nil
}
