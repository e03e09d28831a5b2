package domain

import (
	"regexp"

	feed "github.com/reshetovitsme/tubefeed/internal/modules/feed/domain"
	apperrors "github.com/reshetovitsme/tubefeed/internal/shared/errors"
	"github.com/samber/oops"
)

// EntryFilter hides videos whose title and channel both match. Two filters
// are equal when their pattern strings are equal.
type EntryFilter struct {
	titlePattern   string
	channelPattern string
	title          *regexp.Regexp
	channel        *regexp.Regexp
}

// New compiles both patterns. An empty pattern matches everything.
func New(titlePattern, channelPattern string) (*EntryFilter, error) {
	title, err := regexp.Compile(titlePattern)
	if err != nil {
		return nil, &apperrors.PatternError{Field: "title", Pattern: titlePattern, Err: err}
	}
	channel, err := regexp.Compile(channelPattern)
	if err != nil {
		return nil, &apperrors.PatternError{Field: "channel", Pattern: channelPattern, Err: err}
	}

	return &EntryFilter{
		titlePattern:   titlePattern,
		channelPattern: channelPattern,
		title:          title,
		channel:        channel,
	}, nil
}

func (f *EntryFilter) TitlePattern() string {
	return f.titlePattern
}

func (f *EntryFilter) ChannelPattern() string {
	return f.channelPattern
}

// Matches reports whether v should be hidden.
func (f *EntryFilter) Matches(v feed.Video) bool {
	return f.title.MatchString(v.Title) && f.channel.MatchString(v.Author())
}

// Equal compares pattern strings, not compiled programs.
func (f *EntryFilter) Equal(other *EntryFilter) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.titlePattern == other.titlePattern && f.channelPattern == other.channelPattern
}

func (f *EntryFilter) String() string {
	return "title=/" + f.titlePattern + "/ channel=/" + f.channelPattern + "/"
}

// Row serializes the filter as [title_pattern, channel_pattern].
func (f *EntryFilter) Row() []string {
	return []string{f.titlePattern, f.channelPattern}
}

// Header names the columns of a filter table.
var Header = []string{"title", "channel"}

// ParseRow builds a filter from a row. A missing channel column means any
// channel. Invalid patterns make the row malformed.
func ParseRow(fields []string) (*EntryFilter, error) {
	if len(fields) == 0 {
		return nil, oops.Wrapf(apperrors.ErrMalformedRow, "empty filter row")
	}

	channel := ""
	if len(fields) > 1 {
		channel = fields[1]
	}

	f, err := New(fields[0], channel)
	if err != nil {
		return nil, oops.With("row", fields).Wrapf(apperrors.ErrMalformedRow, "%v", err)
	}
	return f, nil
}
