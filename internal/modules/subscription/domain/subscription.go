package domain

import (
	"fmt"
	"strings"

	apperrors "github.com/reshetovitsme/tubefeed/internal/shared/errors"
	"github.com/samber/oops"
)

// Subscription references a channel on one platform. Name is learned from
// fetched feeds and is not part of the identity.
type Subscription struct {
	Platform Platform `json:"platform"`
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
}

// Key is the identity of a subscription.
type Key struct {
	Platform Platform
	ID       string
}

func New(platform Platform, id string) Subscription {
	return Subscription{Platform: platform, ID: strings.TrimSpace(id)}
}

func (s Subscription) Key() Key {
	return Key{Platform: s.Platform, ID: s.ID}
}

// Same reports whether both subscriptions point at the same channel.
func (s Subscription) Same(other Subscription) bool {
	return s.Key() == other.Key()
}

// DisplayName is the name when known, the id otherwise.
func (s Subscription) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

func (s Subscription) String() string {
	return fmt.Sprintf("%s:%s", s.Platform, s.ID)
}

// Validate checks the id has the shape its platform expects.
func (s Subscription) Validate() error {
	if s.ID == "" {
		return oops.With("platform", s.Platform).Errorf("empty subscription id")
	}
	if !s.Platform.IsValid() {
		return oops.With("platform", s.Platform).Wrap(apperrors.ErrUnknownPlatform)
	}
	if s.Platform == PlatformPeertube {
		if _, _, err := s.PeerTubeHandle(); err != nil {
			return err
		}
	}
	return nil
}

// PeerTubeHandle splits a channel@instance id.
func (s Subscription) PeerTubeHandle() (channel, host string, err error) {
	channel, host, ok := strings.Cut(strings.TrimPrefix(s.ID, "@"), "@")
	if !ok || channel == "" || host == "" {
		return "", "", oops.With("id", s.ID).Errorf("peertube id must look like channel@instance.host")
	}
	return channel, host, nil
}

// Less orders subscriptions for display: case-insensitive by name when both
// have one, named before unnamed, then by id.
func Less(a, b Subscription) bool {
	return Compare(a, b) < 0
}

// Compare is the three-way form of Less.
func Compare(a, b Subscription) int {
	switch {
	case a.Name != "" && b.Name != "":
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
	case a.Name != "":
		return -1
	case b.Name != "":
		return 1
	}

	if c := strings.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return strings.Compare(string(a.Platform), string(b.Platform))
}

// Row serializes the subscription as [platform, id]. The name is never
// stored; it is re-learned from fetched feeds.
func (s Subscription) Row() []string {
	return []string{s.Platform.String(), s.ID}
}

// ParseRow is the inverse of Row. A single column is a bare YouTube channel
// id, the layout older files use. Extra columns are ignored.
func ParseRow(fields []string) (Subscription, error) {
	switch len(fields) {
	case 0:
		return Subscription{}, oops.Wrapf(apperrors.ErrMalformedRow, "empty subscription row")
	case 1:
		sub := New(PlatformYoutube, fields[0])
		if sub.ID == "" {
			return Subscription{}, oops.Wrapf(apperrors.ErrMalformedRow, "empty subscription id")
		}
		return sub, nil
	}

	platform, err := ParsePlatform(strings.TrimSpace(fields[0]))
	if err != nil {
		return Subscription{}, oops.With("platform", fields[0]).Wrapf(apperrors.ErrMalformedRow, "%v", err)
	}

	sub := New(platform, fields[1])
	if err := sub.Validate(); err != nil {
		return Subscription{}, oops.With("row", fields).Wrapf(apperrors.ErrMalformedRow, "%v", err)
	}
	return sub, nil
}
