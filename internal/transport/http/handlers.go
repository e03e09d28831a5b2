package http

import (
	"bytes"
	"errors"
	"net/http"
	"path"
	"strconv"
	"time"

	feed "github.com/reshetovitsme/tubefeed/internal/modules/feed/domain"
	feedService "github.com/reshetovitsme/tubefeed/internal/modules/feed/service"
	filter "github.com/reshetovitsme/tubefeed/internal/modules/filter/domain"
	subscription "github.com/reshetovitsme/tubefeed/internal/modules/subscription/domain"
	"github.com/reshetovitsme/tubefeed/internal/modules/subscription/opml"
	apperrors "github.com/reshetovitsme/tubefeed/internal/shared/errors"
	"github.com/samber/lo"
)

type feedResponse struct {
	Entries     feed.Feed                `json:"entries"`
	Errors      feedService.ErrorSummary `json:"errors"`
	Message     string                   `json:"message,omitempty"`
	Generation  uint64                   `json:"generation"`
	GeneratedAt string                   `json:"generated_at"`
}

type subscriptionRequest struct {
	Platform string `json:"platform"`
	ID       string `json:"id"`
}

type filterRequest struct {
	Title   string `json:"title"`
	Channel string `json:"channel"`
}

type playlistRequest struct {
	URL   string     `json:"url"`
	Video feed.Video `json:"video"`
}

// limit reads ?limit=, falling back to the configured feed limit.
func (s *Server) limit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			return n
		}
	}
	return s.cfg.Feed.Limit
}

func (s *Server) handleFeedExport(w http.ResponseWriter, r *http.Request) {
	res, ok := s.feedService.Latest()
	if !ok {
		w.Header().Set("Retry-After", "10")
		s.writeError(w, http.StatusServiceUnavailable, "feed has not been generated yet")
		return
	}

	out := feedService.BuildFeed(res, s.baseURL(r), s.limit(r))

	var (
		body        string
		err         error
		contentType string
	)
	switch path.Ext(r.URL.Path) {
	case ".atom":
		body, err = out.ToAtom()
		contentType = "application/atom+xml; charset=utf-8"
	case ".json":
		body, err = out.ToJSON()
		contentType = "application/feed+json; charset=utf-8"
	default:
		body, err = out.ToRss()
		contentType = "application/rss+xml; charset=utf-8"
	}
	if err != nil {
		s.logger.Error("Error rendering feed", "path", r.URL.Path, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to render feed")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	res, ok := s.feedService.Latest()
	if !ok {
		w.Header().Set("Retry-After", "10")
		s.writeError(w, http.StatusServiceUnavailable, "feed has not been generated yet")
		return
	}

	s.writeJSON(w, http.StatusOK, feedResponse{
		Entries:     res.Feed.Limit(s.limit(r)),
		Errors:      res.Errors,
		Message:     res.Errors.Message(),
		Generation:  res.Generation,
		GeneratedAt: res.GeneratedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	generation := s.feedService.Reload()
	s.writeJSON(w, http.StatusAccepted, map[string]uint64{"generation": generation})
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.subscriptions.Snapshot())
}

func (s *Server) decodeSubscription(w http.ResponseWriter, r *http.Request) (subscription.Subscription, bool) {
	var req subscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return subscription.Subscription{}, false
	}

	platform, err := subscription.ParsePlatform(req.Platform)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return subscription.Subscription{}, false
	}

	sub := subscription.New(platform, req.ID)
	if err := sub.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return subscription.Subscription{}, false
	}
	return sub, true
}

func (s *Server) handleAddSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.decodeSubscription(w, r)
	if !ok {
		return
	}

	if !s.subscriptions.Add(sub) {
		s.writeJSON(w, http.StatusOK, sub)
		return
	}
	s.feedService.Reload()
	s.writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleRemoveSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.decodeSubscription(w, r)
	if !ok {
		return
	}

	if !s.subscriptions.Remove(sub) {
		s.writeError(w, http.StatusNotFound, apperrors.ErrSubscriptionNotFound.Error())
		return
	}
	s.feedService.Reload()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := opml.Write(&buf, "tubefeed subscriptions", s.subscriptions.Snapshot(), s.resolver); err != nil {
		s.logger.Error("Error exporting OPML", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to export subscriptions")
		return
	}

	w.Header().Set("Content-Type", "text/x-opml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="subscriptions.opml"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	subs, err := opml.Parse(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid OPML document")
		return
	}

	added := lo.CountBy(subs, s.subscriptions.Add)
	if added > 0 {
		s.feedService.Reload()
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"found": len(subs), "imported": added})
}

func (s *Server) handleListFilters(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, lo.Map(s.filters.Snapshot(), func(f *filter.EntryFilter, _ int) filterRequest {
		return filterRequest{Title: f.TitlePattern(), Channel: f.ChannelPattern()}
	}))
}

func (s *Server) decodeFilter(w http.ResponseWriter, r *http.Request) (*filter.EntryFilter, bool) {
	var req filterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}

	f, err := filter.New(req.Title, req.Channel)
	if err != nil {
		var pe *apperrors.PatternError
		if errors.As(err, &pe) {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error(), "field": pe.Field})
			return nil, false
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return f, true
}

func (s *Server) handleAddFilter(w http.ResponseWriter, r *http.Request) {
	f, ok := s.decodeFilter(w, r)
	if !ok {
		return
	}

	status := http.StatusOK
	if s.filters.Add(f) {
		status = http.StatusCreated
		s.feedService.Reload()
	}
	s.writeJSON(w, status, filterRequest{Title: f.TitlePattern(), Channel: f.ChannelPattern()})
}

func (s *Server) handleRemoveFilter(w http.ResponseWriter, r *http.Request) {
	f, ok := s.decodeFilter(w, r)
	if !ok {
		return
	}

	if !s.filters.Remove(f) {
		s.writeError(w, http.StatusNotFound, "filter not found")
		return
	}
	s.feedService.Reload()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.playlists.Playlists())
}

func (s *Server) handlePlaylistItems(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.playlists.Items(r.PathValue("name")))
}

// decodeVideo accepts either a full video or just its url. A bare url is
// looked up in the latest feed to fill in the rest.
func (s *Server) decodeVideo(w http.ResponseWriter, r *http.Request) (feed.Video, bool) {
	var req playlistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return feed.Video{}, false
	}

	v := req.Video
	if v.URL == "" {
		v.URL = req.URL
	}
	if v.URL == "" {
		s.writeError(w, http.StatusBadRequest, "video url is required")
		return feed.Video{}, false
	}

	if v.Title == "" {
		if res, ok := s.feedService.Latest(); ok {
			if known, found := lo.Find(res.Feed, func(candidate feed.Video) bool {
				return candidate.URL == v.URL
			}); found {
				v = known
			}
		}
	}
	if !v.Platform().IsValid() {
		s.writeError(w, http.StatusBadRequest, "unknown video; send the full video or reload the feed first")
		return feed.Video{}, false
	}
	return v, true
}

func (s *Server) handleAddToPlaylist(w http.ResponseWriter, r *http.Request) {
	v, ok := s.decodeVideo(w, r)
	if !ok {
		return
	}

	status := http.StatusOK
	if s.playlists.Add(r.PathValue("name"), v) {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, v)
}

func (s *Server) handleRemoveFromPlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	v := req.Video
	if v.URL == "" {
		v.URL = req.URL
	}
	if !s.playlists.Remove(r.PathValue("name"), v) {
		s.writeError(w, http.StatusNotFound, "video not in playlist")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
