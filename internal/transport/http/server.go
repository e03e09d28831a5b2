package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	feedService "github.com/reshetovitsme/tubefeed/internal/modules/feed/service"
	filterService "github.com/reshetovitsme/tubefeed/internal/modules/filter/service"
	playlistService "github.com/reshetovitsme/tubefeed/internal/modules/playlist/service"
	"github.com/reshetovitsme/tubefeed/internal/modules/subscription/opml"
	subscriptionService "github.com/reshetovitsme/tubefeed/internal/modules/subscription/service"
	"github.com/reshetovitsme/tubefeed/internal/shared/config"
	sloghttp "github.com/samber/slog-http"
)

// Server exposes the aggregated feed and the collections over HTTP
type Server struct {
	cfg           *config.Config
	feedService   *feedService.Service
	subscriptions *subscriptionService.Group
	filters       *filterService.Group
	playlists     *playlistService.Manager
	resolver      opml.URLResolver
	logger        *slog.Logger
	server        *http.Server
}

// New creates a new HTTP server
func New(
	cfg *config.Config,
	feedService *feedService.Service,
	subscriptions *subscriptionService.Group,
	filters *filterService.Group,
	playlists *playlistService.Manager,
	resolver opml.URLResolver,
) *Server {
	return &Server{
		cfg:           cfg,
		feedService:   feedService,
		subscriptions: subscriptions,
		filters:       filters,
		playlists:     playlists,
		resolver:      resolver,
		logger:        slog.Default(),
	}
}

// SetLogger sets the logger
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Handler returns the routes wrapped in the logging and recovery middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /feed.rss", s.handleFeedExport)
	mux.HandleFunc("GET /feed.atom", s.handleFeedExport)
	mux.HandleFunc("GET /feed.json", s.handleFeedExport)

	mux.HandleFunc("GET /api/feed", s.handleFeed)
	mux.HandleFunc("POST /api/reload", s.handleReload)

	mux.HandleFunc("GET /api/subscriptions", s.handleListSubscriptions)
	mux.HandleFunc("POST /api/subscriptions", s.handleAddSubscription)
	mux.HandleFunc("DELETE /api/subscriptions", s.handleRemoveSubscription)
	mux.HandleFunc("GET /api/subscriptions.opml", s.handleExportOPML)
	mux.HandleFunc("POST /api/subscriptions.opml", s.handleImportOPML)

	mux.HandleFunc("GET /api/filters", s.handleListFilters)
	mux.HandleFunc("POST /api/filters", s.handleAddFilter)
	mux.HandleFunc("DELETE /api/filters", s.handleRemoveFilter)

	mux.HandleFunc("GET /api/playlists", s.handleListPlaylists)
	mux.HandleFunc("GET /api/playlists/{name}", s.handlePlaylistItems)
	mux.HandleFunc("POST /api/playlists/{name}", s.handleAddToPlaylist)
	mux.HandleFunc("DELETE /api/playlists/{name}", s.handleRemoveFromPlaylist)

	handler := sloghttp.Recovery(mux)
	return sloghttp.New(s.logger)(handler)
}

// Start listens on the configured port until Shutdown
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.cfg.HTTPPort)
	s.logger.Info("HTTP server starting", "addr", addr)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":        "ok",
		"subscriptions": s.subscriptions.Len(),
		"filters":       s.filters.Len(),
	}
	if res, ok := s.feedService.Latest(); ok {
		body["generation"] = res.Generation
		body["generated_at"] = res.GeneratedAt
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// baseURL is the configured public address, or the one the request came in on.
func (s *Server) baseURL(r *http.Request) string {
	if s.cfg.BaseURL != "" {
		return s.cfg.PublicURL()
	}
	return fmt.Sprintf("%s://%s", getScheme(r), r.Host)
}

func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
