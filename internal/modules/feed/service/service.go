package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/reshetovitsme/tubefeed/internal/modules/feed/domain"
	filterService "github.com/reshetovitsme/tubefeed/internal/modules/filter/service"
	subscriptionService "github.com/reshetovitsme/tubefeed/internal/modules/subscription/service"
	apperrors "github.com/reshetovitsme/tubefeed/internal/shared/errors"
)

// ErrorSummary counts the failed fetches of one generation by kind.
type ErrorSummary struct {
	Network int `json:"network"`
	Parse   int `json:"parse"`
	// Other counts failures that are neither, such as a cancelled reload.
	Other int `json:"other,omitempty"`
}

func (e ErrorSummary) Total() int {
	return e.Network + e.Parse + e.Other
}

func (e *ErrorSummary) add(err error) {
	switch {
	case errors.Is(err, apperrors.ErrNetworking):
		e.Network++
	case errors.Is(err, apperrors.ErrParsing):
		e.Parse++
	default:
		e.Other++
	}
}

// Message is a one line description for users, empty when nothing failed.
func (e ErrorSummary) Message() string {
	if e.Total() == 0 {
		return ""
	}

	var parts []string
	if e.Network >= e.Parse && e.Network > 0 {
		parts = append(parts, fmt.Sprintf("network error: %d subscription(s) could not be reached", e.Network))
		if e.Parse > 0 {
			parts = append(parts, fmt.Sprintf("%d feed(s) could not be parsed", e.Parse))
		}
	} else if e.Parse > 0 {
		parts = append(parts, fmt.Sprintf("parse error: %d feed(s) could not be parsed", e.Parse))
		if e.Network > 0 {
			parts = append(parts, fmt.Sprintf("%d subscription(s) could not be reached", e.Network))
		}
	}
	if e.Other > 0 {
		parts = append(parts, fmt.Sprintf("%d fetch(es) failed", e.Other))
	}

	msg := strings.Join(parts, "; ")
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// Result is one generation of the aggregated feed.
type Result struct {
	Feed        domain.Feed  `json:"entries"`
	Errors      ErrorSummary `json:"errors"`
	Generation  uint64       `json:"generation"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// Options tune the orchestrator.
type Options struct {
	// PartialResults keeps the videos of the subscriptions that were fetched
	// when others fail. When false one failure discards the whole generation.
	PartialResults bool
	// UpdateInterval is the period of the background reload. Zero disables it.
	UpdateInterval time.Duration
	Logger         *slog.Logger
}

// Service aggregates the feeds of every subscription into one feed.
type Service struct {
	subscriptions *subscriptionService.Group
	filters       *filterService.Group
	fetcher       subscriptionService.Fetcher
	opts          Options
	logger        *slog.Logger

	mu         sync.Mutex
	generation uint64
	cancelLast context.CancelFunc
	latest     *Result
	results    chan Result

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a feed service.
func New(
	subscriptions *subscriptionService.Group,
	filters *filterService.Group,
	fetcher subscriptionService.Fetcher,
	opts Options,
) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		subscriptions: subscriptions,
		filters:       filters,
		fetcher:       fetcher,
		opts:          opts,
		logger:        logger,
		results:       make(chan Result, 1),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Generate fetches every subscription, learns channel names from the fetched
// videos and drops the videos matched by a filter.
func (s *Service) Generate(ctx context.Context) Result {
	return s.generate(ctx, s.Generation())
}

func (s *Service) generate(ctx context.Context, generation uint64) Result {
	started := time.Now()
	res := Result{Generation: generation}

	var fetched domain.Feed
	if s.opts.PartialResults {
		var errs []error
		fetched, errs = s.subscriptions.GetFeedPartial(ctx, s.fetcher)
		for _, err := range errs {
			res.Errors.add(err)
			s.logger.Warn("Failed to fetch subscription", "generation", generation, "error", err)
		}
	} else {
		var err error
		fetched, err = s.subscriptions.GetFeed(ctx, s.fetcher)
		if err != nil {
			res.Errors.add(err)
			s.logger.Warn("Failed to generate feed", "generation", generation, "error", err)
		}
	}

	s.subscriptions.ResolveName(fetched.Subscriptions())

	res.Feed = s.filters.Filter(fetched)
	if res.Feed == nil {
		res.Feed = domain.Feed{}
	}
	res.GeneratedAt = time.Now()

	s.logger.Info("Feed generated",
		"generation", generation,
		"videos", len(res.Feed),
		"filtered", len(fetched)-len(res.Feed),
		"failed", res.Errors.Total(),
		"duration", time.Since(started),
	)
	return res
}

// Reload starts a new generation in the background and returns its number.
// A reload still running is cancelled and its result will not be published.
// After Stop it does nothing and returns the last generation.
func (s *Service) Reload() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		s.logger.Debug("Ignoring reload after stop", "generation", s.generation)
		return s.generation
	}

	s.generation++
	generation := s.generation
	if s.cancelLast != nil {
		s.cancelLast()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelLast = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.publish(ctx, s.generate(ctx, generation))
	}()

	return generation
}

// publish caches res and hands it to the consumer of Results, unless a newer
// reload has started meanwhile or the reload was cancelled.
func (s *Service) publish(ctx context.Context, res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.Generation != s.generation {
		s.logger.Debug("Dropping stale feed", "generation", res.Generation, "current", s.generation)
		return
	}
	if ctx.Err() != nil {
		s.logger.Debug("Dropping cancelled feed", "generation", res.Generation)
		return
	}
	s.latest = &res

	// The channel holds only the newest result.
	select {
	case <-s.results:
	default:
	}
	s.results <- res
}

// Results delivers every published generation. It is meant for a single
// consumer; a result not read before the next one is published is replaced.
func (s *Service) Results() <-chan Result {
	return s.results
}

// Latest returns the most recently published result.
func (s *Service) Latest() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return Result{}, false
	}
	return *s.latest, true
}

// Generation is the number of the most recently started reload.
func (s *Service) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Start triggers the first reload and, when an update interval is set, keeps
// reloading on that period until Stop.
func (s *Service) Start(ctx context.Context) {
	s.Reload()

	if s.opts.UpdateInterval <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	s.wg.Add(1)
	go s.monitorLoop(ctx)
}

// Stop cancels the running reload and the poll loop and waits for them. No
// result is published once Stop has been called.
func (s *Service) Stop() {
	// Cancelling under mu orders Stop against Reload and publish.
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Service) monitorLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Reload()
		}
	}
}
