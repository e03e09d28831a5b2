package di

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/reshetovitsme/tubefeed/internal/modules/feed/fetcher"
	feedService "github.com/reshetovitsme/tubefeed/internal/modules/feed/service"
	filterRepo "github.com/reshetovitsme/tubefeed/internal/modules/filter/repository"
	filterService "github.com/reshetovitsme/tubefeed/internal/modules/filter/service"
	playlistRepo "github.com/reshetovitsme/tubefeed/internal/modules/playlist/repository"
	playlistService "github.com/reshetovitsme/tubefeed/internal/modules/playlist/service"
	subscriptionRepo "github.com/reshetovitsme/tubefeed/internal/modules/subscription/repository"
	subscriptionService "github.com/reshetovitsme/tubefeed/internal/modules/subscription/service"
	"github.com/reshetovitsme/tubefeed/internal/shared/config"
	apperrors "github.com/reshetovitsme/tubefeed/internal/shared/errors"
	"github.com/reshetovitsme/tubefeed/internal/shared/observer"
	httpServer "github.com/reshetovitsme/tubefeed/internal/transport/http"
	telegramHandler "github.com/reshetovitsme/tubefeed/internal/transport/telegram"
	"github.com/samber/do/v2"
	"github.com/samber/oops"
)

// Setup initializes the dependency injection container with the
// configuration from the working directory.
func Setup() (do.Injector, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, oops.With("context", "failed to load config").Wrap(err)
	}
	return SetupWith(cfg), nil
}

// SetupWith initializes the container around an already loaded config.
//
// The injector owns the file stores. Collections only hold weak references
// to them, so the stores must stay registered for as long as the
// collections are mutated.
func SetupWith(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)

	// Register Fetcher
	do.Provide(injector, func(i do.Injector) (*fetcher.Fetcher, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return fetcher.New(
			fetcher.WithTimeout(cfg.Fetch.Timeout),
			fetcher.WithRateLimit(cfg.Fetch.RequestsPerSecond),
			fetcher.WithYouTubeBaseURL(cfg.Fetch.YouTubeBaseURL),
			fetcher.WithLBRYBaseURL(cfg.Fetch.LBRYBaseURL),
			fetcher.WithPeerTubeScheme(cfg.Fetch.PeerTubeScheme),
			fetcher.WithLogger(slog.Default()),
		), nil
	})

	// Register Subscription Repository
	do.Provide(injector, func(i do.Injector) (*subscriptionRepo.FileStorage, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo, err := subscriptionRepo.NewFileStorage(cfg.StoragePath, slog.Default())
		if err != nil {
			return nil, oops.With("storage_path", cfg.StoragePath, "context", "failed to initialize subscription repository").Wrap(err)
		}
		return repo, nil
	})

	// Register Filter Repository
	do.Provide(injector, func(i do.Injector) (*filterRepo.FileStorage, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo, err := filterRepo.NewFileStorage(cfg.StoragePath, slog.Default())
		if err != nil {
			return nil, oops.With("storage_path", cfg.StoragePath, "context", "failed to initialize filter repository").Wrap(err)
		}
		return repo, nil
	})

	// Register Playlist Repository
	do.Provide(injector, func(i do.Injector) (*playlistRepo.FileStorage, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo, err := playlistRepo.NewFileStorage(cfg.StoragePath, slog.Default())
		if err != nil {
			return nil, oops.With("storage_path", cfg.StoragePath, "context", "failed to initialize playlist repository").Wrap(err)
		}
		return repo, nil
	})

	// Register Subscription Group
	do.Provide(injector, func(i do.Injector) (*subscriptionService.Group, error) {
		repo := do.MustInvoke[*subscriptionRepo.FileStorage](i)
		group := subscriptionService.New()
		if err := repo.Load(group.Insert); err != nil {
			return nil, oops.With("path", repo.Path(), "context", "failed to load subscriptions").Wrap(err)
		}
		observer.Attach(group.Events(), repo)
		return group, nil
	})

	// Register Filter Group
	do.Provide(injector, func(i do.Injector) (*filterService.Group, error) {
		repo := do.MustInvoke[*filterRepo.FileStorage](i)
		group := filterService.New()
		if err := repo.Load(group.Insert); err != nil {
			return nil, oops.With("path", repo.Path(), "context", "failed to load filters").Wrap(err)
		}
		observer.Attach(group.Events(), repo)
		return group, nil
	})

	// Register Playlist Manager
	do.Provide(injector, func(i do.Injector) (*playlistService.Manager, error) {
		repo := do.MustInvoke[*playlistRepo.FileStorage](i)
		manager := playlistService.New()
		if err := repo.Load(manager.Insert); err != nil {
			return nil, oops.With("path", repo.Path(), "context", "failed to load playlists").Wrap(err)
		}
		observer.Attach(manager.Events(), repo)
		return manager, nil
	})

	// Register Feed Service
	do.Provide(injector, func(i do.Injector) (*feedService.Service, error) {
		cfg := do.MustInvoke[*config.Config](i)
		subscriptions, err := do.Invoke[*subscriptionService.Group](i)
		if err != nil {
			return nil, err
		}
		filters, err := do.Invoke[*filterService.Group](i)
		if err != nil {
			return nil, err
		}
		return feedService.New(subscriptions, filters, do.MustInvoke[*fetcher.Fetcher](i), feedService.Options{
			PartialResults: cfg.Aggregation.PartialResults,
			UpdateInterval: cfg.UpdateEvery(),
			Logger:         slog.Default(),
		}), nil
	})

	// Register HTTP Server
	do.Provide(injector, func(i do.Injector) (*httpServer.Server, error) {
		feeds, err := do.Invoke[*feedService.Service](i)
		if err != nil {
			return nil, err
		}
		playlists, err := do.Invoke[*playlistService.Manager](i)
		if err != nil {
			return nil, err
		}
		server := httpServer.New(
			do.MustInvoke[*config.Config](i),
			feeds,
			do.MustInvoke[*subscriptionService.Group](i),
			do.MustInvoke[*filterService.Group](i),
			playlists,
			do.MustInvoke[*fetcher.Fetcher](i),
		)
		server.SetLogger(slog.Default())
		return server, nil
	})

	// Register Telegram Handler
	do.Provide(injector, func(i do.Injector) (*telegramHandler.Handler, error) {
		feeds, err := do.Invoke[*feedService.Service](i)
		if err != nil {
			return nil, err
		}
		playlists, err := do.Invoke[*playlistService.Manager](i)
		if err != nil {
			return nil, err
		}
		handler := telegramHandler.New(
			do.MustInvoke[*config.Config](i),
			feeds,
			do.MustInvoke[*subscriptionService.Group](i),
			do.MustInvoke[*filterService.Group](i),
			playlists,
		)
		handler.SetLogger(slog.Default())
		return handler, nil
	})

	// Register Bot (needs to be initialized after handlers are ready)
	do.Provide(injector, func(i do.Injector) (*bot.Bot, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if !cfg.TelegramEnabled() {
			return nil, oops.With("key", "telegram_bot_token").Wrap(apperrors.ErrMissingBotToken)
		}

		handler, err := do.Invoke[*telegramHandler.Handler](i)
		if err != nil {
			return nil, err
		}

		opts := []bot.Option{
			bot.WithDefaultHandler(handler.HandleUpdate),
		}
		if cfg.TelegramAPIURL != "" {
			opts = append(opts, bot.WithServerURL(cfg.TelegramAPIURL))
		}

		b, err := bot.New(cfg.TelegramBotToken, opts...)
		if err != nil {
			return nil, oops.With("context", "failed to create telegram bot").Wrap(err)
		}

		// Register bot commands
		handler.RegisterCommands(b)

		return b, nil
	})

	return injector
}

// Shutdown gracefully shuts down all services. The transports go first so no
// request can start a reload once the feed service is stopping.
func Shutdown(ctx context.Context, injector do.Injector) error {
	cfg := do.MustInvoke[*config.Config](injector)

	var shutdownErr error
	if server, err := do.Invoke[*httpServer.Server](injector); err == nil && server != nil {
		if err := server.Shutdown(ctx); err != nil {
			shutdownErr = oops.With("context", "failed to shutdown http server").Wrap(err)
		}
	}

	if cfg.TelegramEnabled() {
		if b, err := do.Invoke[*bot.Bot](injector); err == nil && b != nil {
			b.Close(ctx)
		}
	}

	if feeds, err := do.Invoke[*feedService.Service](injector); err == nil && feeds != nil {
		feeds.Stop()
	}

	return shutdownErr
}
