package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-telegram/bot"
	feedService "github.com/reshetovitsme/tubefeed/internal/modules/feed/service"
	filterRepo "github.com/reshetovitsme/tubefeed/internal/modules/filter/repository"
	filterService "github.com/reshetovitsme/tubefeed/internal/modules/filter/service"
	subscription "github.com/reshetovitsme/tubefeed/internal/modules/subscription/domain"
	subscriptionRepo "github.com/reshetovitsme/tubefeed/internal/modules/subscription/repository"
	subscriptionService "github.com/reshetovitsme/tubefeed/internal/modules/subscription/service"
	"github.com/reshetovitsme/tubefeed/internal/shared/config"
	apperrors "github.com/reshetovitsme/tubefeed/internal/shared/errors"
	httpServer "github.com/reshetovitsme/tubefeed/internal/transport/http"
	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		StoragePath: t.TempDir(),
		HTTPPort:    "0",
		Feed:        config.FeedConfig{Limit: 10},
	}
}

func TestCollectionsPersistThroughContainer(t *testing.T) {
	cfg := testConfig(t)

	injector := SetupWith(cfg)
	group := do.MustInvoke[*subscriptionService.Group](injector)
	require.True(t, group.Add(subscription.New(subscription.PlatformYoutube, "UC1")))
	require.True(t, group.Add(subscription.New(subscription.PlatformLbry, "@chan")))
	require.NoError(t, Shutdown(context.Background(), injector))

	data, err := os.ReadFile(filepath.Join(cfg.StoragePath, subscriptionRepo.FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "youtube,UC1")

	reloaded := do.MustInvoke[*subscriptionService.Group](SetupWith(cfg))
	assert.Equal(t, 2, reloaded.Len())
}

func TestBrokenFilterTableFailsStartup(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(cfg.StoragePath, filterRepo.FileName)
	require.NoError(t, os.WriteFile(path, []byte("name,url\nx,y\n"), 0o644))

	_, err := do.Invoke[*filterService.Group](SetupWith(cfg))

	assert.Error(t, err)
}

func TestBotRequiresToken(t *testing.T) {
	injector := SetupWith(testConfig(t))

	_, err := do.Invoke[*bot.Bot](injector)

	assert.ErrorContains(t, err, apperrors.ErrMissingBotToken.Error())
}

func TestHTTPServerResolves(t *testing.T) {
	injector := SetupWith(testConfig(t))

	server, err := do.Invoke[*httpServer.Server](injector)

	require.NoError(t, err)
	assert.NotNil(t, server.Handler())
	assert.NoError(t, Shutdown(context.Background(), injector))
}

func TestShutdownStopsFeedReloads(t *testing.T) {
	injector := SetupWith(testConfig(t))
	feeds := do.MustInvoke[*feedService.Service](injector)
	_, err := do.Invoke[*httpServer.Server](injector)
	require.NoError(t, err)

	require.NoError(t, Shutdown(context.Background(), injector))

	gen := feeds.Generation()
	assert.Equal(t, gen, feeds.Reload())
	_, ok := feeds.Latest()
	assert.False(t, ok)
}
