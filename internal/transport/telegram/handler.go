package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	feed "github.com/reshetovitsme/tubefeed/internal/modules/feed/domain"
	feedService "github.com/reshetovitsme/tubefeed/internal/modules/feed/service"
	filterDomain "github.com/reshetovitsme/tubefeed/internal/modules/filter/domain"
	filterService "github.com/reshetovitsme/tubefeed/internal/modules/filter/service"
	playlistDomain "github.com/reshetovitsme/tubefeed/internal/modules/playlist/domain"
	playlistService "github.com/reshetovitsme/tubefeed/internal/modules/playlist/service"
	subscriptionDomain "github.com/reshetovitsme/tubefeed/internal/modules/subscription/domain"
	"github.com/reshetovitsme/tubefeed/internal/modules/subscription/opml"
	subscriptionService "github.com/reshetovitsme/tubefeed/internal/modules/subscription/service"
	"github.com/reshetovitsme/tubefeed/internal/shared/config"
	apperrors "github.com/reshetovitsme/tubefeed/internal/shared/errors"
	"github.com/samber/lo"
)

const defaultFeedItems = 10

// Handler handles Telegram bot interactions
type Handler struct {
	cfg           *config.Config
	feedService   *feedService.Service
	subscriptions *subscriptionService.Group
	filters       *filterService.Group
	playlists     *playlistService.Manager
	logger        *slog.Logger
}

// New creates a new Telegram handler
func New(
	cfg *config.Config,
	feedService *feedService.Service,
	subscriptions *subscriptionService.Group,
	filters *filterService.Group,
	playlists *playlistService.Manager,
) *Handler {
	return &Handler{
		cfg:           cfg,
		feedService:   feedService,
		subscriptions: subscriptions,
		filters:       filters,
		playlists:     playlists,
		logger:        slog.Default(),
	}
}

// SetLogger sets the logger
func (h *Handler) SetLogger(logger *slog.Logger) {
	h.logger = logger
}

// RegisterCommands registers bot commands
func (h *Handler) RegisterCommands(b *bot.Bot) {
	for _, command := range []string{
		"/start", "/help", "/subscribe", "/unsubscribe", "/subscriptions",
		"/filter", "/unfilter", "/filters", "/feed", "/reload", "/watchlater", "/status",
	} {
		b.RegisterHandler(bot.HandlerTypeMessageText, command, bot.MatchTypePrefix, h.handleCommand)
	}
}

// HandleUpdate answers messages that are not commands
func (h *Handler) HandleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	h.reply(ctx, b, update.Message.Chat.ID, "Unknown command. Send /help for the list of commands.")
}

func (h *Handler) handleCommand(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	text := h.Respond(update.Message.From.ID, update.Message.Text)
	h.reply(ctx, b, update.Message.Chat.ID, text)
}

func (h *Handler) reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}); err != nil {
		h.logger.Error("Failed to send message", "chat_id", chatID, "error", err)
	}
}

func (h *Handler) checkAuthorization(userID int64) bool {
	return len(h.cfg.AllowedUsers) == 0 || lo.Contains(h.cfg.AllowedUsers, userID)
}

// Respond runs one command for userID and returns the reply text.
func (h *Handler) Respond(userID int64, text string) string {
	command, args := splitCommand(text)

	if command != "/start" && command != "/help" && !h.checkAuthorization(userID) {
		h.logger.Warn("Rejected command", "user_id", userID, "command", command, "error", apperrors.ErrUnauthorized)
		return "❌ Unauthorized"
	}

	switch command {
	case "/start", "/help":
		if !h.checkAuthorization(userID) {
			return "❌ You are not authorized to use this bot."
		}
		return helpText
	case "/subscribe":
		return h.subscribe(args)
	case "/unsubscribe":
		return h.unsubscribe(args)
	case "/subscriptions":
		return h.listSubscriptions()
	case "/filter":
		return h.addFilter(args)
	case "/unfilter":
		return h.removeFilter(args)
	case "/filters":
		return h.listFilters()
	case "/feed":
		return h.showFeed(args)
	case "/reload":
		return fmt.Sprintf("🔄 Reload #%d started", h.feedService.Reload())
	case "/watchlater":
		return h.watchLater(args)
	case "/status":
		return h.status()
	default:
		return "Unknown command. Send /help for the list of commands."
	}
}

const helpText = `👋 Welcome to tubefeed!

I merge the videos of your YouTube, PeerTube and LBRY channels into one feed.

Available commands:
/help - Show this help message
/subscribe <platform> <id> - Subscribe to a channel (or send a feed URL)
/unsubscribe <platform> <id> - Remove a subscription
/subscriptions - List subscriptions
/filter <title regex> | <channel regex> - Hide matching videos
/unfilter <title regex> | <channel regex> - Remove a filter
/filters - List filters
/feed [count] - Show the newest videos
/reload - Fetch all subscriptions again
/watchlater [video url] - Show or toggle the watch later list
/status - Show bot status

Examples:
/subscribe youtube UCXuqSBlHAE6Xw-yeJA0Tunw
/subscribe peertube news@video.example.org
/filter (?i)#shorts`

// splitCommand separates "/cmd@botname args" into "/cmd" and the arguments.
func splitCommand(text string) (string, string) {
	command, args, _ := strings.Cut(strings.TrimSpace(text), " ")
	command, _, _ = strings.Cut(command, "@")
	return strings.ToLower(command), strings.TrimSpace(args)
}

// parseSubscription accepts "<platform> <id>", a feed URL, or a bare YouTube
// channel id.
func parseSubscription(args string) (subscriptionDomain.Subscription, error) {
	fields := strings.Fields(args)
	switch len(fields) {
	case 0:
		return subscriptionDomain.Subscription{}, fmt.Errorf("missing channel")
	case 1:
		if sub, ok := opml.FromFeedURL(fields[0]); ok {
			return sub, nil
		}
		sub := subscriptionDomain.New(subscriptionDomain.PlatformYoutube, fields[0])
		return sub, sub.Validate()
	}

	platform, err := subscriptionDomain.ParsePlatform(fields[0])
	if err != nil {
		return subscriptionDomain.Subscription{}, err
	}
	sub := subscriptionDomain.New(platform, fields[1])
	return sub, sub.Validate()
}

func (h *Handler) subscribe(args string) string {
	sub, err := parseSubscription(args)
	if err != nil {
		return fmt.Sprintf("❌ %v\nUsage: /subscribe <youtube|peertube|lbry> <id>", err)
	}

	if !h.subscriptions.Add(sub) {
		return fmt.Sprintf("ℹ️ Already subscribed to %s", sub)
	}
	h.feedService.Reload()
	return fmt.Sprintf("✅ Subscribed to %s", sub)
}

func (h *Handler) unsubscribe(args string) string {
	sub, err := parseSubscription(args)
	if err != nil {
		return fmt.Sprintf("❌ %v\nUsage: /unsubscribe <youtube|peertube|lbry> <id>", err)
	}

	if !h.subscriptions.Remove(sub) {
		return fmt.Sprintf("❌ Not subscribed to %s", sub)
	}
	h.feedService.Reload()
	return fmt.Sprintf("✅ Unsubscribed from %s", sub)
}

func (h *Handler) listSubscriptions() string {
	subs := h.subscriptions.Snapshot()
	if len(subs) == 0 {
		return "📭 No subscriptions yet.\nUse /subscribe to add one."
	}

	var text strings.Builder
	text.WriteString("📋 Subscriptions:\n\n")
	for i, sub := range subs {
		fmt.Fprintf(&text, "%d. %s\n   %s %s\n", i+1, sub.DisplayName(), sub.Platform, sub.ID)
	}
	return text.String()
}

// parseFilter reads "<title> | <channel>"; the channel part is optional.
func parseFilter(args string) (*filterDomain.EntryFilter, error) {
	title, channel, _ := strings.Cut(args, "|")
	return filterDomain.New(strings.TrimSpace(title), strings.TrimSpace(channel))
}

func (h *Handler) addFilter(args string) string {
	if args == "" {
		return "Usage: /filter <title regex> | <channel regex>\nExample: /filter (?i)live | ^News"
	}

	f, err := parseFilter(args)
	if err != nil {
		return fmt.Sprintf("❌ %v", err)
	}
	if !h.filters.Add(f) {
		return "ℹ️ Filter already exists"
	}
	h.feedService.Reload()
	return fmt.Sprintf("✅ Filter added: %s", f)
}

func (h *Handler) removeFilter(args string) string {
	if args == "" {
		return "Usage: /unfilter <title regex> | <channel regex>"
	}

	// A number refers to the position shown by /filters
	if n, err := strconv.Atoi(args); err == nil {
		filters := h.filters.Snapshot()
		if n < 1 || n > len(filters) {
			return "❌ Filter index out of range"
		}
		h.filters.Remove(filters[n-1])
		h.feedService.Reload()
		return fmt.Sprintf("✅ Filter removed: %s", filters[n-1])
	}

	f, err := parseFilter(args)
	if err != nil {
		return fmt.Sprintf("❌ %v", err)
	}
	if !h.filters.Remove(f) {
		return "❌ Filter not found"
	}
	h.feedService.Reload()
	return fmt.Sprintf("✅ Filter removed: %s", f)
}

func (h *Handler) listFilters() string {
	filters := h.filters.Snapshot()
	if len(filters) == 0 {
		return "📭 No filters yet.\nUse /filter to add one."
	}

	var text strings.Builder
	text.WriteString("🧹 Filters:\n\n")
	for i, f := range filters {
		fmt.Fprintf(&text, "%d. %s\n", i+1, f)
	}
	return text.String()
}

func (h *Handler) showFeed(args string) string {
	count := defaultFeedItems
	if n, err := strconv.Atoi(args); err == nil && n > 0 {
		count = n
	}

	res, ok := h.feedService.Latest()
	if !ok {
		return "⏳ The feed has not been generated yet. Try /reload."
	}

	var text strings.Builder
	if msg := res.Errors.Message(); msg != "" {
		fmt.Fprintf(&text, "⚠️ %s\n\n", msg)
	}
	videos := res.Feed.Limit(count)
	if len(videos) == 0 {
		text.WriteString("📭 No videos.")
		return text.String()
	}
	for _, v := range videos {
		text.WriteString(formatVideo(v))
	}
	return text.String()
}

func formatVideo(v feed.Video) string {
	published := "unknown date"
	if !v.Published.IsZero() {
		published = v.Published.Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("▶️ %s\n   %s · %s\n   %s\n\n", v.Title, v.Author(), published, v.URL)
}

func (h *Handler) watchLater(args string) string {
	if args == "" {
		videos := h.playlists.Items(playlistDomain.WatchLater)
		if len(videos) == 0 {
			return "📭 Watch later is empty."
		}
		var text strings.Builder
		text.WriteString("🕒 Watch later:\n\n")
		for _, v := range videos {
			text.WriteString(formatVideo(v))
		}
		return text.String()
	}

	v, ok := lo.Find(h.playlists.Items(playlistDomain.WatchLater), func(v feed.Video) bool {
		return v.URL == args
	})
	if !ok {
		res, _ := h.feedService.Latest()
		v, ok = lo.Find(res.Feed, func(v feed.Video) bool {
			return v.URL == args
		})
	}
	if !ok {
		return "❌ Video not found in the current feed"
	}

	if h.playlists.ToggleWatchLater(v) {
		return fmt.Sprintf("🕒 Added to watch later: %s", v.Title)
	}
	return fmt.Sprintf("✅ Removed from watch later: %s", v.Title)
}

func (h *Handler) status() string {
	var text strings.Builder
	fmt.Fprintf(&text, "📊 Bot Status:\n\nSubscriptions: %d\nFilters: %d\nWatch later: %d\n",
		h.subscriptions.Len(), h.filters.Len(), len(h.playlists.Items(playlistDomain.WatchLater)))

	if res, ok := h.feedService.Latest(); ok {
		fmt.Fprintf(&text, "Feed: %d videos (generation %d, %s)\n",
			len(res.Feed), res.Generation, res.GeneratedAt.Format("2006-01-02 15:04:05"))
		if msg := res.Errors.Message(); msg != "" {
			fmt.Fprintf(&text, "Last errors: %s\n", msg)
		}
	} else {
		text.WriteString("Feed: not generated yet\n")
	}

	fmt.Fprintf(&text, "Update Interval: %d seconds\nHTTP Port: %s\nStorage: %s",
		h.cfg.UpdateInterval, h.cfg.HTTPPort, h.cfg.StoragePath)
	return text.String()
}
