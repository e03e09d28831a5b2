// Package main provides the tubefeed command line client. It works on the
// same storage directory as the server.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/reshetovitsme/tubefeed/internal/di"
	feed "github.com/reshetovitsme/tubefeed/internal/modules/feed/domain"
	"github.com/reshetovitsme/tubefeed/internal/modules/feed/fetcher"
	feedService "github.com/reshetovitsme/tubefeed/internal/modules/feed/service"
	filter "github.com/reshetovitsme/tubefeed/internal/modules/filter/domain"
	filterService "github.com/reshetovitsme/tubefeed/internal/modules/filter/service"
	playlistService "github.com/reshetovitsme/tubefeed/internal/modules/playlist/service"
	subscription "github.com/reshetovitsme/tubefeed/internal/modules/subscription/domain"
	"github.com/reshetovitsme/tubefeed/internal/modules/subscription/opml"
	subscriptionService "github.com/reshetovitsme/tubefeed/internal/modules/subscription/service"
	"github.com/reshetovitsme/tubefeed/internal/shared/config"
	"github.com/samber/do/v2"
	"github.com/samber/lo"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries the global flags down to the subcommands.
type app struct {
	dir     string
	storage string
}

// open loads the configuration and builds the container the subcommands
// pull their collections from.
func (a *app) open(cmd *cobra.Command) (*config.Config, do.Injector, error) {
	cfg, err := config.LoadFrom(a.dir)
	if err != nil {
		return nil, nil, err
	}
	if a.storage != "" {
		cfg.StoragePath = a.storage
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: cfg.Level(),
	})))

	return cfg, di.SetupWith(cfg), nil
}

// newRootCmd creates the root command for tubefeed CLI.
func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "tubefeed",
		Short:        "Aggregate YouTube, PeerTube and LBRY channels into one feed",
		Long:         "tubefeed merges the recent videos of your subscriptions into a single feed, hiding the ones matched by your filters.",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.SetVersionTemplate("tubefeed version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&a.dir, "dir", "d", ".", "Directory holding .env and config.yaml")
	rootCmd.PersistentFlags().StringVarP(&a.storage, "storage", "s", "", "Storage directory (overrides storage_path)")

	rootCmd.AddCommand(newFeedCmd(a))
	rootCmd.AddCommand(newSubscriptionsCmd(a))
	rootCmd.AddCommand(newFiltersCmd(a))
	rootCmd.AddCommand(newPlaylistCmd(a))

	return rootCmd
}

// newFeedCmd creates the feed subcommand.
func newFeedCmd(a *app) *cobra.Command {
	var limit int
	var format string
	var partial bool

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Fetch and display the aggregated feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, injector, err := a.open(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("partial") {
				cfg.Aggregation.PartialResults = partial
			}
			if !cmd.Flags().Changed("limit") {
				limit = cfg.Feed.Limit
			}

			feeds, err := do.Invoke[*feedService.Service](injector)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			res := feeds.Generate(ctx)

			if err := writeFeed(cmd.OutOrStdout(), res, format, cfg.PublicURL(), limit); err != nil {
				return err
			}

			if msg := res.Errors.Message(); msg != "" {
				return oops.With("failed", res.Errors.Total()).Errorf("%s", msg)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of videos to display (0 for all)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, rss, atom, json)")
	cmd.Flags().BoolVar(&partial, "partial", false, "Keep the videos of reachable subscriptions when others fail")

	return cmd
}

func writeFeed(w io.Writer, res feedService.Result, format, baseURL string, limit int) error {
	var (
		body string
		err  error
	)
	switch format {
	case "text":
		for _, v := range res.Feed.Limit(limit) {
			fmt.Fprint(w, formatVideo(v))
		}
		return nil
	case "rss":
		body, err = feedService.BuildFeed(res, baseURL, limit).ToRss()
	case "atom":
		body, err = feedService.BuildFeed(res, baseURL, limit).ToAtom()
	case "json":
		body, err = feedService.BuildFeed(res, baseURL, limit).ToJSON()
	default:
		return oops.With("format", format).Errorf("unknown format %q: must be text, rss, atom or json", format)
	}
	if err != nil {
		return oops.With("format", format).Wrap(err)
	}
	_, err = fmt.Fprintln(w, body)
	return err
}

func formatVideo(v feed.Video) string {
	published := "          "
	if !v.Published.IsZero() {
		published = v.Published.Format("2006-01-02")
	}
	return fmt.Sprintf("%s  %-24s  %s\n            %s\n", published, feed.Truncate(v.Author(), 24), v.Title, v.URL)
}

// parseSubscriptionArgs accepts "<platform> <id>" or a single feed URL.
func parseSubscriptionArgs(args []string) (subscription.Subscription, error) {
	if len(args) == 1 {
		sub, ok := opml.FromFeedURL(args[0])
		if !ok {
			return subscription.Subscription{}, oops.With("url", args[0]).Errorf("not a YouTube, PeerTube or LBRY feed url")
		}
		return sub, nil
	}

	platform, err := subscription.ParsePlatform(args[0])
	if err != nil {
		return subscription.Subscription{}, oops.With("platform", args[0]).Wrap(err)
	}
	sub := subscription.New(platform, args[1])
	return sub, sub.Validate()
}

func newSubscriptionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscriptions",
		Aliases: []string{"subs"},
		Short:   "Manage subscriptions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List subscriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, injector, err := a.open(cmd)
			if err != nil {
				return err
			}
			group, err := do.Invoke[*subscriptionService.Group](injector)
			if err != nil {
				return err
			}

			for _, sub := range group.Snapshot() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s  %-40s  %s\n", sub.Platform, sub.ID, sub.Name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <platform> <id> | <feed-url>",
		Short: "Subscribe to a channel",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := parseSubscriptionArgs(args)
			if err != nil {
				return err
			}
			_, injector, err := a.open(cmd)
			if err != nil {
				return err
			}
			group, err := do.Invoke[*subscriptionService.Group](injector)
			if err != nil {
				return err
			}

			if !group.Add(sub) {
				fmt.Fprintf(cmd.OutOrStdout(), "Already subscribed to %s\n", sub)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Subscribed to %s\n", sub)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <platform> <id> | <feed-url>",
		Short: "Remove a subscription",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := parseSubscriptionArgs(args)
			if err != nil {
				return err
			}
			_, injector, err := a.open(cmd)
			if err != nil {
				return err
			}
			group, err := do.Invoke[*subscriptionService.Group](injector)
			if err != nil {
				return err
			}

			if !group.Remove(sub) {
				return oops.With("subscription", sub.String()).Errorf("not subscribed to %s", sub)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unsubscribed from %s\n", sub)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.opml>",
		Short: "Import subscriptions from an OPML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return oops.With("file", args[0]).Wrap(err)
			}
			defer f.Close()

			subs, err := opml.Parse(f)
			if err != nil {
				return oops.With("file", args[0]).Wrap(err)
			}

			_, injector, err := a.open(cmd)
			if err != nil {
				return err
			}
			group, err := do.Invoke[*subscriptionService.Group](injector)
			if err != nil {
				return err
			}

			added := lo.CountBy(subs, group.Add)
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d subscriptions\n", added, len(subs))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "export [file.opml]",
		Short: "Export subscriptions as OPML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, injector, err := a.open(cmd)
			if err != nil {
				return err
			}
			group, err := do.Invoke[*subscriptionService.Group](injector)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				f, err := os.Create(args[0])
				if err != nil {
					return oops.With("file", args[0]).Wrap(err)
				}
				defer f.Close()
				out = f
			}
			return opml.Write(out, "tubefeed subscriptions", group.Snapshot(), do.MustInvoke[*fetcher.Fetcher](injector))
		},
	})

	return cmd
}

func newFiltersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "Manage the filters hiding videos from the feed",
	}

	open := func(cmd *cobra.Command) (*filterService.Group, error) {
		_, injector, err := a.open(cmd)
		if err != nil {
			return nil, err
		}
		return do.Invoke[*filterService.Group](injector)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			group, err := open(cmd)
			if err != nil {
				return err
			}
			for i, f := range group.Snapshot() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, f)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <title-regex> [channel-regex]",
		Short: "Hide videos whose title and channel both match",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := newFilter(args)
			if err != nil {
				return err
			}
			group, err := open(cmd)
			if err != nil {
				return err
			}

			if !group.Add(f) {
				fmt.Fprintf(cmd.OutOrStdout(), "Filter already exists: %s\n", f)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Filter added: %s\n", f)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <title-regex> [channel-regex]",
		Short: "Remove a filter",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := newFilter(args)
			if err != nil {
				return err
			}
			group, err := open(cmd)
			if err != nil {
				return err
			}

			if !group.Remove(f) {
				return oops.With("filter", f.String()).Errorf("filter not found")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Filter removed: %s\n", f)
			return nil
		},
	})

	return cmd
}

// newFilter builds a filter from a title pattern and an optional channel
// pattern.
func newFilter(args []string) (*filter.EntryFilter, error) {
	channel := ""
	if len(args) > 1 {
		channel = args[1]
	}
	return filter.New(args[0], channel)
}

func newPlaylistCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playlist",
		Short: "Manage playlists",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list [name]",
		Short: "List playlists, or the videos of one playlist",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, injector, err := a.open(cmd)
			if err != nil {
				return err
			}
			manager, err := do.Invoke[*playlistService.Manager](injector)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				for _, name := range manager.Playlists() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (%d)\n", name, len(manager.Items(name)))
				}
				return nil
			}
			for _, v := range manager.Items(args[0]) {
				fmt.Fprint(cmd.OutOrStdout(), formatVideo(v))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <video-url>",
		Short: "Add a video of the current feed to a playlist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, url := strings.TrimSpace(args[0]), args[1]
			if name == "" {
				return oops.Errorf("playlist name must not be empty")
			}

			cfg, injector, err := a.open(cmd)
			if err != nil {
				return err
			}
			cfg.Aggregation.PartialResults = true

			manager, err := do.Invoke[*playlistService.Manager](injector)
			if err != nil {
				return err
			}
			feeds, err := do.Invoke[*feedService.Service](injector)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			v, ok := lo.Find(feeds.Generate(ctx).Feed, func(v feed.Video) bool {
				return v.URL == url
			})
			if !ok {
				return oops.With("url", url).Errorf("video not found in the current feed")
			}

			if !manager.Add(name, v) {
				fmt.Fprintf(cmd.OutOrStdout(), "%q is already in %s\n", v.Title, name)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %q to %s\n", v.Title, name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name> <video-url>",
		Short: "Remove a video from a playlist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, injector, err := a.open(cmd)
			if err != nil {
				return err
			}
			manager, err := do.Invoke[*playlistService.Manager](injector)
			if err != nil {
				return err
			}

			if !manager.Remove(args[0], feed.Video{URL: args[1]}) {
				return oops.With("playlist", args[0], "url", args[1]).Errorf("video not in playlist")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", args[1], args[0])
			return nil
		},
	})

	return cmd
}
