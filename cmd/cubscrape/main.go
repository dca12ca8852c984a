package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cubscrape",
		Short:         "Resolve game records and video mentions into a browsable catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(collectCmd())
	root.AddCommand(importCmd())
	root.AddCommand(resolveCmd())
	root.AddCommand(queryCmd())
	root.AddCommand(showCmd())
	root.AddCommand(staleCmd())
	root.AddCommand(requestsCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func collectCmd() *cobra.Command {
	var sources []string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run collectors and store what they find",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context(), sources)
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "specific sources to collect (youtube, import)")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file-or-dir>...",
		Short: "Import fetcher output from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), args)
		},
	}
}

func resolveCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "resolve",
		Aliases: []string{"rebuild"},
		Short:   "Rebuild the catalog snapshot from stored records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the rebuild report as JSON")
	return cmd
}

func queryCmd() *cobra.Command {
	var (
		flags      queryFlags
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List games from the current snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), flags.request(), jsonOutput)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.Platform, "platform", "", "steam, itch or crazygames")
	f.IntVar(&flags.Rating, "rating", 0, "minimum review percentage")
	f.StringSliceVar(&flags.Tags, "tag", nil, "tags to match")
	f.StringVar(&flags.TagLogic, "tag-logic", "", "and or or")
	f.StringSliceVar(&flags.Channels, "channel", nil, "channels to match")
	f.StringVar(&flags.ChannelLogic, "channel-logic", "", "and or or")
	f.StringVar(&flags.PriceMin, "price-min", "", "minimum price")
	f.StringVar(&flags.PriceMax, "price-max", "", "maximum price")
	f.StringVar(&flags.TimeRange, "time-range", "", "video recency: day, week, month, quarter or year")
	f.StringVar(&flags.Search, "search", "", "name search")
	f.BoolVar(&flags.HiddenGems, "hidden-gems", false, "only well rated games with few videos")
	f.BoolVar(&flags.CrossPlatform, "cross-platform", false, "only games on more than one platform")
	f.BoolVar(&flags.IncludeAbsorbed, "include-absorbed", false, "include absorbed entities")
	f.StringVar(&flags.Sort, "sort", "", "sort field (date, rating, reviews, videos, price, name, release) or preset")
	f.StringVar(&flags.Order, "order", "", "asc or desc")
	f.IntVar(&flags.Limit, "limit", 25, "max games to show")
	f.IntVar(&flags.Offset, "offset", 0, "skip this many games")
	f.BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func showCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <key>",
		Short: "Show one game card and its videos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func staleCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List Steam records due for a refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStale(cmd.Context(), limit, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "max records to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func requestsCmd() *cobra.Command {
	var (
		all        bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List records the last rebuilds asked the fetchers for",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequests(cmd.Context(), all, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include requests already fetched")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the current snapshot over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
