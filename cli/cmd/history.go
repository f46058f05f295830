package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/billsync/cli/config"
	"github.com/pithecene-io/billsync/cli/render"
	"github.com/pithecene-io/billsync/cli/tui"
	"github.com/pithecene-io/billsync/history"
)

// defaultListLimit caps history list output unless --limit is given.
const defaultListLimit = 20

// HistoryCommand returns the history command with subcommands.
// History commands are read-only and never contact the sync server.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Browse recorded syncs (list, inspect, stats)",
		Subcommands: []*cli.Command{
			historyListCommand(),
			historyInspectCommand(),
			historyStatsCommand(),
		},
	}
}

func historyListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List recorded syncs, most recent first",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "property",
				Aliases: []string{"p"},
				Usage:   "Only list syncs for this property",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of syncs to list (0 for all)",
				Value: defaultListLimit,
			},
		}, HistoryFlags()...),
		Action: historyListAction,
	}
}

func historyListAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for history list", exitInvalidUsage)
	}
	if c.Int("limit") < 0 {
		return cli.Exit("--limit must be >= 0", exitInvalidUsage)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidUsage)
	}

	store, err := openHistory(c)
	if err != nil {
		return err
	}

	summaries, err := store.List(c.Context, history.Filter{
		PropertyID: c.String("property"),
		Limit:      c.Int("limit"),
	})
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	if summaries == nil {
		summaries = []history.Summary{}
	}
	return r.Render(summaries)
}

func historyInspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show a recorded sync with its per-supplier progress",
		ArgsUsage: "<sync-id>",
		Flags:     HistoryFlags(),
		Action:    historyInspectAction,
	}
}

func historyInspectAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("sync-id required", exitInvalidUsage)
	}
	syncID := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidUsage)
	}

	store, err := openHistory(c)
	if err != nil {
		return err
	}

	result, err := store.Get(c.Context, syncID)
	if err != nil {
		if errors.Is(err, history.ErrSyncNotFound) {
			return cli.Exit(fmt.Sprintf("sync %s not found in %s", syncID, store.Location()), exitFailed)
		}
		return fmt.Errorf("failed to read history: %w", err)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectSync, result)
	}
	return r.Render(result)
}

func historyStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Summarize recorded sync outcomes",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "property",
				Aliases: []string{"p"},
				Usage:   "Only count syncs for this property",
			},
		}, HistoryFlags()...),
		Action: historyStatsAction,
	}
}

func historyStatsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidUsage)
	}

	store, err := openHistory(c)
	if err != nil {
		return err
	}

	propertyID := c.String("property")
	summaries, err := store.List(c.Context, history.Filter{PropertyID: propertyID})
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	stats := history.Summarize(propertyID, summaries)

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsHistory, &stats)
	}
	return r.Render(&stats)
}

// openHistory opens the history store from flags and the config file.
func openHistory(c *cli.Context) (*history.Store, error) {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitInvalidUsage)
	}
	hc, err := resolveHistoryConfig(c, cfg)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitInvalidUsage)
	}
	if hc.Path == "" {
		return nil, cli.Exit("--history-path is required (or set history.path in the config file)", exitInvalidUsage)
	}

	store, err := history.Open(c.Context, hc)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("failed to open history: %v", err), exitInvalidUsage)
	}
	return store, nil
}
