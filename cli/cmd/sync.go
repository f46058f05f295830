package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/billsync/adapter"
	"github.com/pithecene-io/billsync/adapter/redis"
	"github.com/pithecene-io/billsync/adapter/webhook"
	"github.com/pithecene-io/billsync/cli/config"
	"github.com/pithecene-io/billsync/cli/render"
	"github.com/pithecene-io/billsync/cli/tui"
	"github.com/pithecene-io/billsync/client"
	"github.com/pithecene-io/billsync/history"
	"github.com/pithecene-io/billsync/log"
	"github.com/pithecene-io/billsync/metrics"
	"github.com/pithecene-io/billsync/session"
	"github.com/pithecene-io/billsync/types"
)

// Exit codes for sync. Other commands use exitInvalidUsage for bad input.
const (
	exitCompleted    = 0
	exitFailed       = 1
	exitCancelled    = 2
	exitInvalidUsage = 3
)

// postSyncTimeout bounds history recording and notification after the
// stream ends, including after an interrupt.
const postSyncTimeout = 30 * time.Second

// SyncCommand returns the sync command.
// This is the only command that contacts the sync server.
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Synchronize supplier bills for a property and stream progress",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "property",
				Aliases: []string{"p"},
				Usage:   "Property ID to synchronize (required unless set in config)",
			},
			&cli.StringFlag{
				Name:  "sync-id",
				Usage: "Correlation ID for this sync (default: random UUID)",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress progress and result output",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
			},
			// Server flags
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "Sync API base URL",
				EnvVars: []string{"BILLSYNC_BASE_URL"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Bearer token for the sync API",
				EnvVars: []string{"BILLSYNC_TOKEN"},
			},
			&cli.DurationFlag{
				Name:  "cancel-timeout",
				Usage: "Upper bound on the out-of-band cancel request",
			},
			// History flags
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Do not record this sync in history",
			},
			// Adapter flags
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Completion notification adapter: webhook or redis",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Webhook endpoint or Redis URL",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis channel (may contain {property_id})",
			},
			&cli.DurationFlag{
				Name:  "adapter-timeout",
				Usage: "Per-attempt notification timeout",
			},
			&cli.IntFlag{
				Name:  "adapter-retries",
				Usage: "Notification retry attempts",
			},
		}, HistoryFlags()...),
		Action: syncAction,
	}
}

// syncOptions is the resolved sync configuration: flags over config file
// over defaults.
type syncOptions struct {
	meta          types.SyncMeta
	baseURL       string
	token         string
	cancelTimeout time.Duration
	// history is nil when recording is disabled.
	history  *history.Config
	adapter  adapterChoice
	logLevel string
	quiet    bool
	tui      bool
}

// adapterChoice holds parsed notification adapter configuration.
type adapterChoice struct {
	kind    string // "", "webhook" or "redis"
	url     string
	channel string
	headers map[string]string
	timeout time.Duration
	retries *int
}

func syncAction(c *cli.Context) error {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidUsage)
	}

	opts, err := resolveSyncOptions(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidUsage)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidUsage)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runSync(ctx, opts, r, os.Stderr)
}

// resolveSyncOptions merges flags over the config file.
func resolveSyncOptions(c *cli.Context, cfg *config.Config) (*syncOptions, error) {
	opts := &syncOptions{
		meta: types.SyncMeta{
			SyncID:     c.String("sync-id"),
			PropertyID: stringOpt(c, "property", cfg.Property),
		},
		baseURL:       stringOpt(c, "base-url", cfg.API.BaseURL),
		token:         stringOpt(c, "token", cfg.API.Token),
		cancelTimeout: durationOpt(c, "cancel-timeout", cfg.API.CancelTimeout.Duration),
		logLevel:      stringOpt(c, "log-level", cfg.LogLevel),
		quiet:         c.Bool("quiet"),
		tui:           c.Bool("tui"),
	}
	if opts.meta.SyncID == "" {
		opts.meta.SyncID = session.NewSyncID()
	}
	if opts.meta.PropertyID == "" {
		return nil, errors.New("--property is required (or set property in the config file)")
	}
	if opts.baseURL == "" {
		return nil, errors.New("--base-url is required (or set api.base_url in the config file)")
	}
	if opts.logLevel == "" {
		opts.logLevel = "info"
	}
	if opts.tui && opts.quiet {
		return nil, errors.New("--tui and --quiet cannot be combined")
	}

	if !c.Bool("no-history") {
		hc, err := resolveHistoryConfig(c, cfg)
		if err != nil {
			return nil, err
		}
		// Recording is opt-in: no path means no history
		if hc.Path != "" {
			opts.history = &hc
		}
	}

	opts.adapter = adapterChoice{
		kind:    stringOpt(c, "adapter", cfg.Adapter.Type),
		url:     stringOpt(c, "adapter-url", cfg.Adapter.URL),
		channel: stringOpt(c, "adapter-channel", cfg.Adapter.Channel),
		headers: cfg.Adapter.Headers,
		timeout: durationOpt(c, "adapter-timeout", cfg.Adapter.Timeout.Duration),
		retries: cfg.Adapter.Retries,
	}
	if c.IsSet("adapter-retries") {
		retries := c.Int("adapter-retries")
		opts.adapter.retries = &retries
	}
	if err := validateAdapterChoice(opts.adapter); err != nil {
		return nil, err
	}

	return opts, nil
}

// resolveHistoryConfig merges history flags over the config file.
// The returned Path may be empty.
func resolveHistoryConfig(c *cli.Context, cfg *config.Config) (history.Config, error) {
	hc := history.Config{
		Backend:      stringOpt(c, "history-backend", cfg.History.Backend),
		Path:         stringOpt(c, "history-path", cfg.History.Path),
		Region:       stringOpt(c, "history-s3-region", cfg.History.Region),
		Endpoint:     stringOpt(c, "history-s3-endpoint", cfg.History.Endpoint),
		UsePathStyle: cfg.History.S3PathStyle || c.Bool("history-s3-path-style"),
	}
	if hc.Backend == "" {
		hc.Backend = history.BackendFS
	}
	if hc.Backend != history.BackendFS && hc.Backend != history.BackendS3 {
		return hc, fmt.Errorf("invalid history backend %q (must be fs or s3)", hc.Backend)
	}
	return hc, nil
}

func validateAdapterChoice(a adapterChoice) error {
	switch a.kind {
	case "":
		return nil
	case "webhook", "redis":
		if a.url == "" {
			return fmt.Errorf("--adapter-url is required for the %s adapter", a.kind)
		}
		if a.retries != nil && *a.retries < 0 {
			return fmt.Errorf("--adapter-retries must be >= 0, got %d", *a.retries)
		}
		return nil
	default:
		return fmt.Errorf("invalid adapter %q (must be webhook or redis)", a.kind)
	}
}

// buildAdapter creates the configured notification adapter, or nil.
func buildAdapter(a adapterChoice) (adapter.Adapter, error) {
	switch a.kind {
	case "":
		return nil, nil
	case "webhook":
		retries := webhook.DefaultRetries
		if a.retries != nil {
			retries = *a.retries
		}
		return webhook.New(webhook.Config{
			URL:     a.url,
			Headers: a.headers,
			Timeout: a.timeout,
			Retries: retries,
		})
	case "redis":
		retries := redis.DefaultRetries
		if a.retries != nil {
			retries = *a.retries
		}
		return redis.New(redis.Config{
			URL:     a.url,
			Channel: a.channel,
			Timeout: a.timeout,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter: %s", a.kind)
	}
}

// runSync runs one sync session end to end: stream, record, notify, render.
// Returns nil for a completed sync and a cli.ExitCoder otherwise.
func runSync(ctx context.Context, opts *syncOptions, r *render.Renderer, stderr io.Writer) error {
	logger := log.NewLoggerWithLevel(&opts.meta, stderr, opts.logLevel)
	defer func() { _ = logger.Sync() }()

	var store *history.Store
	backend := ""
	if opts.history != nil {
		var err error
		store, err = history.Open(ctx, *opts.history)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to open history: %v", err), exitInvalidUsage)
		}
		backend = store.Backend()
	}
	collector := metrics.NewCollector(opts.meta.SyncID, opts.meta.PropertyID, backend)

	notifier, err := buildAdapter(opts.adapter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create adapter: %v", err), exitInvalidUsage)
	}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
	}

	api, err := client.New(client.Config{BaseURL: opts.baseURL, Token: opts.token})
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidUsage)
	}

	sessOpts := []session.Option{
		session.WithLogger(logger),
		session.WithCollector(collector),
		session.WithCancelTimeout(opts.cancelTimeout),
	}
	var printer *progressPrinter
	if !opts.quiet && !opts.tui {
		printer = newProgressPrinter(stderr, progressInterval)
		sessOpts = append(sessOpts, session.WithDiagnosticHandler(printer.Diagnostic))
	}
	sess := session.New(opts.meta, api, sessOpts...)

	var view *tui.Progress
	switch {
	case opts.tui:
		view = tui.StartProgress(opts.meta, sess.Cancel)
		sess.Subscribe(view.Update)
	case printer != nil:
		fmt.Fprintf(stderr, "sync %s started for property %s\n", opts.meta.SyncID, opts.meta.PropertyID)
		sess.Subscribe(printer.Snapshot)
	}

	result, err := sess.Run(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("sync could not start: %v", err), exitInvalidUsage)
	}
	if view != nil {
		if err := view.Finish(result); err != nil {
			logger.Warn("progress view failed", map[string]any{"error": err.Error()})
		}
	}

	// The stream is over; finish bookkeeping even after an interrupt
	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postSyncTimeout)
	defer cancel()

	historyPath := ""
	if store != nil {
		if err := store.Record(postCtx, result); err != nil {
			collector.IncHistoryWriteFailure()
			logger.Error("failed to record sync history", map[string]any{"error": err.Error()})
		} else {
			collector.IncHistoryWriteSuccess()
			historyPath = store.Location()
		}
	}

	if notifier != nil {
		if err := notifier.Publish(postCtx, adapter.NewSyncCompletedEvent(result, historyPath)); err != nil {
			collector.IncNotifyFailure()
			logger.Error("failed to publish sync notification", map[string]any{"error": err.Error()})
		} else {
			collector.IncNotifySuccess()
		}
	}

	logger.Debug("sync metrics", collector.Snapshot().Fields())

	if !opts.quiet && !opts.tui {
		if err := r.Render(result); err != nil {
			return fmt.Errorf("failed to render result: %w", err)
		}
	}

	return exitFor(result.State)
}

// exitFor maps a terminal state to the command's return value.
func exitFor(state types.SessionState) error {
	switch state {
	case types.StateCompleted:
		return nil
	case types.StateCancelled:
		return cli.Exit("", exitCancelled)
	default:
		return cli.Exit("", exitFailed)
	}
}

// stringOpt returns the flag value when set, else fallback when non-empty,
// else the flag's default (which includes EnvVars).
func stringOpt(c *cli.Context, name, fallback string) string {
	if c.IsSet(name) || fallback == "" {
		return c.String(name)
	}
	return fallback
}

// durationOpt returns the flag value when set, else fallback.
func durationOpt(c *cli.Context, name string, fallback time.Duration) time.Duration {
	if c.IsSet(name) {
		return c.Duration(name)
	}
	return fallback
}
