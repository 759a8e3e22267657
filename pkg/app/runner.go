// Package app bootstraps a process around the state engine: logging, the
// global error handler, configuration, the optional journal and one of the
// event sources.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/client"
	"github.com/small-frappuccino/discordstate/pkg/config"
	"github.com/small-frappuccino/discordstate/pkg/entity"
	"github.com/small-frappuccino/discordstate/pkg/errutil"
	"github.com/small-frappuccino/discordstate/pkg/gateway"
	"github.com/small-frappuccino/discordstate/pkg/ipc"
	"github.com/small-frappuccino/discordstate/pkg/log"
	"github.com/small-frappuccino/discordstate/pkg/rest"
	"github.com/small-frappuccino/discordstate/pkg/storage"
	"github.com/small-frappuccino/discordstate/pkg/util"
)

const shutdownTimeout = 30 * time.Second

// TokenEnv is read when the config carries no token.
const TokenEnv = "DISCORDSTATE_TOKEN"

// Options selects the config file and per-run overrides.
type Options struct {
	ConfigPath string
	// JournalPath overrides the configured journal.
	JournalPath string
	// Pipe selects discord-ipc-N for RunIPC; negative scans all pipes.
	Pipe int
	// LogToFile writes logs under the platform log directory when the
	// config names none.
	LogToFile bool
	// Ready is called once the client is built and before events flow.
	Ready func(*client.Client)
}

// Bootstrap loads config and installs the logger and the error handler.
// The returned func flushes the log file.
func Bootstrap(opts Options) (config.Config, func(), error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if cfg.Log.Dir == "" && opts.LogToFile {
		cfg.Log.Dir = util.LogDir()
	}
	logger, err := log.SetupLogger(log.Options{Dir: cfg.Log.Dir, Level: cfg.Log.Level})
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("configure logger: %w", err)
	}
	if err := errutil.InitializeGlobalErrorHandler(logger.For(log.Error)); err != nil {
		return config.Config{}, nil, fmt.Errorf("initialize global error handler: %w", err)
	}
	return cfg, func() { _ = logger.Sync() }, nil
}

func openJournal(path string) (*storage.Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	if err := util.EnsureParentDir(path); err != nil {
		return nil, err
	}
	j := storage.NewJournal(path)
	if err := errutil.HandleOperation("open journal", j.Init); err != nil {
		return nil, err
	}
	return j, nil
}

func journalPath(cfg config.Config, opts Options) string {
	if opts.JournalPath != "" {
		return opts.JournalPath
	}
	return cfg.JournalPath
}

// Run connects to the configured gateway relay and keeps the cache in sync
// until ctx ends or the relay closes.
func Run(ctx context.Context, opts Options) error {
	started := time.Now()
	cfg, flush, err := Bootstrap(opts)
	if err != nil {
		return err
	}
	defer flush()

	if cfg.GatewayURL == "" {
		return errutil.HandleConfigError("validate", opts.ConfigPath, func() error {
			return fmt.Errorf("gateway_url is required")
		})
	}

	if cfg.Token == "" {
		token, loadErr := util.LoadEnvWithLocalBinFallback(TokenEnv)
		if loadErr != nil {
			log.ApplicationLogger().Warn("No token configured; entity REST actions are disabled", "err", loadErr)
		}
		cfg.Token = token
	}

	var httpClient entity.HTTP
	if cfg.Token != "" {
		rc, err := rest.New(cfg.Token)
		if err != nil {
			return err
		}
		httpClient = rc
	}

	journal, err := openJournal(journalPath(cfg, opts))
	if err != nil {
		return err
	}

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bot "+cfg.Token)
	}
	src, err := gateway.Dial(ctx, cfg.GatewayURL, header)
	if err != nil {
		if journal != nil {
			_ = journal.Close()
		}
		return err
	}
	defer src.Close()

	log.ApplicationLogger().Info("Gateway relay connected", "url", cfg.GatewayURL, "startup", time.Since(started).Round(time.Millisecond))
	return serve(ctx, cfg, opts, client.Options{HTTP: httpClient, Journal: journal}, src)
}

// Replay rebuilds the cache from a recorded journal and returns the client
// for inspection. The client is already closed.
func Replay(ctx context.Context, opts Options) (*client.Client, error) {
	cfg, flush, err := Bootstrap(opts)
	if err != nil {
		return nil, err
	}
	defer flush()

	path := journalPath(cfg, opts)
	if path == "" {
		path = util.DefaultJournalPath()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	journal, err := openJournal(path)
	if err != nil {
		return nil, err
	}
	defer journal.Close()

	c := client.New(cfg, client.Options{})
	if opts.Ready != nil {
		opts.Ready(c)
	}
	started := time.Now()
	if err := c.Run(ctx, gateway.NewJournalSource(journal)); err != nil {
		return c, err
	}
	log.ApplicationLogger().Info("Journal replayed", "path", path, "took", time.Since(started).Round(time.Millisecond))
	return c, shutdown(c)
}

// RunIPC connects to the local desktop client and feeds its DISPATCH frames
// to the store.
func RunIPC(ctx context.Context, opts Options) error {
	cfg, flush, err := Bootstrap(opts)
	if err != nil {
		return err
	}
	defer flush()

	journal, err := openJournal(journalPath(cfg, opts))
	if err != nil {
		return err
	}

	events := gateway.NewChanSource(256)
	tr, err := ipc.Connect(ctx, opts.Pipe, cfg.ClientID, events)
	if err != nil {
		if journal != nil {
			_ = journal.Close()
		}
		return err
	}
	defer tr.Close()

	transportErr := make(chan error, 1)
	go func() { transportErr <- tr.Run(ctx) }()

	if err := serve(ctx, cfg, opts, client.Options{Journal: journal}, events); err != nil {
		return err
	}
	select {
	case err := <-transportErr:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	default:
		return nil
	}
}

func serve(ctx context.Context, cfg config.Config, opts Options, copts client.Options, src gateway.Source) error {
	c := client.New(cfg, copts)
	if opts.Ready != nil {
		opts.Ready(c)
	}
	log.ApplicationLogger().Info("State engine running", "version", Version, "events", len(c.Store.Events()))

	runErr := c.Run(ctx, src)
	log.ApplicationLogger().Info("Stopping state engine")
	return errors.Join(runErr, shutdown(c))
}

func shutdown(c *client.Client) error {
	ctx, cancel := context.WithTimeoutCause(context.Background(), shutdownTimeout, fmt.Errorf("application shutdown"))
	defer cancel()
	if err := c.Close(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
