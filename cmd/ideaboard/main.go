// Command ideaboard is the terminal client for the ideaboard notification
// service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/ideaboard/internal/api"
	"github.com/nhle/ideaboard/internal/app"
	"github.com/nhle/ideaboard/internal/credential"
	"github.com/nhle/ideaboard/internal/logging"
	"github.com/nhle/ideaboard/internal/metrics"
	"github.com/nhle/ideaboard/internal/model"
	"github.com/nhle/ideaboard/internal/notify"
	"github.com/nhle/ideaboard/internal/realtime"
	"github.com/nhle/ideaboard/internal/store"
	uiconfig "github.com/nhle/ideaboard/internal/ui/config"
	appsync "github.com/nhle/ideaboard/internal/sync"
)

const usage = `usage: ideaboard [flags] [setup|login|logout]

Without a command the notification inbox opens.

  setup    edit and test connection settings, then write the config file
  login    store an API token in the system keyring
  logout   remove the stored API token

flags:
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "ideaboard:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("ideaboard", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	configPath := fs.StringP("config", "c", model.DefaultConfigPath(), "path to the config file")
	token := fs.String("token", "", "API token (overrides the keyring and config)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	switch fs.Arg(0) {
	case "":
	case "setup":
		return setup(*configPath)
	case "login":
		return login()
	case "logout":
		if err := credential.Delete(credential.TokenKey); err != nil && !errors.Is(err, credential.ErrNotFound) {
			return fmt.Errorf("removing token: %w", err)
		}
		fmt.Println("API token removed.")
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", fs.Arg(0))
	}

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	if *token == "" {
		*token = cfg.API.Token
	}
	apiToken, err := credential.Default.Token(*token)
	if err != nil {
		logger.WithError(err).Warn("reading API token from keyring")
	}

	return runInbox(cfg, apiToken, logger)
}

// runInbox wires the notification pipeline and runs the terminal UI until
// the user quits or the process is signalled.
func runInbox(cfg *model.AppConfig, token string, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	var metricsSrv *http.Server
	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		metricsSrv = serveMetrics(cfg.Metrics.Listen, reg, logger)
	}

	cache, err := openCache(ctx, cfg.Cache.Path)
	if err != nil {
		return err
	}
	defer cache.Close()

	st := notify.New(notify.Options{
		TombstoneTTL: cfg.Notifications.TombstoneTTL,
		Logger:       logger,
		Metrics:      m,
	})
	defer st.Close()

	records, tombstones, err := cache.LoadState(ctx)
	if err != nil {
		logger.WithError(err).Warn("loading notification cache, starting empty")
	} else {
		st.Hydrate(records, tombstones)
		logger.WithField("records", len(records)).Info("notification cache loaded")
	}

	client := api.NewClient(cfg.API.BaseURL, token, api.Options{
		Timeout:           cfg.API.Timeout,
		MaxRetries:        cfg.API.MaxRetries,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Logger:            logger,
	})

	poller := appsync.New(client, st, appsync.Options{
		PollInterval: cfg.Sync.PollInterval(),
		PageSize:     cfg.Sync.PageSize,
		Retries:      cfg.Sync.FetchRetries,
		Timeout:      cfg.API.Timeout,
		Cursors:      cache,
		Logger:       logger,
		Metrics:      m,
	})
	defer poller.Stop()

	dialer, closeDialer := newDialer(cfg.Realtime, token)
	defer closeDialer()

	channel := realtime.NewChannel(dialer, st, realtime.Options{
		InitialBackoff: cfg.Realtime.InitialBackoff,
		MaxBackoff:     cfg.Realtime.MaxBackoff,
		OnReconnect:    poller.RequestFullSync,
		Logger:         logger,
		Metrics:        m,
	})

	mutations := notify.NewMutations(st, client, notify.MutationOptions{
		Retries: cfg.Notifications.MutationRetries,
		Timeout: cfg.API.Timeout,
		Logger:  logger,
	})

	persister := appsync.NewPersister(st, cache, time.Second, logger)

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return channel.Run(gctx) })
	g.Go(func() error { return persister.Run(gctx) })

	program := tea.NewProgram(
		app.New(app.Deps{
			Store:     st,
			Mutations: mutations,
			Poller:    poller,
			Loader:    client,
			Logger:    logger,
		}),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, uiErr := program.Run()
	if errors.Is(uiErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		uiErr = nil
	}

	cancel()
	poller.Stop()
	if err := g.Wait(); err != nil {
		logger.WithError(err).Warn("saving notification cache on exit")
	}

	if metricsSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	if uiErr != nil {
		return fmt.Errorf("running UI: %w", uiErr)
	}
	return nil
}

// openCache opens the sqlite cache and drops tombstones that expired while
// the client was not running.
func openCache(ctx context.Context, path string) (*store.SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	cache, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}
	if _, err := cache.PurgeExpiredTombstones(ctx, time.Now()); err != nil {
		cache.Close()
		return nil, err
	}
	return cache, nil
}

// newDialer builds the push transport selected in cfg.
func newDialer(cfg model.RealtimeConfig, token string) (realtime.Dialer, func()) {
	if cfg.Transport == "redis" {
		d := realtime.NewRedisDialer(cfg.RedisAddr, cfg.RedisChannel)
		return d, func() { _ = d.Close() }
	}
	return &realtime.WebSocketDialer{
		URL:   cfg.URL,
		Token: func() string { return token },
	}, func() {}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger logrus.FieldLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics endpoint stopped")
		}
	}()
	return srv
}

// setup runs the connection settings screen and writes the result to
// configPath.
func setup(configPath string) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}

	validate := func(ctx context.Context, c model.AppConfig, token string) error {
		if token == "" {
			token, _ = credential.Default.Token(c.API.Token)
		}
		client := api.NewClient(c.API.BaseURL, token, api.Options{Timeout: c.API.Timeout})
		_, err := client.ListNotifications(ctx, "", 1)
		return err
	}
	save := func(c model.AppConfig, token string) error {
		if token != "" {
			if err := credential.Set(credential.TokenKey, token); err != nil {
				return fmt.Errorf("saving token: %w", err)
			}
		}
		return model.SaveConfig(configPath, &c)
	}

	final, err := tea.NewProgram(uiconfig.New(*cfg, validate, save, 80, 24)).Run()
	if err != nil {
		return fmt.Errorf("running setup: %w", err)
	}
	if m, ok := final.(uiconfig.Model); ok && m.Saved() {
		fmt.Printf("Settings written to %s.\n", configPath)
	}
	return nil
}

// login prompts for an API token and stores it in the system keyring.
func login() error {
	var token string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API token").
				Description("Stored in the system keyring.").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("token is required")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return fmt.Errorf("reading token: %w", err)
	}

	if err := credential.Set(credential.TokenKey, token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	fmt.Println("API token saved.")
	return nil
}
