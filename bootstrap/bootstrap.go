// Package bootstrap wires configuration, storage, resources, sessions and
// the HTTP server into a running application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/artpar/pocket/adapters/auth"
	"github.com/artpar/pocket/adapters/clock"
	"github.com/artpar/pocket/adapters/filestore"
	"github.com/artpar/pocket/adapters/hasher"
	apihttp "github.com/artpar/pocket/adapters/http"
	"github.com/artpar/pocket/adapters/memory"
	"github.com/artpar/pocket/adapters/metrics"
	"github.com/artpar/pocket/adapters/postgres"
	"github.com/artpar/pocket/adapters/sqlite"
	"github.com/artpar/pocket/config"
	"github.com/artpar/pocket/core/events"
	"github.com/artpar/pocket/core/runtime"
	"github.com/artpar/pocket/core/storage"
	"github.com/artpar/pocket/core/users"
	"github.com/artpar/pocket/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// App is a wired application.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Adapter storage.Adapter
	Runtime *runtime.Runtime
	Users   *users.Manager
	Files   ports.FileStore
	Metrics *metrics.Collector

	// Handler serves the HTTP API; HTTPServer wraps it with the
	// configured address and timeouts.
	Handler    http.Handler
	HTTPServer *http.Server

	registry *prometheus.Registry
	clock    ports.Clock
}

// Option customizes New.
type Option func(*App)

// WithClock replaces the system clock (tokens, file timestamps, hooks).
func WithClock(c ports.Clock) Option {
	return func(a *App) { a.clock = c }
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	SetLogLevel(cfg.Level)

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// SetLogLevel sets the global level, keeping the current one when level
// does not parse.
func SetLogLevel(level string) {
	if l, err := zerolog.ParseLevel(level); err == nil && l != zerolog.NoLevel {
		zerolog.SetGlobalLevel(l)
	}
}

// OpenAdapter creates the storage adapter for cfg and waits until it is
// ready. The adapter is closed when it never becomes ready.
func OpenAdapter(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (storage.Adapter, error) {
	logger = logger.With().Str("driver", cfg.Driver).Logger()

	var adapter storage.Adapter
	switch cfg.Driver {
	case config.DriverMemory, "":
		adapter = memory.New(memory.Options{Logger: logger, ReadyTimeout: cfg.ReadyTimeout})
	case config.DriverSQLite:
		adapter = sqlite.NewDocuments(sqlite.Options{
			Path:         cfg.DSN,
			Logger:       logger,
			ReadyTimeout: cfg.ReadyTimeout,
		})
	case config.DriverPostgres:
		adapter = postgres.NewDocuments(postgres.Options{
			DSN:          cfg.DSN,
			TablePrefix:  cfg.TablePrefix,
			Logger:       logger,
			ReadyTimeout: cfg.ReadyTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	if err := adapter.Ready(ctx); err != nil {
		return nil, multierr.Append(fmt.Errorf("storage not ready: %w", err), adapter.Close())
	}
	logger.Info().Msg("storage ready")
	return adapter, nil
}

// New wires an application from cfg. Resources are registered only after
// the adapter is ready so unique indexes can be declared.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...Option) (*App, error) {
	a := &App{Config: cfg, Logger: logger, clock: clock.Real{}}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.wire(ctx); err != nil {
		return nil, multierr.Append(err, a.Close())
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) (err error) {
	cfg, logger := a.Config, a.Logger

	a.Adapter, err = OpenAdapter(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}

	var observer ports.Observer = ports.NopObserver{}
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.Metrics = metrics.NewWithRegistry(a.registry)
		observer = a.Metrics
	}

	bus := events.NewBus(logger)
	bus.Subscribe("*", func(ctx context.Context, e events.Event) error {
		logger.Debug().Str("event", e.Name).Int("count", e.Count).Msg("resource event")
		return nil
	})

	a.Runtime = runtime.New(a.Adapter, runtime.Config{Logger: logger, Observer: observer, Events: bus})
	RegisterHooks(a.Runtime, a.clock, logger)

	if cfg.Session.Secret == "" {
		logger.Warn().Msg("session.secret is empty, tokens will not survive a restart")
	}
	tokens := auth.NewTokenService(cfg.Session.Secret, cfg.Session.ExpiresIn, auth.WithClock(a.clock))
	a.Users, err = users.NewManager(a.Runtime, hasher.NewBcrypt(cfg.Hasher.BcryptCost), tokens, users.Config{
		AdminGroups:        cfg.Session.AdminGroups,
		ValidGroups:        cfg.Session.Groups,
		EnforceValidGroups: cfg.Session.EnforceValidGroups,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("init users: %w", err)
	}

	if cfg.Resources.Dir != "" {
		if err := a.Runtime.LoadDir(cfg.Resources.Dir); err != nil {
			return err
		}
		logger.Info().Strs("resources", a.Runtime.Names()).Msg("resources loaded")
	}

	if cfg.Files.Dir != "" {
		a.Files, err = filestore.NewLocal(cfg.Files.Dir, filestore.WithClock(a.clock), filestore.WithLogger(logger))
		if err != nil {
			return err
		}
	}

	routerOpts := apihttp.Options{
		Runtime:        a.Runtime,
		Users:          a.Users,
		Files:          a.Files,
		Metrics:        a.Metrics,
		MetricsPath:    cfg.Metrics.Path,
		AllowSignup:    cfg.Server.AllowSignup,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RequestTimeout: cfg.Server.WriteTimeout,
		Logger:         logger,
	}
	if a.registry != nil {
		routerOpts.MetricsHandler = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
	}
	a.Handler = apihttp.NewRouter(routerOpts)

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.Handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return nil
}

// Watch applies hot-reloadable settings from h and records reloads.
func (a *App) Watch(h *config.Holder) {
	h.OnChange(func(cfg *config.Config) {
		SetLogLevel(cfg.Logging.Level)
	})
	if a.Metrics != nil {
		h.OnReload(a.Metrics.ObserveReload)
	}
}

// Run serves HTTP until ctx is cancelled or the server fails, then shuts
// down gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return multierr.Append(fmt.Errorf("server error: %w", err), a.Close())
		}
	case <-ctx.Done():
		a.Logger.Info().Msg("shutting down")
	}
	return a.Shutdown()
}

// Shutdown stops the HTTP server, waiting for in-flight requests up to
// the configured timeout, then releases the storage adapter.
func (a *App) Shutdown() error {
	var err error
	if a.HTTPServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if serr := a.HTTPServer.Shutdown(ctx); serr != nil {
			err = multierr.Append(err, fmt.Errorf("http shutdown: %w", serr))
		}
	}
	err = multierr.Append(err, a.Close())

	if err != nil {
		a.Logger.Error().Err(err).Msg("shutdown finished with errors")
	} else {
		a.Logger.Info().Msg("shutdown complete")
	}
	return err
}

// Close releases the storage adapter.
func (a *App) Close() error {
	if a.Adapter == nil {
		return nil
	}
	adapter := a.Adapter
	a.Adapter = nil
	if err := adapter.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	return nil
}
