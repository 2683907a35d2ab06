// Package app wires the fixtureplay UI server: storage, the renderer hub,
// the connection manager, liveness rounds, the plugin registry and HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/fixtureplay/internal/builtin"
	"github.com/ayusman/fixtureplay/internal/config"
	"github.com/ayusman/fixtureplay/internal/connection"
	"github.com/ayusman/fixtureplay/internal/liveness"
	"github.com/ayusman/fixtureplay/internal/metrics"
	"github.com/ayusman/fixtureplay/internal/plugin"
	"github.com/ayusman/fixtureplay/internal/server"
	"github.com/ayusman/fixtureplay/internal/store"
	"github.com/ayusman/fixtureplay/internal/transport"
)

// Health check limits.
const (
	dbPingTimeout     = time.Second
	maxGoroutines     = 10000
	readinessInterval = 10 * time.Second
)

// App is the composed UI server.
type App struct {
	cfg       config.Config
	log       *zap.Logger
	store     *store.Store
	hub       *transport.Hub
	manager   *connection.Manager
	scheduler *liveness.Scheduler
	registry  *plugin.Registry
	server    *server.Server
}

// New opens storage and builds every component. Nothing runs until Run.
func New(cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	hub := transport.NewHub(transport.HubConfig{Logger: log, Metrics: m})
	mgr := connection.NewManager(hub, connection.Config{
		MaxRenderers:    cfg.Renderers.Max,
		MaxMissedRounds: cfg.Liveness.MaxMissedRounds,
		Logger:          log,
		Metrics:         m,
	})
	sched := liveness.New(mgr, hub, liveness.Config{
		PingInterval: cfg.Liveness.PingInterval,
		Logger:       log,
		Metrics:      m,
	})

	reg := plugin.NewRegistry()
	deps := builtin.Deps{Manager: mgr, Store: st, Namespace: cfg.Storage.Namespace, Logger: log}
	opts := builtin.Options{Disabled: cfg.Plugins.Disabled, SlotOrder: cfg.Plugins.SlotOrders()}
	if err := builtin.Install(reg, deps, opts); err != nil {
		st.Close()
		return nil, fmt.Errorf("install plugins: %w", err)
	}

	health := healthcheck.NewMetricsHandler(promReg, "fixtureplay")
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	health.AddReadinessCheck("database",
		healthcheck.Async(healthcheck.DatabasePingCheck(st.DB(), dbPingTimeout), readinessInterval))

	srv := server.New(server.Config{
		StaticDir:    cfg.Server.StaticDir,
		Renderers:    hub,
		Connected:    hub.Connected,
		Manager:      mgr,
		Registry:     reg,
		Metrics:      promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		Health:       health,
		RendererURLs: cfg.RendererURL,
		Mode:         cfg.Mode,
		Logger:       log,
	})

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		hub:       hub,
		manager:   mgr,
		scheduler: sched,
		registry:  reg,
		server:    srv,
	}, nil
}

// Handler returns the HTTP handler of the UI server.
func (a *App) Handler() http.Handler { return a.server }

// Manager returns the connection manager.
func (a *App) Manager() *connection.Manager { return a.manager }

// Registry returns the plugin registry.
func (a *App) Registry() *plugin.Registry { return a.registry }

// Run serves until ctx is done or a component fails. It returns nil on a
// clean shutdown.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting",
		zap.String("addr", a.cfg.Server.Addr),
		zap.String("store", a.store.Path()),
		zap.Duration("ping_interval", a.scheduler.Interval()),
		zap.Strings("plugins", a.registry.Plugins()))

	g, ctx := a.start(ctx)
	g.Go(func() error {
		return a.server.Run(ctx, a.cfg.Server.Addr)
	})
	return wait(g)
}

// Serve runs the dispatch loop and liveness rounds without an HTTP listener,
// for callers that mount Handler themselves.
func (a *App) Serve(ctx context.Context) error {
	g, _ := a.start(ctx)
	return wait(g)
}

func (a *App) start(ctx context.Context) (*errgroup.Group, context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.hub.Dispatch(ctx, a.manager.Handle)
	})
	g.Go(func() error {
		return a.scheduler.Run(ctx)
	})
	return g, ctx
}

func wait(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close unloads plugins and releases the hub and store.
func (a *App) Close() error {
	a.registry.Reset()
	return errors.Join(a.hub.Close(), a.store.Close())
}
