package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"MarketSim/internal/handler/api"
	"MarketSim/internal/handler/ws"
	"MarketSim/internal/usecase"
	"MarketSim/pkg/cache"
	pkgch "MarketSim/pkg/clickhouse"
	"MarketSim/pkg/config"
	xhttp "MarketSim/pkg/http"
	pkgkafka "MarketSim/pkg/kafka"
	"MarketSim/pkg/logger"
)

// Components are the long-lived pieces the App starts and stops. Consumer,
// Orders, Producer and CH are nil when their backend is disabled.
type Components struct {
	Simulator *usecase.Simulator
	Exporter  *usecase.TickExporter
	Hub       *ws.Hub
	API       *api.SimulationHandler
	Consumer  *pkgkafka.Consumer
	Orders    pkgkafka.MessageHandler
	Producer  *pkgkafka.Producer
	Cache     cache.Service
	CH        *pkgch.Client
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *logger.Logger
	c          Components
	httpServer *xhttp.Server
	cancel     context.CancelFunc
	simDone    chan struct{}
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *logger.Logger, c Components) *App {
	if l == nil {
		l = logger.Nop()
	}
	return &App{cfg: cfg, log: l, c: c}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start launches the exporter, the tick loop, the order consumer and the HTTP server.
func (a *App) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel

	if a.cfg.Logger.Digest.Enabled && a.c.Producer != nil {
		a.log.AddCollector(&logger.CollectionConfig{
			Interval:  a.cfg.Logger.Digest.Interval,
			MaxKeys:   a.cfg.Logger.Digest.MaxKeys,
			Topic:     a.cfg.Logger.Digest.Topic,
			Source:    a.c.Simulator.RunID(),
			Publisher: a.c.Producer,
		})
	}

	a.c.Exporter.Start(ctx)

	a.simDone = make(chan struct{})
	go func() {
		defer close(a.simDone)
		if err := a.c.Simulator.Run(ctx, a.cfg.Simulation.TickInterval); err != nil {
			a.log.Error("simulator stopped", logger.Error(err))
		}
	}()
	a.log.Info("simulation started",
		logger.String("run_id", a.c.Simulator.RunID()),
		logger.Uint64("seed", a.cfg.Simulation.Seed),
		logger.Duration("tick_interval", a.cfg.Simulation.TickInterval))

	if a.c.Consumer != nil && a.c.Orders != nil {
		a.c.Consumer.RegisterHandler(a.c.Orders)
		if err := a.c.Consumer.Start(); err != nil {
			cancel()
			return err
		}
		a.log.Info("kafka consumer started", logger.String("topic", a.c.Orders.Topic()))
	}

	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.log),
	}
	if a.c.CH != nil {
		opts = append(opts, xhttp.WithReadiness("clickhouse", a.c.CH.Health))
	}
	if a.c.Cache != nil {
		opts = append(opts, xhttp.WithReadiness("cache", func(ctx context.Context) error {
			_, err := a.c.Cache.Exists(ctx, "readyz")
			return err
		}))
	}
	if a.cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(a.cfg.Metrics.Path, prometheus.DefaultGatherer))
	} else {
		opts = append(opts, xhttp.WithMetrics("", nil))
	}
	a.httpServer = xhttp.NewServer(opts, handlers(a.c)...)
	return a.httpServer.Start()
}

// handlers drops nil entries so a typed nil never reaches the router.
func handlers(c Components) []xhttp.Handler {
	var out []xhttp.Handler
	if c.API != nil {
		out = append(out, c.API)
	}
	if c.Hub != nil {
		out = append(out, c.Hub)
	}
	return out
}

// Shutdown stops intake first, then the tick loop, then drains exports.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", logger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", logger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.cancel != nil {
		a.cancel()
	}
	if a.simDone != nil {
		<-a.simDone
	}
	a.c.Exporter.Wait()
	if a.c.Hub != nil {
		a.c.Hub.Close()
	}

	// The digest publishes through the producer the exporter closes.
	a.log.RemoveCollector()
	a.c.Exporter.Close()

	if a.c.Cache != nil {
		if err := a.c.Cache.Close(); err != nil {
			a.log.Warn("cache close error", logger.Error(err))
		}
	}
	if a.c.CH != nil {
		if err := a.c.CH.Close(); err != nil {
			a.log.Warn("clickhouse close error", logger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
