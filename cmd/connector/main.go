// connector runs the iKommunicate connector as a standalone process: it keeps
// a connection to the gateway, logs provider status, optionally archives
// every delta to TimescaleDB and serves /health, /plugin and metrics.
//
// Usage: connector -config configs/connector.example.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/ikommunicate-connector/internal/config"
	"github.com/rickgao/ikommunicate-connector/internal/connection"
	"github.com/rickgao/ikommunicate-connector/internal/database"
	"github.com/rickgao/ikommunicate-connector/internal/host"
	"github.com/rickgao/ikommunicate-connector/internal/metrics"
	"github.com/rickgao/ikommunicate-connector/internal/plugin"
	"github.com/rickgao/ikommunicate-connector/internal/router"
	"github.com/rickgao/ikommunicate-connector/internal/version"
	"github.com/rickgao/ikommunicate-connector/internal/writer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "configs/connector.example.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting connector",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("connector failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connector stopped")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg *config.ConnectorConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app := host.New(plugin.ID, logger)

	opts := plugin.Options{
		IPAddress: cfg.Gateway.IPAddress,
		Port:      cfg.Gateway.Port,
	}
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("plugin options: %w", err)
	}

	// Optional archive: router -> buffer -> writer -> signalk_values.
	var (
		archivePing host.Pinger
		rtr         *router.Router
		vw          *writer.ValueWriter
	)
	if cfg.Archive.Enabled {
		db := cfg.Archive.Database
		logger.Info("connecting to archive database",
			"host", db.Host,
			"port", db.Port,
			"database", db.Name,
		)
		pool, err := database.Connect(ctx, db)
		if err != nil {
			return fmt.Errorf("connect archive database: %w", err)
		}
		defer pool.Close()

		if err := writer.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		archivePing = pool

		am := metrics.NewArchive(reg)
		rtr = router.NewRouter(router.RouterConfig{
			Instance:      cfg.Instance.ID,
			BufferSize:    cfg.Archive.BufferSize,
			MaxBufferSize: cfg.Archive.MaxBufferSize,
		}, am, logger.With("component", "router"))
		vw = writer.NewValueWriter(writer.WriterConfig{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
		}, rtr.Buffer(), pool, am, logger.With("component", "writer"))

		app.AddSink(rtr)
		logger.Info("archive enabled")
	}

	conn := connection.NewConnector(
		connectionConfig(cfg.Connection),
		app,
		connection.WithMetrics(metrics.NewConnector(reg)),
		connection.WithLogger(logger.With("component", "connection")),
	)

	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/", host.Handler(app, archivePing))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server",
			"port", cfg.Metrics.Port,
			"metrics_path", cfg.Metrics.Path,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// The writer and connector outlive gctx; they are stopped explicitly
	// below, connector first, so no delta races the writer's final flush.
	if vw != nil {
		if err := vw.Start(context.Background()); err != nil {
			return fmt.Errorf("start writer: %w", err)
		}
	}

	if err := conn.Start(context.Background(), opts); err != nil {
		return fmt.Errorf("start connector: %w", err)
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := conn.Stop(shutdownCtx); err != nil {
			logger.Warn("connector stop", "error", err)
		}
		if rtr != nil {
			rtr.Close()
		}
		if vw != nil {
			if err := vw.Stop(shutdownCtx); err != nil {
				logger.Warn("writer stop", "error", err)
			}
		}
		return server.Shutdown(shutdownCtx)
	})

	logger.Info("connector running",
		"url", conn.URL(),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	return g.Wait()
}

func connectionConfig(c config.ConnectionConfig) connection.Config {
	return connection.Config{
		RetryInterval:      c.RetryInterval,
		RetryOnDialFailure: c.RetryOnDialFailure,
		Client: connection.ClientConfig{
			Subprotocol:      connection.Subprotocol,
			HandshakeTimeout: c.HandshakeTimeout,
			PingInterval:     c.PingInterval,
			PingTimeout:      c.PingTimeout,
			WriteTimeout:     c.WriteTimeout,
			BufferSize:       c.BufferSize,
		},
	}
}
