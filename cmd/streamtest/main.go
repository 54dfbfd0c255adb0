// streamtest connects to an iKommunicate and prints every tagged delta to the
// console.
// Usage: go run ./cmd/streamtest -ip 192.168.1.50 [-port 80] [-verbose]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/ikommunicate-connector/internal/connection"
	"github.com/rickgao/ikommunicate-connector/internal/host"
	"github.com/rickgao/ikommunicate-connector/internal/plugin"
)

func main() {
	ip := flag.String("ip", "", "iKommunicate IP address or hostname")
	port := flag.Int("port", plugin.DefaultPort, "iKommunicate HTTP port")
	retry := flag.Duration("retry", connection.DefaultConfig().RetryInterval, "reconnect interval")
	verbose := flag.Bool("verbose", false, "print full delta JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	opts := plugin.Options{IPAddress: *ip, Port: *port}
	if err := opts.Validate(); err != nil {
		logger.Error("invalid options", "error", err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := host.New(plugin.ID, logger, host.NewConsoleSink(os.Stdout, *verbose, logger))

	cfg := connection.DefaultConfig()
	cfg.RetryInterval = *retry

	conn := connection.NewConnector(cfg, app, connection.WithLogger(logger))
	if err := conn.Start(context.Background(), opts); err != nil {
		logger.Error("failed to start connector", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := app.Status()
				logger.Info("stats",
					"state", conn.State(),
					"status", st.Message,
					"deltas", app.Counts()[plugin.ID],
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop", "url", conn.URL())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down...")
	if err := conn.Stop(shutdownCtx); err != nil {
		logger.Warn("connector stop", "error", err)
	}
	logger.Info("shutdown complete")
}
