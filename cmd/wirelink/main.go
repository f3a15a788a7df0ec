package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"wirelink/internal/app"
	"wirelink/internal/config"
)

var (
	configFile = flag.String("config", "configs/wirelink.yaml", "config file path")
	logLevel   = flag.String("log-level", "", "log level (overrides config)")
	watch      = flag.Bool("watch", false, "reload configuration on file changes")
)

func main() {
	flag.Parse()

	// Load config
	cfg, err := config.NewLoader(*configFile).Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	level := cfg.Wirelink.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	setupLogging(level, cfg.Wirelink.Logging.Format)

	// Create server
	server, err := app.NewServer(cfg, slog.Default())
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Setup signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start server
	if err := server.Start(ctx); err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	// Optionally watch the config file. Connection settings require a
	// restart; the watcher only reports changes.
	if *watch {
		watcher, err := config.NewWatcher(*configFile, &config.WatcherConfig{
			DebounceDuration: 500 * time.Millisecond,
			OnChange: func(newCfg *config.Config) error {
				slog.Info("configuration changed, restart to apply connection settings")
				return nil
			},
			OnError: func(err error) {
				slog.Error("config reload failed", "error", err)
			},
		}, slog.Default())
		if err != nil {
			slog.Error("failed to create config watcher", "error", err)
			os.Exit(1)
		}
		watcher.Start()
		defer watcher.Stop()
	}

	// Wait for shutdown signal
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		slog.Error("failed to stop server", "error", err)
		os.Exit(1)
	}
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func setupLogging(level, format string) {
	lvl := logLevels[strings.ToLower(level)]

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
