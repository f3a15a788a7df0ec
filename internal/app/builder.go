package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"wirelink/internal/config"
	"wirelink/internal/health"
	"wirelink/internal/metrics"
	"wirelink/internal/telemetry"
	"wirelink/pkg/conn"
)

// Builder builds the wirelink daemon
type Builder struct {
	config *config.Config
	logger *slog.Logger
}

// NewBuilder creates a new application builder
func NewBuilder(cfg *config.Config, logger *slog.Logger) *Builder {
	return &Builder{
		config: cfg,
		logger: logger,
	}
}

// Build constructs the daemon: telemetry first, then the connection
// manager registered into the telemetry's Prometheus registry, then the
// local HTTP surface with health and metrics endpoints.
func (b *Builder) Build() (*Server, error) {
	wl := &b.config.Wirelink

	tel, err := telemetry.New(telemetry.Config{
		Service: wl.Telemetry.ServiceName,
		Version: Version,
		Tracing: telemetry.TracingConfig{
			Enabled:    wl.Telemetry.Tracing.Enabled,
			Endpoint:   wl.Telemetry.Tracing.Endpoint,
			SampleRate: wl.Telemetry.Tracing.SamplingRate,
		},
		Metrics: telemetry.MetricsConfig{
			Enabled: wl.Telemetry.Metrics.Enabled,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating telemetry: %w", err)
	}

	connCfg := wl.Client.ToConnConfig()
	connCfg.Logger = b.logger.With("component", "conn")
	if reg := tel.Registry(); reg != nil {
		connCfg.Registerer = reg
	}

	manager, err := conn.New(connCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection manager: %w", err)
	}

	checker := health.NewChecker()
	checker.RegisterCheck("connection", health.ConnectionCheck(manager))
	if wl.Client.HeartbeatIntervalMs > 0 {
		// Three missed heartbeat intervals without traffic means trouble.
		maxIdle := 3 * time.Duration(wl.Client.HeartbeatIntervalMs) * time.Millisecond
		checker.RegisterCheck("activity", health.ActivityCheck(manager, maxIdle))
	}
	if wl.Client.Queue.MaxSize > 0 {
		checker.RegisterCheck("queue", health.QueueCheck(manager, wl.Client.Queue.MaxSize))
	}

	serviceID := fmt.Sprintf("wirelink-%d", time.Now().Unix())
	healthHandler := health.NewHandler(checker, Version, serviceID)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler.Health)
	mux.HandleFunc("/ready", healthHandler.Ready)
	mux.HandleFunc("/live", healthHandler.Live)
	if wl.Telemetry.Metrics.Enabled {
		mux.Handle(wl.Telemetry.Metrics.Path, metrics.Handler(tel.Registry()))
		b.logger.Info("Metrics enabled", "path", wl.Telemetry.Metrics.Path)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", wl.Server.Host, wl.Server.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(wl.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(wl.Server.WriteTimeout) * time.Second,
	}

	return &Server{
		config:    b.config,
		logger:    b.logger,
		manager:   manager,
		telemetry: tel,
		http:      httpServer,
	}, nil
}
