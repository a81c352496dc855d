// Package observability provides Prometheus metrics functionality for
// monitoring the audio engine.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/conf"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/logging"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/observability/metrics"
)

// Endpoint serves the engine's Prometheus metrics over HTTP.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	registry      *prometheus.Registry
	Engine        *metrics.EngineMetrics
	logger        *slog.Logger
}

// NewEndpoint creates a metrics endpoint with its own registry and an
// EngineMetrics instance registered on it. Returns an error when metrics are
// disabled in settings.
func NewEndpoint(settings *conf.Settings) (*Endpoint, error) {
	if !settings.Metrics.Enabled {
		return nil, fmt.Errorf("metrics not enabled in settings")
	}

	registry := prometheus.NewRegistry()
	engineMetrics, err := metrics.NewEngineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register engine metrics: %w", err)
	}

	logger := logging.ForService("observability")
	if logger == nil {
		logger = slog.Default()
	}

	return &Endpoint{
		listenAddress: settings.Metrics.Listen,
		registry:      registry,
		Engine:        engineMetrics,
		logger:        logger,
	}, nil
}

// Start runs the HTTP server until quitChan closes.
func (e *Endpoint) Start(wg *sync.WaitGroup, quitChan <-chan struct{}) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))

	e.server = &http.Server{
		Addr:        e.listenAddress,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.logger.Info("metrics endpoint listening", "address", e.listenAddress)
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.logger.Error("metrics endpoint failed", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-quitChan
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.server.Shutdown(ctx); err != nil {
			e.logger.Error("metrics endpoint shutdown failed", "error", err)
		}
	}()
}
