// Command broker runs an Aldrin bus: the broker event loop plus
// whichever transports are configured (WebSocket always, NATS when
// ALDRIN_NATS_URL is set), a Prometheus /metrics endpoint, and
// signal-driven graceful shutdown.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/adred-codev/aldrin/internal/broker"
	"github.com/adred-codev/aldrin/internal/config"
	"github.com/adred-codev/aldrin/internal/monitoring"
	"github.com/adred-codev/aldrin/internal/platform"
	"github.com/adred-codev/aldrin/internal/transport/natsconn"
	"github.com/adred-codev/aldrin/internal/transport/wsconn"
	"github.com/nats-io/nats.go"
	_ "go.uber.org/automaxprocs"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	cfg, err := config.LoadConfig(nil)
	if err != nil {
		panic(err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := monitoring.NewLogger(monitoring.LoggerConfig{Level: cfg.LogLevel, Format: cfg.LogFormat}, "broker")
	cfg.LogConfig(logger)

	// automaxprocs rounds GOMAXPROCS down to match the container's CPU
	// quota; internal/platform.CPUMonitor separately tracks the
	// fractional remainder for admission decisions.
	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("automaxprocs applied")

	if memLimit, err := platform.DetectMemoryLimit(); err == nil {
		recommended := platform.RecommendedMaxConnections(memLimit)
		logEvent := logger.Info()
		if cfg.MaxConnections > recommended*2 {
			logEvent = logger.Warn()
		}
		logEvent.
			Int64("detected_memory_limit_bytes", memLimit).
			Int("configured_max_connections", cfg.MaxConnections).
			Int("recommended_max_connections", recommended).
			Msg("checked configured connection limit against detected container memory")
	}

	b := broker.NewBroker(cfg, logger)

	wsListener, err := wsconn.Listen(cfg.WSAddr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.WSAddr).Msg("failed to listen for WebSocket connections")
	}
	b.AddListener(wsListener)
	logger.Info().Str("addr", cfg.WSAddr).Msg("listening for WebSocket connections")

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			logger.Fatal().Err(err).Str("url", cfg.NATSURL).Msg("failed to connect to NATS")
		}
		defer nc.Close()
		natsListener, err := natsconn.Listen(nc, cfg.NATSSubject)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to listen for NATS connections")
		}
		b.AddListener(natsListener)
		logger.Info().Str("subject", cfg.NATSSubject).Msg("listening for NATS connections")
	}

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: monitoring.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	logger.Info().Str("addr", cfg.MetricsAddr).Msg("serving /metrics")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := b.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("broker run loop exited")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down broker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 35*time.Second)
	defer shutdownCancel()
	if err := b.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during broker shutdown")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error shutting down metrics server")
	}
}
