package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"RangeMarket/internal/collateral"
	"RangeMarket/internal/engine"
	"RangeMarket/internal/event"
	"RangeMarket/internal/observability"
	"RangeMarket/internal/persistence"
	"RangeMarket/internal/position"
	"RangeMarket/internal/publish"
	"RangeMarket/internal/server"
)

// Config holds all application configuration, loaded from environment
// variables. Empty PostgresURL or NATSURL disables that integration.
type Config struct {
	PostgresURL string
	NATSURL     string

	HTTPAddr    string
	MetricsAddr string

	PersistChanSize     int
	PersistBatchSize    int
	PersistFlushTimeout time.Duration

	PublishChanSize int
}

func DefaultConfig() Config {
	return Config{
		PostgresURL:         os.Getenv("RM_POSTGRES_DSN"),
		NATSURL:             os.Getenv("RM_NATS_URL"),
		HTTPAddr:            envOrDefault("RM_HTTP_ADDR", ":8080"),
		MetricsAddr:         envOrDefault("RM_METRICS_ADDR", ":9091"),
		PersistChanSize:     envIntOrDefault("RM_PERSIST_CHAN_SIZE", 1024),
		PersistBatchSize:    envIntOrDefault("RM_PERSIST_BATCH_SIZE", 50),
		PersistFlushTimeout: 10 * time.Millisecond,
		PublishChanSize:     envIntOrDefault("RM_PUBLISH_CHAN_SIZE", 4096),
	}
}

func main() {
	logger := observability.NewLogger("main")
	logger.Info().Msg("rangemarket starting")

	cfg := DefaultConfig()
	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 4)

	var sinks event.Fanout
	var channelSinks []*event.ChannelSink
	var workers sync.WaitGroup

	// --- Postgres event log (optional) ---
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres open")
		}
		defer db.Close()

		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			logger.Fatal().Err(err).Msg("postgres ping")
		}
		writer := persistence.NewEventLogWriter(db)
		if err := writer.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("ensure event log schema")
		}
		logger.Info().Msg("postgres connected, event log schema ready")

		sink := event.NewChannelSink(cfg.PersistChanSize, func() {
			metrics.EventDrops.WithLabelValues("persist").Inc()
		})
		sinks = append(sinks, sink)
		channelSinks = append(channelSinks, sink)

		worker := persistence.NewWorker(writer, sink.Records(), cfg.PersistBatchSize,
			cfg.PersistFlushTimeout, observability.NewLogger("persistence"), metrics)
		workers.Add(1)
		go func() {
			defer workers.Done()
			errChan <- worker.Run(ctx)
		}()
	} else {
		logger.Info().Msg("RM_POSTGRES_DSN not set, event log disabled")
	}

	// --- NATS JetStream publisher (optional) ---
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1))
		if err != nil {
			logger.Fatal().Err(err).Msg("nats connect")
		}
		defer nc.Close()

		js, err := jetstream.New(nc)
		if err != nil {
			logger.Fatal().Err(err).Msg("jetstream context")
		}
		if err := publish.EnsureStream(ctx, js); err != nil {
			logger.Fatal().Err(err).Msg("ensure jetstream stream")
		}
		logger.Info().Str("stream", publish.StreamName).Msg("nats connected")

		sink := event.NewChannelSink(cfg.PublishChanSize, func() {
			metrics.EventDrops.WithLabelValues("publish").Inc()
		})
		sinks = append(sinks, sink)
		channelSinks = append(channelSinks, sink)

		pub := publish.NewPublisher(js, sink.Records(),
			observability.NewLogger("publish"), metrics)
		workers.Add(1)
		go func() {
			defer workers.Done()
			errChan <- pub.Run(ctx)
		}()
	} else {
		logger.Info().Msg("RM_NATS_URL not set, event publishing disabled")
	}

	var sink event.Sink = sinks
	if len(sinks) == 0 {
		sink = event.NopSink{}
	}

	// --- Engine with in-process collaborators ---
	vault := collateral.NewMemoryVault()
	ledger := position.NewMemoryLedger()
	eng := engine.New(ledger, vault, sink, observability.NewLogger("engine"), metrics)

	// --- HTTP API ---
	srv := server.New(eng, vault, observability.NewLogger("http"), metrics)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	// --- Prometheus metrics server ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux,
	}
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	logger.Info().
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("rangemarket ready")

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("worker failed, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics shutdown")
	}

	// No new operations can arrive once the HTTP server has drained; close
	// the sink channels so the workers flush and exit, and only cancel the
	// shared context once they have returned.
	for _, s := range channelSinks {
		s.Close()
	}
	workers.Wait()
	cancel()

	logger.Info().Msg("rangemarket shutdown complete")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return defaultVal
	}
	return i
}
