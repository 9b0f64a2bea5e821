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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/efreitasn/exchangecore/internal/config"
	"github.com/efreitasn/exchangecore/internal/engine"
	"github.com/efreitasn/exchangecore/internal/events"
	"github.com/efreitasn/exchangecore/internal/feed"
	"github.com/efreitasn/exchangecore/internal/handler"
	"github.com/efreitasn/exchangecore/internal/journal"
	"github.com/efreitasn/exchangecore/internal/kafka"
	"github.com/efreitasn/exchangecore/internal/logging"
	"github.com/efreitasn/exchangecore/internal/metrics"
	"github.com/efreitasn/exchangecore/internal/server"
	"github.com/efreitasn/exchangecore/internal/service"
	"github.com/efreitasn/exchangecore/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// -healthcheck: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("exchange stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledgers := store.NewLedgerStore()
	orders := store.NewOrderStore()
	trades := store.NewTradeStore()
	webhooks := store.NewWebhookStore()

	j, err := openJournal(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if j != nil {
		defer func() {
			if err := j.Close(); err != nil {
				logger.Error("journal close", slog.String("error", err.Error()))
			}
		}()
		n, err := journal.Replay(ctx, j, trades)
		if err != nil {
			return err
		}
		logger.Info("journal replayed", slog.Int("trades", n))
	}

	bus := events.NewBus(cfg.EventBuffer, logger)
	deps := engine.Deps{
		Ledgers:   ledgers,
		Orders:    orders,
		Trades:    trades,
		Publisher: bus,
		Logger:    logger,
		PnLWindow: cfg.PnLWindow,
	}
	switch {
	case cfg.SinkRequired && j != nil:
		deps.Sink = j
	case cfg.SinkRequired:
		logger.Warn("SINK_REQUIRED has no effect with the memory backend")
	}

	registry := cfg.Registry()
	exchange := engine.NewExchange(registry, deps)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(promRegistry, bus.Dropped)

	webhookSvc := service.NewWebhookService(webhooks, ledgers, cfg.WebhookTimeout, logger)
	hub := feed.NewHub(exchange, cfg.FeedInterval, logger)

	bus.Subscribe("log", events.LogSubscriber(logger))
	bus.Subscribe("metrics", collector.Handler())
	bus.Subscribe("webhooks", webhookSvc.Handler())
	bus.Subscribe("feed", hub.Handler())
	if j != nil {
		bus.Subscribe("journal", journal.Recorder(j, logger))
	}
	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		bus.Subscribe("kafka", producer.Handler())
	}

	busCtx, stopBus := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBus()
	bus.Start(busCtx)

	feedCtx, stopFeed := context.WithCancel(context.WithoutCancel(ctx))
	defer stopFeed()
	go hub.Run(feedCtx)

	router := handler.NewRouter(handler.Services{
		Accounts: service.NewAccountService(ledgers, registry, exchange),
		Orders:   service.NewOrderService(exchange),
		Market:   service.NewMarketService(exchange, trades, cfg.VWAPWindow),
		Webhooks: webhookSvc,
	}, handler.Options{
		Feed:    hub,
		Metrics: promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{Registry: promRegistry}),
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	health := server.NewHealth(fmt.Sprintf(":%d", cfg.GRPCPort), logger)
	if _, err := health.Listen(); err != nil {
		return err
	}
	healthCtx, stopHealth := context.WithCancel(context.WithoutCancel(ctx))
	defer stopHealth()
	healthDone := make(chan error, 1)
	go func() { healthDone <- health.Serve(healthCtx) }()

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.Int("instruments", len(cfg.Instruments)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()
	health.SetServing(true)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-srvErr:
		logger.Error("server error", slog.String("error", serveErr.Error()))
	}
	health.SetServing(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	stopFeed()

	// Drain queued events before the journal and producer close.
	stopBus()
	select {
	case <-bus.Done():
	case <-shutdownCtx.Done():
		logger.Warn("event bus did not drain before shutdown timeout")
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka producer close", slog.String("error", err.Error()))
		}
	}

	stopHealth()
	if err := <-healthDone; err != nil {
		logger.Error("health server error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
	return serveErr
}

// openJournal opens the configured durable backend. The memory backend
// has no journal.
func openJournal(ctx context.Context, cfg *config.Config, logger *slog.Logger) (journal.Journal, error) {
	switch cfg.SinkBackend {
	case config.SinkPebble:
		j, err := journal.OpenPebble(cfg.PebbleDir, nil)
		if err != nil {
			return nil, err
		}
		logger.Info("trade journal ready", slog.String("backend", "pebble"), slog.String("dir", cfg.PebbleDir))
		return j, nil
	case config.SinkPostgres:
		j, err := journal.ConnectPostgres(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		return j, nil
	}
	return nil, nil
}
