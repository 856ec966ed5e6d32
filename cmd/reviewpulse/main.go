package main

import (
	"context"
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
	"github.com/samsamoo/reviewpulse/internal/analysis"
	"github.com/samsamoo/reviewpulse/internal/config"
	"github.com/samsamoo/reviewpulse/internal/events"
	"github.com/samsamoo/reviewpulse/internal/handlers"
	"github.com/samsamoo/reviewpulse/internal/llm"
	"github.com/samsamoo/reviewpulse/internal/metrics"
	"github.com/samsamoo/reviewpulse/internal/queue"
	"github.com/samsamoo/reviewpulse/internal/runtracker"
	"github.com/samsamoo/reviewpulse/internal/scrapers"
	"github.com/samsamoo/reviewpulse/internal/statuscache"
	"github.com/samsamoo/reviewpulse/internal/storage"
	"github.com/samsamoo/reviewpulse/internal/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// fanout delivers status transitions to every registered publisher
type fanout []queue.EventPublisher

func (f fanout) Publish(source, sourceProductID, status string) {
	for _, p := range f {
		p.Publish(source, sourceProductID, status)
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize tracing
	shutdownTracing, err := tracing.Setup(context.Background(), tracing.Config{
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
		ServiceName: "reviewpulse",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Prometheus registry with runtime and business collectors
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	businessMetrics := metrics.New(registry)

	// Redis-backed status cache
	statusCache := statuscache.New(cfg.RedisAddr, time.Duration(cfg.StatusCacheTTLSec)*time.Second)
	defer statusCache.Close()

	// In-process event plumbing
	broadcaster := events.NewBroadcaster()
	runs := runtracker.New(24 * time.Hour)
	stopCleanup := runs.StartCleanupLoop(10 * time.Minute)
	defer close(stopCleanup)

	// Queue client for enqueueing tasks
	queueClient := queue.NewClient(queue.ClientConfig{RedisAddr: cfg.RedisAddr})
	defer queueClient.Close()

	// Pipeline components
	scraperFactory := scrapers.NewFactory(time.Duration(cfg.ScraperTimeoutSec) * time.Second)
	analyzer := llm.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	analysisService := analysis.NewService(store, analyzer, businessMetrics)

	// Queue worker
	worker := queue.NewWorker(
		queue.WorkerConfig{
			RedisAddr:   cfg.RedisAddr,
			Concurrency: cfg.WorkerConcurrency,
		},
		store,
		scraperFactory,
		analysisService,
		queueClient,
		statusCache,
		fanout{broadcaster, runs},
		businessMetrics,
	)

	workerErr := make(chan error, 1)
	go func() {
		workerErr <- worker.Start()
	}()

	// HTTP layer
	handler := handlers.New(store, queueClient, statusCache, runs, broadcaster)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handler.Health)
	mux.HandleFunc("/api/products", handler.Products)
	mux.HandleFunc("/api/products/", handler.ProductResult)
	mux.HandleFunc("/api/crawl", handler.Crawl)
	mux.HandleFunc("/api/analyze", handler.Analyze)
	mux.HandleFunc("/api/recollect", handler.Recollect)
	mux.HandleFunc("/api/status", handler.Status)
	mux.HandleFunc("/api/runs", handler.Runs)
	mux.HandleFunc("/api/events", handler.Events)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: otelhttp.NewHandler(mux, "reviewpulse.http"),
	}

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("reviewpulse starting",
			"port", cfg.Port,
			"redis", cfg.RedisAddr,
			"database", cfg.DatabasePath,
			"worker_concurrency", cfg.WorkerConcurrency,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	select {
	case <-shutdown:
		logger.Info("shutting down reviewpulse")
	case err := <-workerErr:
		if err != nil {
			logger.Error("worker failed", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	worker.Shutdown()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	if err := shutdownTracing(ctx); err != nil {
		logger.Error("error shutting down tracing", "error", err)
	}

	logger.Info("reviewpulse stopped")
}
