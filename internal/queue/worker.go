package queue

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/samsamoo/reviewpulse/internal/analysis"
	"github.com/samsamoo/reviewpulse/internal/metrics"
	"github.com/samsamoo/reviewpulse/internal/scrapers"
	"github.com/samsamoo/reviewpulse/internal/storage"
)

// StatusCache is the optional read-side cache updated after committed
// status transitions
type StatusCache interface {
	Set(ctx context.Context, source, sourceProductID string, status storage.ProductStatus) error
	Delete(ctx context.Context, source, sourceProductID string) error
}

// EventPublisher receives product status transitions for live subscribers
type EventPublisher interface {
	Publish(source, sourceProductID, status string)
}

// ScraperFactory resolves the review scraper for a platform name
type ScraperFactory interface {
	ForPlatform(platform string) (scrapers.Scraper, error)
}

// queuePriorities weights task scheduling across the two queues; a higher
// value means a larger share of worker capacity
var queuePriorities = map[string]int{
	QueueCrawl:    6,
	QueueAnalysis: 4,
}

// slogAdapter wraps slog.Logger to implement asynq.Logger interface for structured logging
type slogAdapter struct {
	logger *slog.Logger
}

// Debug implements asynq.Logger
func (l *slogAdapter) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}

// Info implements asynq.Logger
func (l *slogAdapter) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}

// Warn implements asynq.Logger
func (l *slogAdapter) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}

// Error implements asynq.Logger
func (l *slogAdapter) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}

// Fatal implements asynq.Logger
func (l *slogAdapter) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	log.Fatal(args...)
}

// Worker wraps the Asynq server for processing pipeline tasks
type Worker struct {
	server          *asynq.Server
	mux             *asynq.ServeMux
	storage         *storage.Storage
	scraperFactory  ScraperFactory
	analysisService *analysis.Service
	queueClient     *Client
	statusCache     StatusCache
	events          EventPublisher
	businessMetrics *metrics.BusinessMetrics
	concurrency     int
	logger          *slog.Logger
}

// WorkerConfig contains configuration for the queue worker
type WorkerConfig struct {
	RedisAddr   string
	Concurrency int
}

// NewWorker creates a new queue worker
func NewWorker(
	cfg WorkerConfig,
	store *storage.Storage,
	scraperFactory ScraperFactory,
	analysisService *analysis.Service,
	queueClient *Client,
	statusCache StatusCache,
	events EventPublisher,
	businessMetrics *metrics.BusinessMetrics,
) *Worker {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	}

	serverCfg := asynq.Config{
		// Concurrency determines how many tasks can be processed simultaneously
		Concurrency: cfg.Concurrency,

		Queues: queuePriorities,

		// StrictPriority: false means queues are processed proportionally
		StrictPriority: false,

		// Fixed retry delays per task type: crawls retry after 30 seconds,
		// analyses after 60 seconds. A retry re-executes the whole task body;
		// the status gate and review dedup keep that safe.
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			if task.Type() == TypeAnalyzeProduct {
				return analysisRetryDelay
			}
			return crawlRetryDelay
		},

		// Graceful shutdown timeout
		ShutdownTimeout: 30 * time.Second,

		// Use structured logging
		Logger: &slogAdapter{
			logger: slog.Default(),
		},

		// Error handler for logging
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			slog.Error("task processing error",
				"task_type", task.Type(),
				"error", err,
			)
		}),
	}

	server := asynq.NewServer(redisOpt, serverCfg)
	mux := asynq.NewServeMux()

	w := &Worker{
		server:          server,
		mux:             mux,
		storage:         store,
		scraperFactory:  scraperFactory,
		analysisService: analysisService,
		queueClient:     queueClient,
		statusCache:     statusCache,
		events:          events,
		businessMetrics: businessMetrics,
		concurrency:     cfg.Concurrency,
		logger:          slog.Default(),
	}

	// Register task handlers
	w.registerHandlers()

	return w
}

// registerHandlers registers all task handlers with the worker
func (w *Worker) registerHandlers() {
	w.mux.HandleFunc(TypeCrawlReviews, w.handleCrawlTask)
	w.mux.HandleFunc(TypeAnalyzeProduct, w.handleAnalysisTask)
}

// Start starts the worker to begin processing tasks
func (w *Worker) Start() error {
	w.logger.Info("starting asynq worker",
		"concurrency", w.concurrency,
		"queues", queuePriorities,
	)

	// Run is blocking - starts processing tasks
	if err := w.server.Run(w.mux); err != nil {
		return fmt.Errorf("asynq server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the worker
func (w *Worker) Shutdown() {
	w.logger.Info("shutting down asynq worker")
	w.server.Shutdown()
}

// Server returns the underlying Asynq server (for testing)
func (w *Worker) Server() *asynq.Server {
	return w.server
}
