package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/samsamoo/reviewpulse/internal/analysis"
	"github.com/samsamoo/reviewpulse/internal/scrapers"
	"github.com/samsamoo/reviewpulse/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// handleCrawlTask processes a review crawl task
func (w *Worker) handleCrawlTask(ctx context.Context, t *asynq.Task) error {
	var payload CrawlTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("failed to unmarshal crawl task payload", "error", err)
		return fmt.Errorf("invalid task payload: %w", err)
	}

	queueWaitTime := queueWait(payload.EnqueuedAt)
	w.observeQueueWait(TypeCrawlReviews, queueWaitTime)

	w.logger.Info("processing crawl task",
		"source", payload.Source,
		"source_product_id", payload.SourceProductID,
		"chain_analysis", payload.ChainAnalysis,
		"queue_wait_seconds", queueWaitTime.Seconds(),
	)

	ctx, span := resumeTrace(ctx, payload.TraceID, payload.SpanID, TypeCrawlReviews,
		attribute.String("product.source", payload.Source),
		attribute.String("product.id", payload.SourceProductID),
		attribute.Float64("queue.wait_time_seconds", queueWaitTime.Seconds()),
	)
	if span != nil {
		defer span.End()
	}

	// Product must exist before any crawling happens; a missing product is a
	// terminal informational result, not a retryable failure.
	product, err := w.storage.GetProduct(payload.Source, payload.SourceProductID)
	if err != nil {
		return fmt.Errorf("failed to look up product: %w", err)
	}
	if product == nil {
		w.logger.Info("crawl target not registered, skipping",
			"source", payload.Source,
			"source_product_id", payload.SourceProductID,
		)
		w.countCrawl(payload.Source, "not_found")
		return nil
	}

	// Status gate: only idle products may be crawled. The conditional update
	// is atomic, so a duplicate delivery racing this one loses the gate and
	// lands here.
	won, err := w.storage.SetAnalysisStatusIf(
		payload.Source, payload.SourceProductID,
		storage.StatusCrawling,
		storage.StatusPending, storage.StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to acquire crawl gate: %w", err)
	}
	if !won {
		w.logger.Info("crawl skipped, product not in a crawlable state",
			"source", payload.Source,
			"source_product_id", payload.SourceProductID,
			"status", product.AnalysisStatus,
		)
		w.countCrawl(payload.Source, "skipped")
		return nil
	}
	w.publishStatus(ctx, payload.Source, payload.SourceProductID, storage.StatusCrawling, product.ReviewCount)

	if err := w.runCrawl(ctx, &payload); err != nil {
		if revertErr := w.storage.SetAnalysisStatus(payload.Source, payload.SourceProductID, storage.StatusFailed); revertErr != nil {
			w.logger.Error("failed to mark product FAILED after crawl error",
				"source", payload.Source,
				"source_product_id", payload.SourceProductID,
				"error", revertErr,
			)
		}
		w.publishStatus(ctx, payload.Source, payload.SourceProductID, storage.StatusFailed, product.ReviewCount)
		w.countCrawl(payload.Source, "failed")
		w.logger.Error("crawl task failed",
			"source", payload.Source,
			"source_product_id", payload.SourceProductID,
			"error", err,
		)
		return err // Asynq retries unless the error carries SkipRetry
	}

	w.countCrawl(payload.Source, "completed")
	return nil
}

// runCrawl contains the crawl body executed behind the status gate. Any
// returned error reverts the product to FAILED in the caller.
func (w *Worker) runCrawl(ctx context.Context, payload *CrawlTaskPayload) error {
	// Unknown platforms are a configuration error, not a transient one;
	// retrying cannot fix a name that has no adapter.
	scraper, err := w.scraperFactory.ForPlatform(payload.Source)
	if err != nil {
		if errors.Is(err, scrapers.ErrUnknownPlatform) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	reviews, err := scraper.FetchReviews(ctx, payload.SourceProductID)
	if err != nil {
		return fmt.Errorf("failed to fetch reviews: %w", err)
	}

	if len(reviews) == 0 {
		// Nothing arrived; leave the status as is and let the next stage's
		// gate decide what to do with the forwarded envelope.
		w.logger.Warn("scraper returned no reviews",
			"source", payload.Source,
			"source_product_id", payload.SourceProductID,
		)
		w.chainAnalysis(ctx, payload)
		return nil
	}

	rows := make([]*storage.Review, 0, len(reviews))
	for _, r := range reviews {
		rows = append(rows, &storage.Review{
			Source:          payload.Source,
			SourceProductID: payload.SourceProductID,
			Reviewer:        r.Reviewer,
			Rating:          r.Rating,
			Content:         r.Content,
			ReviewAt:        r.ReviewAt,
		})
	}

	inserted, err := w.storage.SaveReviews(rows, payload.Source, payload.SourceProductID)
	if err != nil {
		return fmt.Errorf("failed to save reviews: %w", err)
	}

	total, err := w.storage.CountReviews(payload.Source, payload.SourceProductID)
	if err != nil {
		return fmt.Errorf("failed to count reviews: %w", err)
	}
	if err := w.storage.SetReviewCount(payload.Source, payload.SourceProductID, total); err != nil {
		return fmt.Errorf("failed to update review count: %w", err)
	}

	if err := w.storage.SetAnalysisStatus(payload.Source, payload.SourceProductID, storage.StatusCollected); err != nil {
		return fmt.Errorf("failed to mark product COLLECTED: %w", err)
	}
	w.publishStatus(ctx, payload.Source, payload.SourceProductID, storage.StatusCollected, total)

	if w.businessMetrics != nil {
		w.businessMetrics.ReviewsSavedTotal.WithLabelValues(payload.Source).Add(float64(inserted))
		w.businessMetrics.ReviewsDupTotal.WithLabelValues(payload.Source).Add(float64(len(reviews) - inserted))
	}

	w.logger.Info("crawl task completed",
		"source", payload.Source,
		"source_product_id", payload.SourceProductID,
		"fetched", len(reviews),
		"inserted", inserted,
		"total_stored", total,
	)

	w.chainAnalysis(ctx, payload)
	return nil
}

// chainAnalysis forwards the crawl result envelope to the analysis stage
func (w *Worker) chainAnalysis(ctx context.Context, payload *CrawlTaskPayload) {
	if !payload.ChainAnalysis || w.queueClient == nil {
		return
	}

	taskID, err := w.queueClient.EnqueueAnalysis(ctx, payload.Source, payload.SourceProductID)
	if err != nil {
		// The crawl itself succeeded; analysis can be triggered manually
		w.logger.Error("failed to enqueue chained analysis task",
			"source", payload.Source,
			"source_product_id", payload.SourceProductID,
			"error", err,
		)
		return
	}

	w.logger.Info("enqueued chained analysis task",
		"source", payload.Source,
		"source_product_id", payload.SourceProductID,
		"task_id", taskID,
	)
}

// handleAnalysisTask processes a product analysis task
func (w *Worker) handleAnalysisTask(ctx context.Context, t *asynq.Task) error {
	var payload AnalysisTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("failed to unmarshal analysis task payload", "error", err)
		return fmt.Errorf("invalid task payload: %w", err)
	}

	queueWaitTime := queueWait(payload.EnqueuedAt)
	w.observeQueueWait(TypeAnalyzeProduct, queueWaitTime)

	w.logger.Info("processing analysis task",
		"source", payload.Source,
		"source_product_id", payload.SourceProductID,
		"queue_wait_seconds", queueWaitTime.Seconds(),
	)

	ctx, span := resumeTrace(ctx, payload.TraceID, payload.SpanID, TypeAnalyzeProduct,
		attribute.String("product.source", payload.Source),
		attribute.String("product.id", payload.SourceProductID),
		attribute.Float64("queue.wait_time_seconds", queueWaitTime.Seconds()),
	)
	if span != nil {
		defer span.End()
	}

	product, err := w.storage.GetProduct(payload.Source, payload.SourceProductID)
	if err != nil {
		return fmt.Errorf("failed to look up product: %w", err)
	}
	if product == nil {
		w.logger.Info("analysis target not registered, skipping",
			"source", payload.Source,
			"source_product_id", payload.SourceProductID,
		)
		w.countAnalysis(payload.Source, "not_found")
		return nil
	}

	// Second gate: only freshly collected products may be analyzed. This
	// blocks un-crawled, currently-analyzing and already-analyzed products
	// alike.
	won, err := w.storage.SetAnalysisStatusIf(
		payload.Source, payload.SourceProductID,
		storage.StatusAnalyzing,
		storage.StatusCollected,
	)
	if err != nil {
		return fmt.Errorf("failed to acquire analysis gate: %w", err)
	}
	if !won {
		w.logger.Info("analysis skipped, product not in COLLECTED state",
			"source", payload.Source,
			"source_product_id", payload.SourceProductID,
			"status", product.AnalysisStatus,
		)
		w.countAnalysis(payload.Source, "skipped")
		return nil
	}
	w.publishStatus(ctx, payload.Source, payload.SourceProductID, storage.StatusAnalyzing, product.ReviewCount)

	outcome, err := w.analysisService.Analyze(ctx, payload.Source, payload.SourceProductID)
	if err != nil {
		// Bookkeeping failure outside the service's own error absorption:
		// revert and hand the error to the retry policy.
		if revertErr := w.storage.SetAnalysisStatus(payload.Source, payload.SourceProductID, storage.StatusFailed); revertErr != nil {
			w.logger.Error("failed to mark product FAILED after analysis error",
				"source", payload.Source,
				"source_product_id", payload.SourceProductID,
				"error", revertErr,
			)
		}
		w.publishStatus(ctx, payload.Source, payload.SourceProductID, storage.StatusFailed, product.ReviewCount)
		w.countAnalysis(payload.Source, "failed")
		return err
	}

	if outcome.Status == analysis.OutcomeFailed {
		// The service already marked the job FAILED; the product follows.
		// Service-internal failures are not retryable task errors.
		if err := w.storage.SetAnalysisStatus(payload.Source, payload.SourceProductID, storage.StatusFailed); err != nil {
			return fmt.Errorf("failed to mark product FAILED: %w", err)
		}
		w.publishStatus(ctx, payload.Source, payload.SourceProductID, storage.StatusFailed, product.ReviewCount)
		w.countAnalysis(payload.Source, "job_failed")
		w.logger.Warn("analysis job ended FAILED",
			"source", payload.Source,
			"source_product_id", payload.SourceProductID,
			"job_id", outcome.JobID,
		)
		return nil
	}

	if err := w.storage.SetAnalysisStatus(payload.Source, payload.SourceProductID, storage.StatusAnalyzed); err != nil {
		return fmt.Errorf("failed to mark product ANALYZED: %w", err)
	}
	w.publishStatus(ctx, payload.Source, payload.SourceProductID, storage.StatusAnalyzed, product.ReviewCount)
	w.countAnalysis(payload.Source, "completed")

	w.logger.Info("analysis task completed",
		"source", payload.Source,
		"source_product_id", payload.SourceProductID,
		"job_id", outcome.JobID,
		"outcome", outcome.Status,
	)

	return nil
}

// publishStatus pushes a committed transition to the status cache and event
// subscribers. Both are best effort; the database remains the source of truth.
func (w *Worker) publishStatus(ctx context.Context, source, sourceProductID string, status storage.AnalysisStatus, reviewCount int) {
	if w.statusCache != nil {
		st := storage.ProductStatus{AnalysisStatus: status, ReviewCount: reviewCount}
		if err := w.statusCache.Set(ctx, source, sourceProductID, st); err != nil {
			w.logger.Warn("failed to update status cache",
				"source", source,
				"source_product_id", sourceProductID,
				"error", err,
			)
		}
	}
	if w.events != nil {
		w.events.Publish(source, sourceProductID, string(status))
	}
}

func (w *Worker) countCrawl(platform, outcome string) {
	if w.businessMetrics == nil {
		return
	}
	w.businessMetrics.CrawlTasksTotal.WithLabelValues(platform, outcome).Inc()
}

func (w *Worker) countAnalysis(platform, outcome string) {
	if w.businessMetrics == nil {
		return
	}
	w.businessMetrics.AnalysisTasksTotal.WithLabelValues(platform, outcome).Inc()
}

func (w *Worker) observeQueueWait(taskType string, wait time.Duration) {
	if w.businessMetrics == nil || wait <= 0 {
		return
	}
	w.businessMetrics.TaskQueueWaitTime.WithLabelValues(taskType).Observe(wait.Seconds())
}

// queueWait computes how long a task sat in the queue
func queueWait(enqueuedAt int64) time.Duration {
	if enqueuedAt <= 0 {
		return 0
	}
	return time.Since(time.Unix(0, enqueuedAt))
}

// resumeTrace recreates the trace context recorded at enqueue time, so the
// consumer span links back to the producer. Returns a nil span when no trace
// context was propagated.
func resumeTrace(ctx context.Context, traceID, spanID, taskType string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if traceID == "" || spanID == "" {
		return ctx, nil
	}

	tid, err := trace.TraceIDFromHex(traceID)
	if err != nil {
		return ctx, nil
	}
	sid, err := trace.SpanIDFromHex(spanID)
	if err != nil {
		return ctx, nil
	}

	remoteSpanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})

	ctx = trace.ContextWithRemoteSpanContext(ctx, remoteSpanCtx)
	ctx, span := otel.Tracer("reviewpulse").Start(ctx, "asynq.task.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(append(attrs, attribute.String("task.type", taskType))...),
	)

	return ctx, span
}
