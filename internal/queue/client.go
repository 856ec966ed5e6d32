package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Task type constants
const (
	TypeCrawlReviews   = "review:crawl"
	TypeAnalyzeProduct = "review:analyze"
)

// Queue names. Crawls are favoured so fresh data keeps arriving even when a
// backlog of analysis work exists.
const (
	QueueCrawl    = "crawl"
	QueueAnalysis = "analysis"
)

// Retry policy per task type
const (
	crawlMaxRetry      = 3
	crawlRetryDelay    = 30 * time.Second
	analysisMaxRetry   = 3
	analysisRetryDelay = 60 * time.Second
)

// CrawlTaskPayload is the payload for a review crawl task
type CrawlTaskPayload struct {
	Source          string `json:"source"`
	SourceProductID string `json:"source_product_id"`
	ChainAnalysis   bool   `json:"chain_analysis"`
	// Tracing and timing fields
	TraceID    string `json:"trace_id,omitempty"`
	SpanID     string `json:"span_id,omitempty"`
	EnqueuedAt int64  `json:"enqueued_at"` // Unix timestamp in nanoseconds
}

// AnalysisTaskPayload is the payload for an analysis task. It is also the
// result envelope a completed crawl forwards to the next stage.
type AnalysisTaskPayload struct {
	Source          string `json:"source"`
	SourceProductID string `json:"source_product_id"`
	// Tracing and timing fields
	TraceID    string `json:"trace_id,omitempty"`
	SpanID     string `json:"span_id,omitempty"`
	EnqueuedAt int64  `json:"enqueued_at"` // Unix timestamp in nanoseconds
}

// Client wraps the Asynq client for enqueueing pipeline tasks
type Client struct {
	client *asynq.Client
}

// ClientConfig contains configuration for the queue client
type ClientConfig struct {
	RedisAddr string
}

// NewClient creates a new queue client
func NewClient(cfg ClientConfig) *Client {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	}

	return &Client{
		client: asynq.NewClient(redisOpt),
	}
}

// EnqueueCrawl enqueues a crawl task for a product. When chainAnalysis is
// set, the crawl forwards its result envelope to an analysis task on success.
func (c *Client) EnqueueCrawl(ctx context.Context, source, sourceProductID string, chainAnalysis bool) (string, error) {
	payload := CrawlTaskPayload{
		Source:          source,
		SourceProductID: sourceProductID,
		ChainAnalysis:   chainAnalysis,
		EnqueuedAt:      time.Now().UnixNano(),
	}

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()
		payload.TraceID = spanCtx.TraceID().String()
		payload.SpanID = spanCtx.SpanID().String()

		span.AddEvent("task_enqueued", trace.WithAttributes(
			attribute.String("task.type", TypeCrawlReviews),
			attribute.String("product.source", source),
			attribute.String("product.id", sourceProductID),
			attribute.Bool("chain_analysis", chainAnalysis),
		))
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TypeCrawlReviews, payloadBytes)

	opts := []asynq.Option{
		asynq.MaxRetry(crawlMaxRetry),
		asynq.Timeout(30 * time.Minute), // bounded by the scraper client's own timeouts in practice
		asynq.Queue(QueueCrawl),
		asynq.Retention(7 * 24 * time.Hour),
	}

	info, err := c.client.Enqueue(task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue crawl task: %w", err)
	}

	return info.ID, nil
}

// EnqueueAnalysis enqueues an analysis task for a product
func (c *Client) EnqueueAnalysis(ctx context.Context, source, sourceProductID string) (string, error) {
	payload := AnalysisTaskPayload{
		Source:          source,
		SourceProductID: sourceProductID,
		EnqueuedAt:      time.Now().UnixNano(),
	}

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()
		payload.TraceID = spanCtx.TraceID().String()
		payload.SpanID = spanCtx.SpanID().String()

		span.AddEvent("task_enqueued", trace.WithAttributes(
			attribute.String("task.type", TypeAnalyzeProduct),
			attribute.String("product.source", source),
			attribute.String("product.id", sourceProductID),
		))
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TypeAnalyzeProduct, payloadBytes)

	opts := []asynq.Option{
		asynq.MaxRetry(analysisMaxRetry),
		asynq.Timeout(30 * time.Minute),
		asynq.Queue(QueueAnalysis),
		asynq.Retention(7 * 24 * time.Hour),
	}

	info, err := c.client.Enqueue(task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue analysis task: %w", err)
	}

	return info.ID, nil
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.client.Close()
}
