package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

func TestQueueWait(t *testing.T) {
	enqueued := time.Now().Add(-2 * time.Second).UnixNano()

	wait := queueWait(enqueued)
	if wait < 2*time.Second || wait > 10*time.Second {
		t.Errorf("Unexpected queue wait %v", wait)
	}

	if queueWait(0) != 0 {
		t.Error("Missing enqueue timestamp must report zero wait")
	}
}

func TestResumeTraceWithoutContext(t *testing.T) {
	ctx := context.Background()

	newCtx, span := resumeTrace(ctx, "", "", TypeCrawlReviews)
	if span != nil {
		t.Error("Expected no span without propagated trace context")
	}
	if newCtx != ctx {
		t.Error("Context must pass through unchanged")
	}
}

func TestResumeTraceInvalidIDs(t *testing.T) {
	_, span := resumeTrace(context.Background(), "not-hex", "nope", TypeCrawlReviews)
	if span != nil {
		t.Error("Expected invalid trace ids to be ignored")
	}
}

func TestResumeTraceValidIDs(t *testing.T) {
	traceID := "4bf92f3577b34da6a3ce929d0e0e4736"
	spanID := "00f067aa0ba902b7"

	ctx, span := resumeTrace(context.Background(), traceID, spanID, TypeAnalyzeProduct)
	if span == nil {
		t.Fatal("Expected a consumer span")
	}
	defer span.End()

	got := trace.SpanContextFromContext(ctx)
	if got.TraceID().String() != traceID {
		t.Errorf("Expected trace id %s to carry over, got %s", traceID, got.TraceID())
	}
}

func TestCrawlPayloadRoundTrip(t *testing.T) {
	payload := CrawlTaskPayload{
		Source:          "elevenst",
		SourceProductID: "123",
		ChainAnalysis:   true,
		EnqueuedAt:      time.Now().UnixNano(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}

	var decoded CrawlTaskPayload
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}

	if !decoded.ChainAnalysis {
		t.Error("ChainAnalysis flag lost in transit")
	}
	if decoded.Source != "elevenst" || decoded.SourceProductID != "123" {
		t.Errorf("Product identity lost: %+v", decoded)
	}
}
