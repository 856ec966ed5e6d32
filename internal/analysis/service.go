// Package analysis runs the two-stage LLM review analysis and owns the
// job/metrics/insight lifecycle.
package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/samsamoo/reviewpulse/internal/llm"
	"github.com/samsamoo/reviewpulse/internal/metrics"
	"github.com/samsamoo/reviewpulse/internal/storage"
)

// OutcomeStatus is the terminal result of one analysis run
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "COMPLETED"
	OutcomeNoReviews OutcomeStatus = "NO_REVIEWS"
	OutcomeFailed    OutcomeStatus = "FAILED"
)

// Outcome reports how an analysis run ended. It is a plain value: stage
// failures are absorbed into OutcomeFailed and never escape as errors.
type Outcome struct {
	JobID  string        `json:"job_id"`
	Status OutcomeStatus `json:"status"`
}

// Store is the persistence surface the service needs
type Store interface {
	CreateAnalysisJob(source, sourceProductID string, status storage.JobStatus) (string, error)
	UpdateJobStatus(jobID string, status storage.JobStatus) error
	GetReviewsByProduct(source, sourceProductID string) ([]*storage.Review, error)
	SaveMetrics(m *storage.MetricsRecord) error
	SaveInsight(in *storage.InsightRecord) error
}

// Service coordinates the two LLM stages against the store
type Service struct {
	store    Store
	analyzer llm.Analyzer
	logger   *slog.Logger
	biz      *metrics.BusinessMetrics
}

// NewService creates an analysis service
func NewService(store Store, analyzer llm.Analyzer, biz *metrics.BusinessMetrics) *Service {
	return &Service{
		store:    store,
		analyzer: analyzer,
		logger:   slog.Default(),
		biz:      biz,
	}
}

// Analyze runs both analysis stages for a product and returns the job
// outcome. The returned error covers only job bookkeeping failures (job row
// could not be created or updated); LLM and persistence failures inside a
// running job are converted to a FAILED outcome.
func (s *Service) Analyze(ctx context.Context, source, sourceProductID string) (Outcome, error) {
	jobID, err := s.store.CreateAnalysisJob(source, sourceProductID, storage.JobRunning)
	if err != nil {
		return Outcome{}, err
	}

	outcome, runErr := s.run(ctx, jobID, source, sourceProductID)
	if runErr != nil {
		s.logger.Error("analysis job failed",
			"job_id", jobID,
			"source", source,
			"source_product_id", sourceProductID,
			"error", runErr,
		)
		if err := s.store.UpdateJobStatus(jobID, storage.JobFailed); err != nil {
			return Outcome{}, err
		}
		s.recordOutcome(OutcomeFailed)
		return Outcome{JobID: jobID, Status: OutcomeFailed}, nil
	}

	if err := s.store.UpdateJobStatus(jobID, storage.JobCompleted); err != nil {
		return Outcome{}, err
	}
	s.recordOutcome(outcome.Status)
	return outcome, nil
}

// run executes the stages; any returned error marks the job FAILED
func (s *Service) run(ctx context.Context, jobID, source, sourceProductID string) (Outcome, error) {
	reviews, err := s.store.GetReviewsByProduct(source, sourceProductID)
	if err != nil {
		return Outcome{}, err
	}

	if len(reviews) == 0 {
		s.logger.Warn("no stored reviews to analyze",
			"job_id", jobID,
			"source", source,
			"source_product_id", sourceProductID,
		)
		return Outcome{JobID: jobID, Status: OutcomeNoReviews}, nil
	}

	reviewTexts := make([]string, 0, len(reviews))
	for _, r := range reviews {
		reviewTexts = append(reviewTexts, r.Content)
	}

	// Stage 1: metrics extraction, persisted before stage 2 runs so the
	// output survives a stage-2 failure.
	stage1Start := time.Now()
	rawMetrics, err := s.analyzer.ExtractMetrics(ctx, reviewTexts, sourceProductID)
	s.observeLLM("metrics", stage1Start)
	if err != nil {
		return Outcome{}, err
	}

	metricsRecord := &storage.MetricsRecord{
		JobID:        jobID,
		TotalReviews: len(reviews),
		Sentiment:    rawMetrics.Sentiment,
		Aspects:      rawMetrics.Aspects,
		Keywords:     rawMetrics.Keywords,
		Issues:       rawMetrics.Issues,
		Trend:        rawMetrics.Trend,
	}
	if err := s.store.SaveMetrics(metricsRecord); err != nil {
		return Outcome{}, err
	}

	// Stage 2: summary generation from the stage-1 metrics
	stage2Start := time.Now()
	summary, err := s.analyzer.GenerateSummary(ctx, reviewTexts, rawMetrics)
	s.observeLLM("summary", stage2Start)
	if err != nil {
		return Outcome{}, err
	}

	insightRecord := &storage.InsightRecord{
		JobID:       jobID,
		Summary:     summary.Summary,
		Insights:    summary.Insights,
		Metadata:    summary.Metadata,
		EvidenceIDs: summary.EvidenceIDs,
	}
	if err := s.store.SaveInsight(insightRecord); err != nil {
		return Outcome{}, err
	}

	s.logger.Info("analysis job completed",
		"job_id", jobID,
		"source", source,
		"source_product_id", sourceProductID,
		"total_reviews", len(reviews),
	)

	return Outcome{JobID: jobID, Status: OutcomeCompleted}, nil
}

func (s *Service) observeLLM(stage string, start time.Time) {
	if s.biz == nil {
		return
	}
	s.biz.LLMCallDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (s *Service) recordOutcome(status OutcomeStatus) {
	if s.biz == nil {
		return
	}
	s.biz.AnalysisJobsTotal.WithLabelValues(string(status)).Inc()
}
