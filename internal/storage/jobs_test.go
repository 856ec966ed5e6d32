package storage

import (
	"testing"
	"time"
)

func TestAnalysisJobLifecycle(t *testing.T) {
	store := newTestStorage(t, "test_jobs.db")
	seedProduct(t, store, "elevenst", "123")

	jobID, err := store.CreateAnalysisJob("elevenst", "123", JobRunning)
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	if jobID == "" {
		t.Fatal("Expected a job id")
	}

	job, err := store.GetAnalysisJob(jobID)
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if job == nil {
		t.Fatal("Expected job, got nil")
	}
	if job.Status != JobRunning {
		t.Errorf("Expected RUNNING, got %s", job.Status)
	}

	if err := store.UpdateJobStatus(jobID, JobCompleted); err != nil {
		t.Fatalf("Failed to update job status: %v", err)
	}

	job, err = store.GetAnalysisJob(jobID)
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if job.Status != JobCompleted {
		t.Errorf("Expected COMPLETED, got %s", job.Status)
	}
}

func TestUpdateJobStatusMissing(t *testing.T) {
	store := newTestStorage(t, "test_jobs_missing.db")

	if err := store.UpdateJobStatus("no-such-job", JobFailed); err == nil {
		t.Error("Expected error updating a missing job")
	}
}

func TestSaveAndGetMetrics(t *testing.T) {
	store := newTestStorage(t, "test_metrics.db")
	seedProduct(t, store, "elevenst", "123")

	jobID, err := store.CreateAnalysisJob("elevenst", "123", JobRunning)
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	record := &MetricsRecord{
		JobID:        jobID,
		TotalReviews: 17,
		Sentiment:    map[string]float64{"positive": 0.7, "negative": 0.2, "neutral": 0.1},
		Aspects: map[string]interface{}{
			"배송": map[string]interface{}{"positive": 10.0, "negative": 1.0},
		},
		Keywords: []string{"빠른배송", "가성비"},
		Issues:   []string{"포장 파손"},
		Trend:    map[string]float64{"2026-W18": 0.6},
	}
	if err := store.SaveMetrics(record); err != nil {
		t.Fatalf("Failed to save metrics: %v", err)
	}

	retrieved, err := store.GetMetrics(jobID)
	if err != nil {
		t.Fatalf("Failed to get metrics: %v", err)
	}
	if retrieved == nil {
		t.Fatal("Expected metrics, got nil")
	}
	if retrieved.TotalReviews != 17 {
		t.Errorf("Expected 17 total reviews, got %d", retrieved.TotalReviews)
	}
	if retrieved.Sentiment["positive"] != 0.7 {
		t.Errorf("Sentiment did not round-trip: %+v", retrieved.Sentiment)
	}
	if len(retrieved.Keywords) != 2 || retrieved.Keywords[0] != "빠른배송" {
		t.Errorf("Keywords did not round-trip: %+v", retrieved.Keywords)
	}
	if _, ok := retrieved.Aspects["배송"]; !ok {
		t.Errorf("Aspects did not round-trip: %+v", retrieved.Aspects)
	}
}

func TestSaveAndGetInsight(t *testing.T) {
	store := newTestStorage(t, "test_insight.db")
	seedProduct(t, store, "elevenst", "123")

	jobID, err := store.CreateAnalysisJob("elevenst", "123", JobRunning)
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	record := &InsightRecord{
		JobID:   jobID,
		Summary: "배송 만족도가 높지만 포장 불만이 있습니다",
		Insights: map[string][]string{
			"marketing": {"빠른 배송을 강조"},
			"quality":   {"포장재 개선 필요"},
		},
		Metadata:    map[string]interface{}{"model": "test"},
		EvidenceIDs: []string{"1", "5"},
	}
	if err := store.SaveInsight(record); err != nil {
		t.Fatalf("Failed to save insight: %v", err)
	}

	retrieved, err := store.GetInsight(jobID)
	if err != nil {
		t.Fatalf("Failed to get insight: %v", err)
	}
	if retrieved == nil {
		t.Fatal("Expected insight, got nil")
	}
	if retrieved.Summary != record.Summary {
		t.Errorf("Summary did not round-trip: %q", retrieved.Summary)
	}
	if len(retrieved.Insights["marketing"]) != 1 {
		t.Errorf("Insights did not round-trip: %+v", retrieved.Insights)
	}
}

func TestGetLatestForProduct(t *testing.T) {
	store := newTestStorage(t, "test_latest.db")
	seedProduct(t, store, "elevenst", "123")

	oldJob, err := store.CreateAnalysisJob("elevenst", "123", JobCompleted)
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	if err := store.SaveMetrics(&MetricsRecord{JobID: oldJob, TotalReviews: 5}); err != nil {
		t.Fatalf("Failed to save metrics: %v", err)
	}
	if err := store.SaveInsight(&InsightRecord{JobID: oldJob, Summary: "old"}); err != nil {
		t.Fatalf("Failed to save insight: %v", err)
	}

	// Jobs are ordered by created_at; make sure the second is strictly newer
	time.Sleep(10 * time.Millisecond)

	newJob, err := store.CreateAnalysisJob("elevenst", "123", JobCompleted)
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	if err := store.SaveMetrics(&MetricsRecord{JobID: newJob, TotalReviews: 9}); err != nil {
		t.Fatalf("Failed to save metrics: %v", err)
	}
	if err := store.SaveInsight(&InsightRecord{JobID: newJob, Summary: "new"}); err != nil {
		t.Fatalf("Failed to save insight: %v", err)
	}

	latestMetrics, err := store.GetLatestMetricsForProduct("elevenst", "123")
	if err != nil {
		t.Fatalf("Failed to get latest metrics: %v", err)
	}
	if latestMetrics == nil || latestMetrics.JobID != newJob {
		t.Errorf("Expected metrics from job %s, got %+v", newJob, latestMetrics)
	}
	if latestMetrics.TotalReviews != 9 {
		t.Errorf("Expected latest total 9, got %d", latestMetrics.TotalReviews)
	}

	latestInsight, err := store.GetLatestInsightForProduct("elevenst", "123")
	if err != nil {
		t.Fatalf("Failed to get latest insight: %v", err)
	}
	if latestInsight == nil || latestInsight.Summary != "new" {
		t.Errorf("Expected latest insight, got %+v", latestInsight)
	}
}

func TestGetLatestForProductMissing(t *testing.T) {
	store := newTestStorage(t, "test_latest_missing.db")

	record, err := store.GetLatestMetricsForProduct("elevenst", "ghost")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if record != nil {
		t.Errorf("Expected nil for product without analysis, got %+v", record)
	}
}
