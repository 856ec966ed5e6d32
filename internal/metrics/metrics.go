// Package metrics defines the Prometheus collectors for the review pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics groups the pipeline-level collectors
type BusinessMetrics struct {
	CrawlTasksTotal    *prometheus.CounterVec   // platform, outcome
	AnalysisTasksTotal *prometheus.CounterVec   // platform, outcome
	ReviewsSavedTotal  *prometheus.CounterVec   // platform
	ReviewsDupTotal    *prometheus.CounterVec   // platform
	AnalysisJobsTotal  *prometheus.CounterVec   // outcome
	LLMCallDuration    *prometheus.HistogramVec // stage
	TaskQueueWaitTime  *prometheus.HistogramVec // task_type
}

// New registers and returns the business metrics on the given registerer
func New(reg prometheus.Registerer) *BusinessMetrics {
	factory := promauto.With(reg)

	return &BusinessMetrics{
		CrawlTasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewpulse_crawl_tasks_total",
			Help: "Crawl task executions by platform and outcome",
		}, []string{"platform", "outcome"}),
		AnalysisTasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewpulse_analysis_tasks_total",
			Help: "Analysis task executions by platform and outcome",
		}, []string{"platform", "outcome"}),
		ReviewsSavedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewpulse_reviews_saved_total",
			Help: "New review rows persisted after dedup",
		}, []string{"platform"}),
		ReviewsDupTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewpulse_reviews_duplicate_total",
			Help: "Incoming reviews dropped as duplicates",
		}, []string{"platform"}),
		AnalysisJobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewpulse_analysis_jobs_total",
			Help: "Analysis job terminal outcomes",
		}, []string{"outcome"}),
		LLMCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reviewpulse_llm_call_duration_seconds",
			Help:    "Duration of LLM analysis calls by stage",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"stage"}),
		TaskQueueWaitTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reviewpulse_task_queue_wait_seconds",
			Help:    "Time tasks spent queued before a worker picked them up",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"task_type"}),
	}
}
