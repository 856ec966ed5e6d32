package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle status of an analysis job
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// AnalysisJob is one execution instance of the two-stage analysis
type AnalysisJob struct {
	ID              string    `json:"id"`
	Source          string    `json:"source"`
	SourceProductID string    `json:"source_product_id"`
	Status          JobStatus `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// MetricsRecord holds the structured stage-1 output, 1:1 with a job
type MetricsRecord struct {
	JobID        string                 `json:"job_id"`
	TotalReviews int                    `json:"total_reviews"`
	Sentiment    map[string]float64     `json:"sentiment"`
	Aspects      map[string]interface{} `json:"aspects"`
	Keywords     []string               `json:"keywords"`
	Issues       []string               `json:"issues"`
	Trend        map[string]float64     `json:"trend"`
	CreatedAt    time.Time              `json:"created_at"`
}

// InsightRecord holds the narrative stage-2 output, 1:1 with a job
type InsightRecord struct {
	JobID       string                 `json:"job_id"`
	Summary     string                 `json:"summary"`
	Insights    map[string][]string    `json:"insights"`
	Metadata    map[string]interface{} `json:"metadata"`
	EvidenceIDs []string               `json:"evidence_ids"`
	CreatedAt   time.Time              `json:"created_at"`
}

// CreateAnalysisJob inserts a new job bound to the product and returns its id
func (s *Storage) CreateAnalysisJob(source, sourceProductID string, status JobStatus) (string, error) {
	jobID := uuid.New().String()

	_, err := s.db.Exec(`
		INSERT INTO analysis_jobs (id, source, source_product_id, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, jobID, source, sourceProductID, string(status), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to create analysis job: %w", err)
	}

	return jobID, nil
}

// GetAnalysisJob retrieves a job by id. Returns (nil, nil) when absent.
func (s *Storage) GetAnalysisJob(jobID string) (*AnalysisJob, error) {
	job := &AnalysisJob{}
	var status string

	err := s.db.QueryRow(`
		SELECT id, source, source_product_id, status, created_at FROM analysis_jobs WHERE id = ?
	`, jobID).Scan(&job.ID, &job.Source, &job.SourceProductID, &status, &job.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis job: %w", err)
	}

	job.Status = JobStatus(status)
	return job, nil
}

// UpdateJobStatus writes the job status
func (s *Storage) UpdateJobStatus(jobID string, status JobStatus) error {
	res, err := s.db.Exec(`UPDATE analysis_jobs SET status = ? WHERE id = ?`, string(status), jobID)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("analysis job %s not found", jobID)
	}

	return nil
}

// SaveMetrics persists the stage-1 metrics record for a job
func (s *Storage) SaveMetrics(m *MetricsRecord) error {
	sentimentJSON, err := json.Marshal(m.Sentiment)
	if err != nil {
		return fmt.Errorf("failed to marshal sentiment: %w", err)
	}
	aspectsJSON, err := json.Marshal(m.Aspects)
	if err != nil {
		return fmt.Errorf("failed to marshal aspects: %w", err)
	}
	keywordsJSON, err := json.Marshal(m.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	issuesJSON, err := json.Marshal(m.Issues)
	if err != nil {
		return fmt.Errorf("failed to marshal issues: %w", err)
	}
	trendJSON, err := json.Marshal(m.Trend)
	if err != nil {
		return fmt.Errorf("failed to marshal trend: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO analysis_result (job_id, total_reviews, sentiment_json, aspects_json, keywords_json, issues_json, trend_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.JobID, m.TotalReviews, string(sentimentJSON), string(aspectsJSON), string(keywordsJSON), string(issuesJSON), string(trendJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save metrics: %w", err)
	}

	return nil
}

// GetMetrics retrieves the metrics record for a job. Returns (nil, nil) when absent.
func (s *Storage) GetMetrics(jobID string) (*MetricsRecord, error) {
	return s.scanMetrics(s.db.QueryRow(`
		SELECT job_id, total_reviews, sentiment_json, aspects_json, keywords_json, issues_json, trend_json, created_at
		FROM analysis_result WHERE job_id = ?
	`, jobID))
}

// SaveInsight persists the stage-2 insight record for a job
func (s *Storage) SaveInsight(in *InsightRecord) error {
	insightsJSON, err := json.Marshal(in.Insights)
	if err != nil {
		return fmt.Errorf("failed to marshal insights: %w", err)
	}
	metadataJSON, err := json.Marshal(in.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	evidenceJSON, err := json.Marshal(in.EvidenceIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence ids: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO insight_result (job_id, summary, insights_json, metadata_json, evidence_ids_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, in.JobID, in.Summary, string(insightsJSON), string(metadataJSON), string(evidenceJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save insight: %w", err)
	}

	return nil
}

// GetInsight retrieves the insight record for a job. Returns (nil, nil) when absent.
func (s *Storage) GetInsight(jobID string) (*InsightRecord, error) {
	return s.scanInsight(s.db.QueryRow(`
		SELECT job_id, summary, insights_json, metadata_json, evidence_ids_json, created_at
		FROM insight_result WHERE job_id = ?
	`, jobID))
}

// GetLatestMetricsForProduct returns the metrics record of the most
// recently created job that has one, regardless of job status. Returns
// (nil, nil) when no job for the product produced metrics.
func (s *Storage) GetLatestMetricsForProduct(source, sourceProductID string) (*MetricsRecord, error) {
	return s.scanMetrics(s.db.QueryRow(`
		SELECT ar.job_id, ar.total_reviews, ar.sentiment_json, ar.aspects_json, ar.keywords_json, ar.issues_json, ar.trend_json, ar.created_at
		FROM analysis_result ar
		JOIN analysis_jobs aj ON aj.id = ar.job_id
		WHERE aj.source = ? AND aj.source_product_id = ?
		ORDER BY aj.created_at DESC
		LIMIT 1
	`, source, sourceProductID))
}

// GetLatestInsightForProduct returns the insight record of the most
// recently created job that has one. Returns (nil, nil) when absent.
func (s *Storage) GetLatestInsightForProduct(source, sourceProductID string) (*InsightRecord, error) {
	return s.scanInsight(s.db.QueryRow(`
		SELECT ir.job_id, ir.summary, ir.insights_json, ir.metadata_json, ir.evidence_ids_json, ir.created_at
		FROM insight_result ir
		JOIN analysis_jobs aj ON aj.id = ir.job_id
		WHERE aj.source = ? AND aj.source_product_id = ?
		ORDER BY aj.created_at DESC
		LIMIT 1
	`, source, sourceProductID))
}

func (s *Storage) scanMetrics(row *sql.Row) (*MetricsRecord, error) {
	m := &MetricsRecord{}
	var sentimentJSON, aspectsJSON, keywordsJSON, issuesJSON, trendJSON sql.NullString

	err := row.Scan(&m.JobID, &m.TotalReviews, &sentimentJSON, &aspectsJSON, &keywordsJSON, &issuesJSON, &trendJSON, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan metrics: %w", err)
	}

	if sentimentJSON.Valid && sentimentJSON.String != "" {
		if err := json.Unmarshal([]byte(sentimentJSON.String), &m.Sentiment); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sentiment: %w", err)
		}
	}
	if aspectsJSON.Valid && aspectsJSON.String != "" {
		if err := json.Unmarshal([]byte(aspectsJSON.String), &m.Aspects); err != nil {
			return nil, fmt.Errorf("failed to unmarshal aspects: %w", err)
		}
	}
	if keywordsJSON.Valid && keywordsJSON.String != "" {
		if err := json.Unmarshal([]byte(keywordsJSON.String), &m.Keywords); err != nil {
			return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
		}
	}
	if issuesJSON.Valid && issuesJSON.String != "" {
		if err := json.Unmarshal([]byte(issuesJSON.String), &m.Issues); err != nil {
			return nil, fmt.Errorf("failed to unmarshal issues: %w", err)
		}
	}
	if trendJSON.Valid && trendJSON.String != "" {
		if err := json.Unmarshal([]byte(trendJSON.String), &m.Trend); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trend: %w", err)
		}
	}

	return m, nil
}

func (s *Storage) scanInsight(row *sql.Row) (*InsightRecord, error) {
	in := &InsightRecord{}
	var insightsJSON, metadataJSON, evidenceJSON sql.NullString

	err := row.Scan(&in.JobID, &in.Summary, &insightsJSON, &metadataJSON, &evidenceJSON, &in.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan insight: %w", err)
	}

	if insightsJSON.Valid && insightsJSON.String != "" {
		if err := json.Unmarshal([]byte(insightsJSON.String), &in.Insights); err != nil {
			return nil, fmt.Errorf("failed to unmarshal insights: %w", err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &in.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if evidenceJSON.Valid && evidenceJSON.String != "" {
		if err := json.Unmarshal([]byte(evidenceJSON.String), &in.EvidenceIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal evidence ids: %w", err)
		}
	}

	return in, nil
}
