// Package runtracker keeps an in-memory record of pipeline runs, one per
// product, so the API can report what the queue is currently doing without a
// database round trip.
package runtracker

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the current status of a pipeline run
type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusCrawling  RunStatus = "crawling"
	StatusAnalyzing RunStatus = "analyzing"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run represents one pass of a product through the pipeline
type Run struct {
	ID              string     `json:"id"`
	Source          string     `json:"source"`
	SourceProductID string     `json:"source_product_id"`
	TaskID          string     `json:"task_id,omitempty"`
	Status          RunStatus  `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func (r *Run) active() bool {
	return r.Status == StatusQueued || r.Status == StatusCrawling || r.Status == StatusAnalyzing
}

// Tracker handles in-memory pipeline run tracking
type Tracker struct {
	mu           sync.RWMutex
	runs         map[string]*Run
	productIndex map[string]string // source:id -> run ID, for duplicate detection
	ttl          time.Duration
}

// New creates a new run tracker. Finished runs are kept for ttl before
// Cleanup drops them.
func New(ttl time.Duration) *Tracker {
	return &Tracker{
		runs:         make(map[string]*Run),
		productIndex: make(map[string]string),
		ttl:          ttl,
	}
}

func productKey(source, sourceProductID string) string {
	return source + ":" + sourceProductID
}

// Create registers a new run for a product. If the product already has an
// active run, that run is returned instead of creating a second one.
func (t *Tracker) Create(source, sourceProductID, taskID string) *Run {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := productKey(source, sourceProductID)
	if existingID, exists := t.productIndex[key]; exists {
		if run, found := t.runs[existingID]; found && run.active() {
			return run
		}
	}

	run := &Run{
		ID:              uuid.New().String(),
		Source:          source,
		SourceProductID: sourceProductID,
		TaskID:          taskID,
		Status:          StatusQueued,
		CreatedAt:       time.Now().UTC(),
	}

	t.runs[run.ID] = run
	t.productIndex[key] = run.ID

	return run
}

// Get retrieves a run by ID
func (t *Tracker) Get(id string) (*Run, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	run, exists := t.runs[id]
	return run, exists
}

// List returns all tracked runs
func (t *Tracker) List() []*Run {
	t.mu.RLock()
	defer t.mu.RUnlock()

	runs := make([]*Run, 0, len(t.runs))
	for _, run := range t.runs {
		runs = append(runs, run)
	}

	return runs
}

// Publish records a product status transition against the product's active
// run. It satisfies the worker's event publisher interface, so the tracker
// follows the pipeline without the worker knowing about it.
func (t *Tracker) Publish(source, sourceProductID, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	runID, exists := t.productIndex[productKey(source, sourceProductID)]
	if !exists {
		return
	}
	run, exists := t.runs[runID]
	if !exists {
		return
	}

	switch status {
	case "CRAWLING":
		run.Status = StatusCrawling
	case "ANALYZING":
		run.Status = StatusAnalyzing
	case "ANALYZED":
		t.finish(run, StatusCompleted)
	case "FAILED":
		t.finish(run, StatusFailed)
	}
}

func (t *Tracker) finish(run *Run, status RunStatus) {
	run.Status = status
	now := time.Now().UTC()
	run.CompletedAt = &now
}

// Cleanup removes completed and failed runs older than the TTL
func (t *Tracker) Cleanup() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	removed := 0

	for id, run := range t.runs {
		if run.active() {
			continue
		}

		if run.CompletedAt != nil && now.Sub(*run.CompletedAt) > t.ttl {
			delete(t.productIndex, productKey(run.Source, run.SourceProductID))
			delete(t.runs, id)
			removed++
		}
	}

	return removed
}

// StartCleanupLoop starts a background goroutine that periodically drops old runs
func (t *Tracker) StartCleanupLoop(interval time.Duration) chan struct{} {
	stop := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.Cleanup()
			case <-stop:
				return
			}
		}
	}()

	return stop
}
