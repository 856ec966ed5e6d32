package runtracker

import (
	"testing"
	"time"
)

func TestCreateAndGet(t *testing.T) {
	tracker := New(time.Hour)

	run := tracker.Create("elevenst", "123", "task-1")
	if run.Status != StatusQueued {
		t.Errorf("Expected queued run, got %s", run.Status)
	}

	got, ok := tracker.Get(run.ID)
	if !ok {
		t.Fatal("Expected to find run by id")
	}
	if got.TaskID != "task-1" {
		t.Errorf("Unexpected task id %q", got.TaskID)
	}
}

func TestCreateReturnsActiveRun(t *testing.T) {
	tracker := New(time.Hour)

	first := tracker.Create("elevenst", "123", "task-1")
	second := tracker.Create("elevenst", "123", "task-2")

	// While a run is active the product gets no second run
	if second.ID != first.ID {
		t.Errorf("Expected active run to be reused, got %s and %s", first.ID, second.ID)
	}

	// A finished run no longer blocks a new one
	tracker.Publish("elevenst", "123", "ANALYZED")
	third := tracker.Create("elevenst", "123", "task-3")
	if third.ID == first.ID {
		t.Error("Expected a fresh run after the previous one completed")
	}
}

func TestPublishDrivesRunStatus(t *testing.T) {
	tracker := New(time.Hour)
	run := tracker.Create("elevenst", "123", "task-1")

	tracker.Publish("elevenst", "123", "CRAWLING")
	if got, _ := tracker.Get(run.ID); got.Status != StatusCrawling {
		t.Errorf("Expected crawling, got %s", got.Status)
	}

	tracker.Publish("elevenst", "123", "ANALYZING")
	if got, _ := tracker.Get(run.ID); got.Status != StatusAnalyzing {
		t.Errorf("Expected analyzing, got %s", got.Status)
	}

	tracker.Publish("elevenst", "123", "ANALYZED")
	got, _ := tracker.Get(run.ID)
	if got.Status != StatusCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("Expected completion timestamp")
	}
}

func TestPublishFailureMarksRunFailed(t *testing.T) {
	tracker := New(time.Hour)
	run := tracker.Create("elevenst", "123", "task-1")

	tracker.Publish("elevenst", "123", "FAILED")
	if got, _ := tracker.Get(run.ID); got.Status != StatusFailed {
		t.Errorf("Expected failed, got %s", got.Status)
	}
}

func TestPublishUnknownProductIgnored(t *testing.T) {
	tracker := New(time.Hour)

	// Must not panic or create runs
	tracker.Publish("elevenst", "ghost", "CRAWLING")
	if len(tracker.List()) != 0 {
		t.Error("Expected no runs for unknown product")
	}
}

func TestCleanup(t *testing.T) {
	tracker := New(time.Millisecond)

	run := tracker.Create("elevenst", "123", "task-1")
	active := tracker.Create("gmarket", "G1", "task-2")

	tracker.Publish("elevenst", "123", "ANALYZED")
	time.Sleep(5 * time.Millisecond)

	removed := tracker.Cleanup()
	if removed != 1 {
		t.Errorf("Expected 1 run removed, got %d", removed)
	}
	if _, ok := tracker.Get(run.ID); ok {
		t.Error("Expected finished run to be cleaned up")
	}
	if _, ok := tracker.Get(active.ID); !ok {
		t.Error("Active run must survive cleanup")
	}
}
