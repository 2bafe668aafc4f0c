package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/fplsage/sage-api/internal/domain/analysis"
)

type sequentialIDs struct {
	next int
}

func (s *sequentialIDs) NewID() (string, error) {
	s.next++
	return "job-" + string(rune('a'+s.next-1)), nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(&sequentialIDs{}, nil, time.Hour)
}

func TestStore_Create_StartsInQueuedStatus(t *testing.T) {
	store := newTestStore(t)

	job, err := store.Create(1, 5, analysis.Overrides{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != analysis.JobQueued {
		t.Fatalf("expected queued status, got %s", job.Status)
	}
	if job.ID == "" {
		t.Fatalf("expected a non-empty job id")
	}
}

func TestStore_Transition_AppliesLegalEdge(t *testing.T) {
	store := newTestStore(t)
	job, _ := store.Create(1, 5, analysis.Overrides{})

	store.Transition(job.ID, analysis.JobRunning, func(j *analysis.Job) { j.Phase = "collecting" })

	got, ok := store.Get(job.ID)
	if !ok {
		t.Fatalf("expected job to exist")
	}
	if got.Status != analysis.JobRunning || got.Phase != "collecting" {
		t.Fatalf("unexpected job state: %+v", got)
	}
}

func TestStore_Transition_DropsIllegalEdge(t *testing.T) {
	store := newTestStore(t)
	job, _ := store.Create(1, 5, analysis.Overrides{})

	// queued -> completed is not a legal edge; must go through running first.
	store.Transition(job.ID, analysis.JobCompleted, nil)

	got, _ := store.Get(job.ID)
	if got.Status != analysis.JobQueued {
		t.Fatalf("expected status to remain queued after illegal transition, got %s", got.Status)
	}
}

func TestStore_Update_NoopOnTerminalJob(t *testing.T) {
	store := newTestStore(t)
	job, _ := store.Create(1, 5, analysis.Overrides{})
	store.Transition(job.ID, analysis.JobRunning, nil)
	store.Transition(job.ID, analysis.JobCompleted, nil)

	store.Update(job.ID, func(j *analysis.Job) { j.Phase = "should not apply" })

	got, _ := store.Get(job.ID)
	if got.Phase == "should not apply" {
		t.Fatalf("expected update on terminal job to be dropped")
	}
}

func TestStore_Subscribe_ReceivesPublishedEvents(t *testing.T) {
	store := newTestStore(t)
	job, _ := store.Create(1, 5, analysis.Overrides{})

	sub, ok := store.Subscribe(job.ID)
	if !ok {
		t.Fatalf("expected subscribe to succeed")
	}
	defer sub.Cancel()

	store.Publish(job.ID, analysis.Event{Type: analysis.EventProgress, Progress: 0.5})

	select {
	case event := <-sub.Events:
		if event.Progress != 0.5 {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for published event")
	}
}

func TestStore_Publish_DropsOldestWhenSubscriberQueueFull(t *testing.T) {
	store := newTestStore(t)
	job, _ := store.Create(1, 5, analysis.Overrides{})

	sub, ok := store.Subscribe(job.ID)
	if !ok {
		t.Fatalf("expected subscribe to succeed")
	}
	defer sub.Cancel()

	for i := 0; i < subscriptionQueueCapacity+5; i++ {
		store.Publish(job.ID, analysis.Event{Type: analysis.EventProgress, Progress: float64(i)})
	}

	// Queue never blocks the publisher and retains at most its capacity;
	// draining should not hang, and the 5 oldest events are the ones lost.
	drained := 0
	first := -1.0
	for {
		select {
		case event := <-sub.Events:
			if drained == 0 {
				first = event.Progress
			}
			drained++
		default:
			if drained == 0 {
				t.Fatalf("expected at least one buffered event")
			}
			if drained > subscriptionQueueCapacity {
				t.Fatalf("drained more events than queue capacity: %d", drained)
			}
			if first != 5 {
				t.Fatalf("expected oldest buffered event progress=5 after dropping the 5 oldest, got %v", first)
			}
			return
		}
	}
}

func TestStore_Reap_RemovesExpiredTerminalJobs(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }

	job, _ := store.Create(1, 5, analysis.Overrides{})
	store.Transition(job.ID, analysis.JobRunning, nil)
	store.Transition(job.ID, analysis.JobCompleted, func(j *analysis.Job) { j.FinishedAt = now })

	store.clock = func() time.Time { return now.Add(2 * time.Hour) }

	if removed := store.Reap(); removed != 1 {
		t.Fatalf("expected 1 job reaped, got %d", removed)
	}
	if _, ok := store.Get(job.ID); ok {
		t.Fatalf("expected job to be gone after reap")
	}
}

func TestStore_Reap_KeepsJobsWithinRetentionWindow(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }

	job, _ := store.Create(1, 5, analysis.Overrides{})
	store.Transition(job.ID, analysis.JobRunning, nil)
	store.Transition(job.ID, analysis.JobCompleted, func(j *analysis.Job) { j.FinishedAt = now })

	if removed := store.Reap(); removed != 0 {
		t.Fatalf("expected 0 jobs reaped within retention window, got %d", removed)
	}
	if _, ok := store.Get(job.ID); !ok {
		t.Fatalf("expected job to still exist")
	}
}

func TestStore_RunReaper_StopsOnContextCancel(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		store.RunReaper(ctx, 5*time.Millisecond)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected RunReaper to return after context cancellation")
	}
}
