// Package jobstore is the in-process JobStore: the only mutable shared
// state this service keeps outside Redis. It tracks one Job per
// accepted analysis request, fans out progress/terminal events to
// WebSocket subscribers, and reaps terminated jobs after a retention
// window.
package jobstore

import (
	"context"
	"sync"
	"time"

	"github.com/fplsage/sage-api/internal/domain/analysis"
	"github.com/fplsage/sage-api/internal/platform/idgen"
	"github.com/fplsage/sage-api/internal/platform/logging"
)

const subscriptionQueueCapacity = 32

type record struct {
	mu   sync.Mutex
	job  analysis.Job
	subs map[int]chan analysis.Event
	next int
}

// Store is the JobStore component.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*record
	ids     idgen.Generator
	logger  *logging.Logger
	clock   func() time.Time
	retain  time.Duration
}

func New(ids idgen.Generator, logger *logging.Logger, retention time.Duration) *Store {
	if ids == nil {
		ids = idgen.NewJobIDGenerator()
	}
	if logger == nil {
		logger = logging.Default()
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Store{
		jobs:   make(map[string]*record),
		ids:    ids,
		logger: logger,
		clock:  time.Now,
		retain: retention,
	}
}

// Create allocates a new queued Job for a request and registers it.
func (s *Store) Create(teamID, gameweek int, overrides analysis.Overrides) (analysis.Job, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return analysis.Job{}, err
	}

	job := analysis.Job{
		ID:        id,
		TeamID:    teamID,
		Gameweek:  gameweek,
		Overrides: overrides,
		Status:    analysis.JobQueued,
		Phase:     "queued",
		CreatedAt: s.clock(),
	}

	s.mu.Lock()
	s.jobs[id] = &record{job: job, subs: make(map[int]chan analysis.Event)}
	s.mu.Unlock()

	return job, nil
}

// Get returns a snapshot of the job, if it still exists.
func (s *Store) Get(id string) (analysis.Job, bool) {
	s.mu.RLock()
	rec, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return analysis.Job{}, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.job, true
}

// Mutator reads and mutates a Job under its own lock. Mutators must be
// pure/fast: no I/O, no blocking, since the lock is held for the
// duration of the call.
type Mutator func(job *analysis.Job)

// Update applies mutator to the job under its per-job lock. It is a
// no-op, logged at warn level, once the job is terminal or missing —
// terminal jobs are immutable by invariant.
func (s *Store) Update(id string, mutator Mutator) {
	s.mu.RLock()
	rec, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		s.logger.Warn("job update on unknown job", "job_id", id)
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.job.Status.Terminal() {
		s.logger.Warn("job update attempted on terminal job, dropped", "job_id", id, "status", rec.job.Status)
		return
	}
	mutator(&rec.job)
}

// Transition moves a job from its current status to `to`, dropping the
// mutation with a warning (not an error) when the edge is illegal —
// duplicate terminal events from a racing background task are expected,
// not exceptional.
func (s *Store) Transition(id string, to analysis.JobStatus, apply Mutator) {
	s.mu.RLock()
	rec, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !analysis.CanTransition(rec.job.Status, to) {
		s.logger.Warn("illegal job transition dropped", "job_id", id, "from", rec.job.Status, "to", to)
		return
	}
	rec.job.Status = to
	if apply != nil {
		apply(&rec.job)
	}
}

// Subscribe registers a live subscriber for job events. The returned
// channel has a bounded capacity; a slow reader sees the oldest
// undelivered event dropped rather than blocking the publisher.
func (s *Store) Subscribe(id string) (analysis.JobSubscription, bool) {
	s.mu.RLock()
	rec, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return analysis.JobSubscription{}, false
	}

	rec.mu.Lock()
	ch := make(chan analysis.Event, subscriptionQueueCapacity)
	subID := rec.next
	rec.next++
	rec.subs[subID] = ch
	rec.mu.Unlock()

	cancel := func() {
		rec.mu.Lock()
		if existing, ok := rec.subs[subID]; ok {
			delete(rec.subs, subID)
			close(existing)
		}
		rec.mu.Unlock()
	}

	return analysis.JobSubscription{JobID: id, Events: ch, Cancel: cancel}, true
}

// Publish broadcasts an event to every live subscriber of a job. Full
// subscriber queues have their oldest entry dropped to make room — the
// publisher never blocks on a slow consumer.
func (s *Store) Publish(id string, event analysis.Event) {
	s.mu.RLock()
	rec, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, ch := range rec.subs {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// Reap removes every job that has been terminal for longer than the
// store's retention window. Intended to run periodically from a
// background goroutine (see RunReaper).
func (s *Store) Reap() int {
	cutoff := s.clock().Add(-s.retain)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.jobs {
		rec.mu.Lock()
		expired := rec.job.Status.Terminal() && !rec.job.FinishedAt.IsZero() && rec.job.FinishedAt.Before(cutoff)
		rec.mu.Unlock()
		if expired {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// RunReaper sweeps expired jobs on an interval until ctx is cancelled.
func (s *Store) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Reap(); removed > 0 {
				s.logger.Info("reaped expired analysis jobs", "count", removed)
			}
		}
	}
}
