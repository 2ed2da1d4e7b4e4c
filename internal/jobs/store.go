// Package jobs tracks long-running requests, such as asynchronous batch
// merges, by id.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"declutter-go/internal/declutter"
)

// Job states.
const (
	StateRunning   = "running"
	StateDone      = "done"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

// ErrNotFound is returned for unknown or expired job ids.
var ErrNotFound = errors.New("job not found")

// Job is a snapshot of a tracked job.
type Job struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	OwnerID    int64      `json:"owner_id"`
	State      string     `json:"state"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type entry struct {
	job    Job
	cancel context.CancelFunc
}

// Store is a concurrent keyed job table. Finished jobs expire ttl after they
// finish; expired entries are swept on each access. Running jobs never expire.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	clock   declutter.Clock
	ids     declutter.IDGenerator
}

func NewStore(ttl time.Duration, clock declutter.Clock, ids declutter.IDGenerator) *Store {
	if clock == nil {
		clock = declutter.RealClock{}
	}
	if ids == nil {
		ids = declutter.UUIDGenerator{}
	}
	return &Store{
		entries: make(map[string]*entry),
		ttl:     ttl,
		clock:   clock,
		ids:     ids,
	}
}

// Create registers a running job and returns it with a context derived from
// parent that is cancelled by Cancel.
func (s *Store) Create(parent context.Context, kind string, ownerID int64) (Job, context.Context) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	e := &entry{
		job: Job{
			ID:        s.ids.New(),
			Kind:      kind,
			OwnerID:   ownerID,
			State:     StateRunning,
			CreatedAt: s.clock.Now(),
		},
		cancel: cancel,
	}
	s.entries[e.job.ID] = e
	return e.job, ctx
}

// Get returns the job. Jobs of other owners are reported as not found.
func (s *Store) Get(id string, ownerID int64) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	e, ok := s.entries[id]
	if !ok || e.job.OwnerID != ownerID {
		return Job{}, ErrNotFound
	}
	return e.job, nil
}

// Finish records the outcome. A job that was cancelled stays cancelled but
// keeps the partial result.
func (s *Store) Finish(id string, result any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return
	}
	switch e.job.State {
	case StateCancelled:
		e.job.Result = result
	case StateRunning:
		e.job.Result = result
		e.job.State = StateDone
		if err != nil {
			e.job.State = StateFailed
			e.job.Error = err.Error()
		}
		now := s.clock.Now()
		e.job.FinishedAt = &now
	}
	e.cancel()
}

// Cancel cancels a running job's context. Cancelling a finished job is a
// no-op.
func (s *Store) Cancel(id string, ownerID int64) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	e, ok := s.entries[id]
	if !ok || e.job.OwnerID != ownerID {
		return Job{}, ErrNotFound
	}
	if e.job.State == StateRunning {
		e.cancel()
		e.job.State = StateCancelled
		now := s.clock.Now()
		e.job.FinishedAt = &now
	}
	return e.job, nil
}

// Len returns the number of tracked jobs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	return len(s.entries)
}

func (s *Store) sweepLocked() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.clock.Now().Add(-s.ttl)
	for id, e := range s.entries {
		if e.job.FinishedAt != nil && e.job.FinishedAt.Before(cutoff) {
			e.cancel()
			delete(s.entries, id)
		}
	}
}
