package jobs

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Observer is notified after a record changes. prev is the zero Job for newly
// created records. Observers run outside the registry lock and must not block
// for long; per-job notifications arrive in commit order because each job is
// only ever mutated by one goroutine at a time.
type Observer interface {
	JobChanged(prev, next Job)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(prev, next Job)

// JobChanged calls f(prev, next).
func (f ObserverFunc) JobChanged(prev, next Job) { f(prev, next) }

// Registry is the process-wide table of jobs.
type Registry struct {
	mu        sync.RWMutex
	jobs      map[string]Job
	observers []Observer
	now       func() time.Time
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// AddObserver registers o for change notifications.
func (r *Registry) AddObserver(o Observer) {
	if o == nil {
		return
	}
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

// Create inserts a new job in the uploaded state.
func (r *Registry) Create(id, filename string, kind MediaKind, inputPath string) (Job, error) {
	id = strings.TrimSpace(id)
	now := r.now()
	job := Job{
		ID:               id,
		InputPath:        inputPath,
		OriginalFilename: filename,
		MediaKind:        kind,
		Status:           StatusUploaded,
		Progress:         ProgressQueued,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := job.validate(); err != nil {
		return Job{}, err
	}

	r.mu.Lock()
	if _, exists := r.jobs[id]; exists {
		r.mu.Unlock()
		return Job{}, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	r.jobs[id] = job
	observers := r.observers
	r.mu.Unlock()

	notify(observers, Job{}, job)
	return job, nil
}

// Get returns a snapshot of the job.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	job, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job, nil
}

// Update applies mutate to a copy of the job and commits the result if it is
// a legal successor. A mutator error or failed check leaves the stored record
// untouched.
func (r *Registry) Update(id string, mutate func(*Job) error) (Job, error) {
	r.mu.Lock()
	prev, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := prev
	if err := mutate(&next); err != nil {
		r.mu.Unlock()
		return prev, err
	}
	if err := checkUpdate(prev, next); err != nil {
		r.mu.Unlock()
		return prev, err
	}
	now := r.now()
	next.UpdatedAt = now
	if next.Status != prev.Status {
		next.StageStartedAt = now
		if next.Status.IsTerminal() {
			next.FinishedAt = now
		}
	}
	r.jobs[id] = next
	observers := r.observers
	r.mu.Unlock()

	notify(observers, prev, next)
	return next, nil
}

// List returns snapshots of every job ordered by creation time.
func (r *Registry) List() []Job {
	r.mu.RLock()
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Counts returns the number of jobs per status.
func (r *Registry) Counts() map[Status]int {
	counts := make(map[Status]int, len(allStatuses))
	r.mu.RLock()
	for _, job := range r.jobs {
		counts[job.Status]++
	}
	r.mu.RUnlock()
	return counts
}

// Len reports the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

func notify(observers []Observer, prev, next Job) {
	for _, o := range observers {
		o.JobChanged(prev, next)
	}
}
