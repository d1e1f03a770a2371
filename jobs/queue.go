// Package jobs provides the in-memory queue for asynchronous chat jobs
// and background ZIP builds.
package jobs

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// TTL removes finished and abandoned jobs this long after their last
// update.
const TTL = 600 * time.Second

// Job is one queued unit of work and its eventual result.
type Job struct {
	ID        string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
	Result    any
	Error     string

	// UserID scopes result reads to the creator.
	UserID string
}

// Fn is the work a job performs.
type Fn func() (any, error)

// Metrics is a point-in-time view of queue counters.
type Metrics struct {
	Enqueued      int64   `json:"enqueued"`
	Done          int64   `json:"done"`
	Failed        int64   `json:"failed"`
	Cleaned       int64   `json:"cleaned"`
	QueuedNow     int     `json:"queued_now"`
	RunningNow    int     `json:"running_now"`
	StoredResults int     `json:"stored_results"`
	TTLSeconds    float64 `json:"ttl"`
}

// Queue is an in-memory job table with TTL-based cleanup. Work runs on
// a goroutine per job, or on a caller-supplied submit function.
type Queue struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
	now  func() time.Time

	// submit, when set, receives the worker closure instead of `go`.
	submit func(func())

	enqueued int64
	done     int64
	failed   int64
	cleaned  int64
}

// Option configures a Queue.
type Option func(*Queue)

// WithSubmit routes workers through an external scheduler.
func WithSubmit(submit func(func())) Option {
	return func(q *Queue) {
		q.submit = submit
	}
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		jobs: make(map[string]*Job),
		ttl:  TTL,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue registers a job and starts it. Returns the 12-char job id.
func (q *Queue) Enqueue(userID string, fn Fn) string {
	id := uuid.New().String()[:12]
	now := q.now()

	q.mu.Lock()
	q.sweepLocked()
	q.jobs[id] = &Job{
		ID:        id,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		UserID:    userID,
	}
	q.enqueued++
	q.mu.Unlock()

	worker := func() { q.run(id, fn) }
	if q.submit != nil {
		q.submit(worker)
	} else {
		go worker()
	}

	return id
}

func (q *Queue) run(id string, fn Fn) {
	if !q.transition(id, StatusRunning, nil, "") {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("job panicked", "job_id", id, "panic", r)
			q.transition(id, StatusFailed, nil, "internal error")
		}
	}()

	result, err := fn()
	if err != nil {
		q.transition(id, StatusFailed, nil, err.Error())
		return
	}
	q.transition(id, StatusDone, result, "")
}

// transition moves a job forward. Terminal states are final; a stale
// transition is dropped.
func (q *Queue) transition(id string, to Status, result any, errMsg string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return false
	}
	if job.Status == StatusDone || job.Status == StatusFailed {
		return false
	}

	job.Status = to
	job.UpdatedAt = q.now()
	switch to {
	case StatusDone:
		job.Result = result
		q.done++
	case StatusFailed:
		job.Error = errMsg
		q.failed++
	}
	return true
}

// Get returns a snapshot of the job, or nil when unknown, expired, or
// owned by another user.
func (q *Queue) Get(userID, id string) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.sweepLocked()

	job, ok := q.jobs[id]
	if !ok {
		return nil
	}
	if job.UserID != "" && job.UserID != userID {
		return nil
	}
	snapshot := *job
	return &snapshot
}

// sweepLocked removes entries whose UpdatedAt is older than the TTL.
// Caller holds q.mu.
func (q *Queue) sweepLocked() {
	cutoff := q.now().Add(-q.ttl)
	for id, job := range q.jobs {
		if job.UpdatedAt.Before(cutoff) {
			delete(q.jobs, id)
			q.cleaned++
		}
	}
}

// Metrics returns the queue counters.
func (q *Queue) Metrics() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()

	m := Metrics{
		Enqueued:   q.enqueued,
		Done:       q.done,
		Failed:     q.failed,
		Cleaned:    q.cleaned,
		TTLSeconds: q.ttl.Seconds(),
	}
	for _, job := range q.jobs {
		switch job.Status {
		case StatusQueued:
			m.QueuedNow++
		case StatusRunning:
			m.RunningNow++
		case StatusDone, StatusFailed:
			m.StoredResults++
		}
	}
	return m
}
