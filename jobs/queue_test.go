package jobs

import (
	"errors"
	"testing"
	"time"
)

// syncQueue runs workers inline so tests are deterministic.
func syncQueue() *Queue {
	return New(WithSubmit(func(fn func()) { fn() }))
}

func TestEnqueueAndGet(t *testing.T) {
	q := syncQueue()

	id := q.Enqueue("u1", func() (any, error) { return "resultado", nil })
	if len(id) != 12 {
		t.Errorf("job id %q, want 12 chars", id)
	}

	job := q.Get("u1", id)
	if job == nil {
		t.Fatal("job not found")
	}
	if job.Status != StatusDone {
		t.Errorf("status = %q", job.Status)
	}
	if job.Result != "resultado" {
		t.Errorf("result = %v", job.Result)
	}
}

func TestFailedJob(t *testing.T) {
	q := syncQueue()

	id := q.Enqueue("u1", func() (any, error) { return nil, errors.New("boom") })
	job := q.Get("u1", id)
	if job == nil || job.Status != StatusFailed {
		t.Fatalf("job = %+v", job)
	}
	if job.Error != "boom" {
		t.Errorf("error = %q", job.Error)
	}
}

func TestOwnership(t *testing.T) {
	q := syncQueue()
	id := q.Enqueue("u1", func() (any, error) { return 1, nil })

	if job := q.Get("u2", id); job != nil {
		t.Error("cross-user read returned a job")
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	q := syncQueue()
	id := q.Enqueue("u1", func() (any, error) { return "ok", nil })

	if q.transition(id, StatusRunning, nil, "") {
		t.Error("done job transitioned back to running")
	}
	job := q.Get("u1", id)
	if job.Status != StatusDone || job.Result != "ok" {
		t.Errorf("job mutated after terminal state: %+v", job)
	}
}

func TestTTLSweep(t *testing.T) {
	q := syncQueue()
	now := time.Now()
	q.now = func() time.Time { return now }

	id := q.Enqueue("u1", func() (any, error) { return 1, nil })

	now = now.Add(TTL + time.Second)
	if job := q.Get("u1", id); job != nil {
		t.Error("expired job still reachable")
	}

	m := q.Metrics()
	if m.Cleaned != 1 {
		t.Errorf("cleaned = %d", m.Cleaned)
	}
}

func TestMetrics(t *testing.T) {
	q := syncQueue()
	q.Enqueue("u", func() (any, error) { return 1, nil })
	q.Enqueue("u", func() (any, error) { return nil, errors.New("x") })

	m := q.Metrics()
	if m.Enqueued != 2 || m.Done != 1 || m.Failed != 1 {
		t.Errorf("metrics = %+v", m)
	}
	if m.StoredResults != 2 {
		t.Errorf("stored results = %d", m.StoredResults)
	}
	if m.TTLSeconds != 600 {
		t.Errorf("ttl = %v", m.TTLSeconds)
	}
}

func TestAsyncWorker(t *testing.T) {
	q := New()
	done := make(chan struct{})
	id := q.Enqueue("u1", func() (any, error) {
		close(done)
		return "ok", nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never ran")
	}

	// Poll for the terminal state; the transition happens just after fn.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if job := q.Get("u1", id); job != nil && job.Status == StatusDone {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached done")
}
