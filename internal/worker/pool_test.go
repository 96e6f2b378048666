package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubResult struct {
	err error
}

func (r *stubResult) GetError() error { return r.err }

type countingJob struct {
	fail     bool
	executed *int32
}

func (j *countingJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.fail {
		return &stubResult{err: errors.New("job failed")}
	}
	return &stubResult{}
}

func TestNewPool_WorkerFloor(t *testing.T) {
	for _, n := range []int{0, -3} {
		if p := NewPool(n); p.workers != 1 {
			t.Errorf("NewPool(%d).workers = %d, want 1", n, p.workers)
		}
	}
	if p := NewPool(5); p.workers != 5 {
		t.Errorf("workers = %d, want 5", p.workers)
	}
}

func TestPool_RunsEveryJob(t *testing.T) {
	pool := NewPool(3)
	pool.Start()

	var executed int32
	const jobs = 20
	go func() {
		for i := 0; i < jobs; i++ {
			pool.Submit(&countingJob{executed: &executed, fail: i%4 == 0})
		}
		pool.Finish()
	}()

	var results []Result
	for result := range pool.Results() {
		results = append(results, result)
	}
	if len(results) != jobs {
		t.Fatalf("results = %d, want %d", len(results), jobs)
	}
	if got := atomic.LoadInt32(&executed); got != jobs {
		t.Errorf("executed = %d, want %d", got, jobs)
	}

	failed := 0
	for _, r := range results {
		if r.GetError() != nil {
			failed++
		}
	}
	if failed != 5 {
		t.Errorf("failed = %d, want 5", failed)
	}
}

type gateJob struct {
	started  func()
	finished func()
	release  <-chan struct{}
}

func (j *gateJob) Execute(ctx context.Context) Result {
	if j.started != nil {
		j.started()
	}
	select {
	case <-j.release:
	case <-ctx.Done():
	}
	if j.finished != nil {
		j.finished()
	}
	return &stubResult{}
}

func TestPool_BoundedConcurrency(t *testing.T) {
	const workers = 4
	pool := NewPool(workers)
	pool.Start()

	var current, peak int32
	var mu sync.Mutex
	release := make(chan struct{})

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	for i := 0; i < workers*3; i++ {
		pool.Submit(&gateJob{
			started: func() {
				c := atomic.AddInt32(&current, 1)
				mu.Lock()
				if c > peak {
					peak = c
				}
				mu.Unlock()
			},
			finished: func() { atomic.AddInt32(&current, -1) },
			release:  release,
		})
	}
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	if peak > workers {
		t.Errorf("peak concurrency %d exceeded %d workers", peak, workers)
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewPool(2)
	pool.Start()
	pool.Shutdown()

	done := make(chan struct{})
	go func() {
		pool.Submit(&countingJob{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit after shutdown blocked")
	}
}

func TestPool_ShutdownInterruptsJobs(t *testing.T) {
	pool := NewPool(1)
	pool.Start()

	started := make(chan struct{})
	pool.Submit(&gateJob{
		started: func() { close(started) },
		release: make(chan struct{}), // never released; only ctx frees it
	})
	<-started

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown timed out")
	}
}
