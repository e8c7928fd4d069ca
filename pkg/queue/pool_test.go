package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingExecutor collects executed jobs and reports their deadlines.
type recordingExecutor struct {
	mu        sync.Mutex
	jobs      []Job
	deadlines []bool
	block     chan struct{} // when non-nil, Execute waits for close
}

func (e *recordingExecutor) Execute(ctx context.Context, job Job) error {
	if e.block != nil {
		<-e.block
	}
	_, hasDeadline := ctx.Deadline()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, job)
	e.deadlines = append(e.deadlines, hasDeadline)
	return nil
}

func (e *recordingExecutor) executed() []Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Job{}, e.jobs...)
}

func TestWorkerPoolProcessesJobs(t *testing.T) {
	q := NewMemory()
	exec := &recordingExecutor{}
	pool := NewWorkerPool("pod-test", q, exec, Config{WorkerCount: 2, PollInterval: 5 * time.Millisecond})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, Job{Task: TaskBackgroundCheck, SimID: "sim-a"}))
	}
	pool.Start(ctx)
	defer pool.Stop()

	require.Eventually(t, func() bool {
		return len(exec.executed()) == 5
	}, 2*time.Second, 10*time.Millisecond)

	for _, hasDeadline := range exec.deadlines {
		assert.True(t, hasDeadline, "jobs must run under a timeout")
	}
}

func TestWorkerPoolStopWaitsForCurrentJob(t *testing.T) {
	q := NewMemory()
	exec := &recordingExecutor{block: make(chan struct{})}
	pool := NewWorkerPool("pod-test", q, exec, Config{WorkerCount: 1, PollInterval: 5 * time.Millisecond})

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Job{Task: TaskHandleAction, SimID: "sim-a"}))
	pool.Start(ctx)

	// Wait until the worker has claimed the job.
	require.Eventually(t, func() bool {
		ready, _ := q.Len()
		return ready == 0
	}, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Stop returned while a job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(exec.block)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the job finished")
	}
	assert.Len(t, exec.executed(), 1)
}

func TestWorkerPoolDuplicateStart(t *testing.T) {
	q := NewMemory()
	pool := NewWorkerPool("pod-test", q, &recordingExecutor{}, Config{WorkerCount: 1, PollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	pool.Start(ctx)
	pool.Start(ctx)
	assert.Len(t, pool.workers, 1)
	pool.Stop()
}

func TestWorkerRespectsJobTimeout(t *testing.T) {
	q := NewMemory()
	done := make(chan time.Duration, 1)
	exec := executorFunc(func(ctx context.Context, job Job) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		done <- time.Until(deadline)
		return nil
	})
	pool := NewWorkerPool("pod-test", q, exec, Config{WorkerCount: 1, PollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job{Task: TaskGenerateRating, Timeout: 5 * time.Minute}))
	pool.Start(ctx)
	defer pool.Stop()

	select {
	case remaining := <-done:
		assert.Greater(t, remaining, 4*time.Minute)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not executed")
	}
}

type executorFunc func(ctx context.Context, job Job) error

func (f executorFunc) Execute(ctx context.Context, job Job) error { return f(ctx, job) }
