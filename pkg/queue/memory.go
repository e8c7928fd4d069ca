package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryQueue is an in-process FIFO with a delayed lane. Delayed jobs are
// promoted into the ready lane once due, preserving their relative order.
type MemoryQueue struct {
	mu      sync.Mutex
	ready   []Job
	delayed []delayedJob
	now     func() time.Time
}

type delayedJob struct {
	job   Job
	runAt time.Time
	seq   int
}

// NewMemory builds an empty queue.
func NewMemory() *MemoryQueue {
	return &MemoryQueue{now: time.Now}
}

// Enqueue appends a job to the ready lane.
func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = append(q.ready, job)
	return nil
}

// EnqueueIn schedules a job to become ready after delay.
func (q *MemoryQueue) EnqueueIn(ctx context.Context, job Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, job)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, delayedJob{
		job:   job,
		runAt: q.now().Add(delay),
		seq:   len(q.delayed),
	})
	return nil
}

// Dequeue pops the next ready job, promoting due delayed jobs first.
// Returns ErrNoJobs when nothing is ready.
func (q *MemoryQueue) Dequeue(_ context.Context) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.promoteDue()
	if len(q.ready) == 0 {
		return Job{}, ErrNoJobs
	}
	job := q.ready[0]
	q.ready = q.ready[1:]
	return job, nil
}

// promoteDue moves due delayed jobs into the ready lane. Caller holds the
// lock.
func (q *MemoryQueue) promoteDue() {
	if len(q.delayed) == 0 {
		return
	}
	now := q.now()
	var due []delayedJob
	remaining := q.delayed[:0]
	for _, d := range q.delayed {
		if !d.runAt.After(now) {
			due = append(due, d)
		} else {
			remaining = append(remaining, d)
		}
	}
	q.delayed = remaining
	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].runAt.Equal(due[j].runAt) {
			return due[i].runAt.Before(due[j].runAt)
		}
		return due[i].seq < due[j].seq
	})
	for _, d := range due {
		q.ready = append(q.ready, d.job)
	}
}

// Len reports ready plus delayed job counts.
func (q *MemoryQueue) Len() (ready, delayed int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready), len(q.delayed)
}
