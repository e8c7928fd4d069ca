package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job{Task: TaskStartSimulation, SimID: "a"}))
	require.NoError(t, q.Enqueue(ctx, Job{Task: TaskHandleAction, SimID: "a"}))

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, TaskStartSimulation, first.Task)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, TaskHandleAction, second.Task)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrNoJobs)
}

func TestMemoryQueueDelayedPromotion(t *testing.T) {
	q := NewMemory()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, q.EnqueueIn(ctx, Job{Task: TaskBackgroundCheck, SimID: "a"}, 10*time.Second))
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrNoJobs)

	now = now.Add(11 * time.Second)
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, TaskBackgroundCheck, job.Task)
}

func TestMemoryQueueDelayedOrdering(t *testing.T) {
	q := NewMemory()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, q.EnqueueIn(ctx, Job{Task: "late"}, 20*time.Second))
	require.NoError(t, q.EnqueueIn(ctx, Job{Task: "early"}, 5*time.Second))
	require.NoError(t, q.Enqueue(ctx, Job{Task: "immediate"}))

	now = now.Add(time.Minute)
	var order []string
	for {
		job, err := q.Dequeue(ctx)
		if err != nil {
			break
		}
		order = append(order, job.Task)
	}
	assert.Equal(t, []string{"immediate", "early", "late"}, order)
}

func TestMemoryQueueZeroDelayIsImmediate(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	require.NoError(t, q.EnqueueIn(ctx, Job{Task: TaskGenerateRating}, 0))
	ready, delayed := q.Len()
	assert.Equal(t, 1, ready)
	assert.Equal(t, 0, delayed)
}
