// Package queue provides the background job plumbing: a delayed-capable job
// queue and a worker pool that drains it. Simulation progress is driven
// entirely by these jobs, so the HTTP layer never blocks on the engine.
package queue

import (
	"context"
	"errors"
	"time"
)

// Task names understood by the executor.
const (
	TaskStartSimulation       = "start_simulation"
	TaskHandleAction          = "handle_action"
	TaskHandleBriefing        = "handle_briefing"
	TaskBackgroundCheck       = "background_check"
	TaskGenerateRating        = "generate_rating"
	TaskRequestUserRating     = "request_user_rating"
	TaskTriggerBriefingPrompt = "trigger_briefing_prompt"
)

// ErrNoJobs signals an empty queue; workers back off and poll again.
var ErrNoJobs = errors.New("no jobs available")

// Job is one unit of background work tied to a simulation.
type Job struct {
	Task    string
	SimID   string
	Args    map[string]any
	Timeout time.Duration
}

// Queue accepts jobs for immediate or delayed execution.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	EnqueueIn(ctx context.Context, job Job, delay time.Duration) error
}

// Executor runs one dequeued job. Implemented by the tasks package.
type Executor interface {
	Execute(ctx context.Context, job Job) error
}
