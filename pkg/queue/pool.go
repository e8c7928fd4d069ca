package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Config tunes the worker pool.
type Config struct {
	WorkerCount        int
	PollInterval       time.Duration
	PollIntervalJitter time.Duration
	DefaultJobTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.DefaultJobTimeout <= 0 {
		c.DefaultJobTimeout = 60 * time.Second
	}
	return c
}

// Dequeuer is the consuming side of a queue.
type Dequeuer interface {
	Dequeue(ctx context.Context) (Job, error)
}

// WorkerPool manages a pool of queue workers.
type WorkerPool struct {
	podID    string
	queue    Dequeuer
	executor Executor
	config   Config
	workers  []*Worker
	started  bool
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(podID string, q Dequeuer, executor Executor, cfg Config) *WorkerPool {
	cfg = cfg.withDefaults()
	return &WorkerPool{
		podID:    podID,
		queue:    q,
		executor: executor,
		config:   cfg,
		workers:  make([]*Worker, 0, cfg.WorkerCount),
	}
}

// Start spawns the worker goroutines. Safe to call multiple times; subsequent
// calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return
	}
	p.started = true

	slog.Info("Starting worker pool", "pod_id", p.podID, "worker_count", p.config.WorkerCount)
	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.podID, p.queue, p.executor, p.config)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}
	slog.Info("Worker pool started")
}

// Stop signals all workers to stop and waits for them to finish. Workers
// complete their current job before exiting.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")
	var wg sync.WaitGroup
	for _, worker := range p.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Stop()
		}()
	}
	wg.Wait()
	slog.Info("Worker pool stopped gracefully")
}
