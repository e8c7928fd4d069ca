// Package tasks executes the background jobs that drive simulations: the
// start flow, player actions, the self-rescheduling background tick, and the
// debrief rating chain. Each task loads state from the store, runs the
// engine, saves, and publishes the emitted events.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/cybersim-labs/cybersim/pkg/events"
	"github.com/cybersim-labs/cybersim/pkg/oracle"
	"github.com/cybersim-labs/cybersim/pkg/queue"
	"github.com/cybersim-labs/cybersim/pkg/ratings"
	"github.com/cybersim-labs/cybersim/pkg/sim"
	"github.com/cybersim-labs/cybersim/pkg/store"
)

// Task timeouts.
const (
	StartTimeout        = 60 * time.Second
	ActionTimeout       = 180 * time.Second
	BriefingTimeout     = 180 * time.Second
	BackgroundTimeout   = 60 * time.Second
	RatingTimeout       = 300 * time.Second
	UserRatingTimeout   = 60 * time.Second
	BriefingPromptDelay = 10 * time.Second
)

// backgroundStopStates are lifecycle states in which the background tick
// stops rescheduling itself. The action/briefing flows restart it when the
// simulation resumes.
var backgroundStopStates = map[sim.State]bool{
	sim.StateSetup:                   true,
	sim.StateEnded:                   true,
	sim.StatePostInitialCrisis:       true,
	sim.StateDecisionPointShutdown:   true,
	sim.StateAwaitingAnalystBriefing: true,
}

// Executor runs queue jobs against the simulation engine.
type Executor struct {
	store   *store.Store
	bus     *events.Bus
	queue   queue.Queue
	oracle  oracle.Oracle
	ratings *ratings.Store // nil disables persistence of ratings
	now     func() time.Time
	rng     *rand.Rand
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock replaces the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithRand replaces the random source (tests).
func WithRand(rng *rand.Rand) Option {
	return func(e *Executor) { e.rng = rng }
}

// New builds an executor. ratingsStore may be nil.
func New(st *store.Store, bus *events.Bus, q queue.Queue, o oracle.Oracle, ratingsStore *ratings.Store, opts ...Option) *Executor {
	e := &Executor{
		store:   st,
		bus:     bus,
		queue:   q,
		oracle:  o,
		ratings: ratingsStore,
		now:     time.Now,
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 1)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute dispatches one job by task name.
func (e *Executor) Execute(ctx context.Context, job queue.Job) error {
	switch job.Task {
	case queue.TaskStartSimulation:
		return e.startSimulation(ctx, job)
	case queue.TaskHandleAction:
		return e.handleAction(ctx, job)
	case queue.TaskHandleBriefing:
		return e.handleBriefing(ctx, job)
	case queue.TaskBackgroundCheck:
		return e.backgroundCheck(ctx, job)
	case queue.TaskGenerateRating:
		return e.generateRating(ctx, job)
	case queue.TaskRequestUserRating:
		return e.requestUserRating(ctx, job)
	case queue.TaskTriggerBriefingPrompt:
		return e.triggerBriefingPrompt(ctx, job)
	default:
		return fmt.Errorf("unknown task %q", job.Task)
	}
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// VerifyAccess checks whether the caller may operate on the simulation.
// Authenticated callers require a matching stored user id. Anonymous callers
// are granted only guest runs, recognized by the guest id doubling as the
// simulation id; knowing the unguessable id is the credential.
func VerifyAccess(s *sim.Simulation, userID string) bool {
	if userID != "" {
		return s.UserID == userID
	}
	return s.UserID == "" && s.GuestID != "" && s.GuestID == s.ID
}

func (e *Executor) newManager(s *sim.Simulation) *sim.Manager {
	return sim.NewManager(s, e.oracle, sim.WithClock(e.now), sim.WithRand(e.rng))
}

// publish flushes the manager's pending events to the bus.
func (e *Executor) publish(ctx context.Context, m *sim.Manager) {
	evs := m.DrainEvents()
	if err := e.bus.Publish(ctx, m.Simulation().ID, evs); err != nil {
		slog.Warn("Failed to publish simulation events",
			"simulation_id", m.Simulation().ID, "count", len(evs), "error", err)
	}
}

// publishError sends a player-visible error event without engine state.
func (e *Executor) publishError(ctx context.Context, simID, message string) {
	ev := events.Event{Type: events.TypeError, Payload: map[string]any{
		"simulation_id": simID,
		"message":       message,
	}}
	if err := e.bus.Publish(ctx, simID, []events.Event{ev}); err != nil {
		slog.Warn("Failed to publish error event", "simulation_id", simID, "error", err)
	}
}

// load fetches a simulation, mapping corrupt state to an ERROR-state
// simulation so clients see a terminal state rather than silence.
func (e *Executor) load(ctx context.Context, simID string) (*sim.Simulation, error) {
	s, err := e.store.Load(ctx, simID)
	if err != nil {
		if errors.Is(err, store.ErrCorruptState) {
			broken := sim.NewSimulation(simID)
			broken.Running = false
			broken.State = sim.StateError
			if saveErr := e.store.Save(ctx, broken); saveErr != nil {
				slog.Error("Failed to persist error state", "simulation_id", simID, "error", saveErr)
			}
			e.publishError(ctx, simID, "Simulation state could not be recovered.")
		}
		return nil, err
	}
	return s, nil
}

func (e *Executor) startSimulation(ctx context.Context, job queue.Job) error {
	s := sim.NewSimulation(job.SimID)
	m := e.newManager(s)
	err := m.Start(sim.StartParams{
		UserID:          stringArg(job.Args, "user_id"),
		GuestID:         stringArg(job.Args, "guest_id"),
		PlayerName:      stringArg(job.Args, "player_name"),
		ScenarioKey:     stringArg(job.Args, "scenario_key"),
		IntensityKey:    stringArg(job.Args, "intensity_key"),
		DurationMinutes: intArg(job.Args, "duration_minutes"),
	})
	if err != nil {
		e.publishError(ctx, job.SimID, fmt.Sprintf("Simulation could not be started: %v", err))
		return err
	}
	if err := e.store.Save(ctx, s); err != nil {
		return err
	}
	e.publish(ctx, m)
	return e.scheduleBackgroundCheck(ctx, s)
}

func (e *Executor) handleAction(ctx context.Context, job queue.Job) error {
	s, err := e.load(ctx, job.SimID)
	if err != nil {
		return err
	}
	if s == nil {
		e.publishError(ctx, job.SimID, "Simulation not found or expired.")
		return nil
	}
	if !VerifyAccess(s, stringArg(job.Args, "user_id")) {
		return fmt.Errorf("access denied for simulation %s", job.SimID)
	}

	before := s.State
	wasBackgroundStopped := backgroundStopStates[before]
	m := e.newManager(s)
	m.HandlePlayerInput(ctx, stringArg(job.Args, "action"))

	if err := e.store.Save(ctx, s); err != nil {
		return err
	}
	e.publish(ctx, m)

	if err := e.maybeQueueRating(ctx, s, before); err != nil {
		return err
	}
	// Leaving a paused state (e.g. the decision point) restarts the tick.
	if wasBackgroundStopped && !backgroundStopStates[s.State] && s.Running {
		return e.scheduleBackgroundCheck(ctx, s)
	}
	return nil
}

func (e *Executor) handleBriefing(ctx context.Context, job queue.Job) error {
	s, err := e.load(ctx, job.SimID)
	if err != nil {
		return err
	}
	if s == nil {
		e.publishError(ctx, job.SimID, "Simulation not found or expired.")
		return nil
	}
	if !VerifyAccess(s, stringArg(job.Args, "user_id")) {
		return fmt.Errorf("access denied for simulation %s", job.SimID)
	}

	m := e.newManager(s)
	m.HandleAnalystBriefing(ctx, stringArg(job.Args, "talking_points"))
	if err := e.store.Save(ctx, s); err != nil {
		return err
	}
	e.publish(ctx, m)
	return nil
}

func (e *Executor) backgroundCheck(ctx context.Context, job queue.Job) error {
	s, err := e.load(ctx, job.SimID)
	if err != nil {
		return err
	}
	if s == nil {
		slog.Info("Background check stopping, simulation gone", "simulation_id", job.SimID)
		return nil
	}
	if !s.Running || backgroundStopStates[s.State] {
		slog.Debug("Background check stopping",
			"simulation_id", job.SimID, "state", string(s.State), "running", s.Running)
		return nil
	}

	before := s.State
	m := e.newManager(s)
	m.SyncRealTime()
	ended := m.CheckEndConditions()
	if !ended && s.Running {
		m.CheckDynamicIntensity()
		m.CheckBackgroundEvents(ctx)
		m.GenerateNoise()
	}

	if err := e.store.Save(ctx, s); err != nil {
		return err
	}
	e.publish(ctx, m)

	if err := e.maybeQueueRating(ctx, s, before); err != nil {
		return err
	}
	if s.Running && !backgroundStopStates[s.State] {
		return e.scheduleBackgroundCheck(ctx, s)
	}
	return nil
}

// maybeQueueRating starts the rating chain on the transition into the
// debrief phase.
func (e *Executor) maybeQueueRating(ctx context.Context, s *sim.Simulation, before sim.State) error {
	if before == sim.StatePostInitialCrisis || s.State != sim.StatePostInitialCrisis {
		return nil
	}
	return e.queue.Enqueue(ctx, queue.Job{
		Task:    queue.TaskGenerateRating,
		SimID:   s.ID,
		Timeout: RatingTimeout,
	})
}

// scheduleBackgroundCheck enqueues the next tick. The delay scales with the
// current intensity modifier and gets a small jitter so multi-worker pods do
// not herd; a lower bound keeps the engine from spinning.
func (e *Executor) scheduleBackgroundCheck(ctx context.Context, s *sim.Simulation) error {
	mod := s.CurrentIntensityMod
	if mod <= 0 {
		mod = 1.0
	}
	jitter := 0.8 + 0.4*e.rng.Float64()
	delay := time.Duration(float64(sim.TickInterval) * mod * jitter)
	if delay < 5*time.Second {
		delay = 5 * time.Second
	}
	return e.queue.EnqueueIn(ctx, queue.Job{
		Task:    queue.TaskBackgroundCheck,
		SimID:   s.ID,
		Timeout: BackgroundTimeout,
	}, delay)
}

func (e *Executor) generateRating(ctx context.Context, job queue.Job) error {
	s, err := e.load(ctx, job.SimID)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("simulation %s not found for rating", job.SimID)
	}

	m := e.newManager(s)
	rating := m.GenerateRating(ctx)
	ev := events.Event{Type: events.TypeDebriefRatingUpdate, Payload: map[string]any{
		"simulation_id":      s.ID,
		"performance_rating": rating,
	}}
	if err := e.bus.Publish(ctx, s.ID, []events.Event{ev}); err != nil {
		slog.Warn("Failed to publish rating", "simulation_id", s.ID, "error", err)
	}

	if e.ratings != nil {
		if _, hasErr := rating["error"]; !hasErr {
			if err := e.ratings.UpsertLLMRating(ctx, s.ID, rating, s.UserID, s.ScenarioKey); err != nil {
				slog.Error("Failed to persist LLM rating", "simulation_id", s.ID, "error", err)
			}
		}
	}

	return e.queue.Enqueue(ctx, queue.Job{
		Task:    queue.TaskRequestUserRating,
		SimID:   s.ID,
		Timeout: UserRatingTimeout,
	})
}

func (e *Executor) requestUserRating(ctx context.Context, job queue.Job) error {
	s, err := e.load(ctx, job.SimID)
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}

	m := e.newManager(s)
	m.RequestUserRating()
	if s.State != sim.StateAwaitingUserRating {
		// Player already moved on; drop the prompt.
		m.DrainEvents()
		return nil
	}
	if err := e.store.Save(ctx, s); err != nil {
		return err
	}
	e.publish(ctx, m)

	return e.queue.EnqueueIn(ctx, queue.Job{
		Task:    queue.TaskTriggerBriefingPrompt,
		SimID:   s.ID,
		Timeout: UserRatingTimeout,
	}, BriefingPromptDelay)
}

func (e *Executor) triggerBriefingPrompt(ctx context.Context, job queue.Job) error {
	s, err := e.load(ctx, job.SimID)
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	switch s.State {
	case sim.StateAwaitingUserRating, sim.StatePostInitialCrisis:
	default:
		return nil
	}

	m := e.newManager(s)
	m.TriggerBriefingPrompt()
	e.publish(ctx, m)
	return nil
}
