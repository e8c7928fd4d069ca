package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// defaultBufferSize is the per-subscriber channel capacity. A subscriber
// that falls this far behind is evicted rather than stalling publishers.
const defaultBufferSize = 64

// Subscriber receives events for one simulation.
type Subscriber struct {
	ch    chan Event
	simID string
}

// Events returns the subscriber's channel. It is closed on Unsubscribe or
// when the subscriber is evicted for falling behind.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Bus fans simulation events out to local subscribers. When a Redis client
// is attached, Publish goes through Redis Pub/Sub and a Relay goroutine
// re-injects messages locally, so events reach subscribers on every
// instance. Without Redis the bus dispatches directly (tests, single-node).
type Bus struct {
	mu         sync.RWMutex
	subs       map[string]map[*Subscriber]bool
	rdb        *redis.Client
	bufferSize int
}

// NewBus creates a bus. rdb may be nil for local-only operation.
func NewBus(rdb *redis.Client) *Bus {
	return &Bus{
		subs:       make(map[string]map[*Subscriber]bool),
		rdb:        rdb,
		bufferSize: defaultBufferSize,
	}
}

// Subscribe registers a subscriber for a simulation's events.
func (b *Bus) Subscribe(simID string) *Subscriber {
	sub := &Subscriber{ch: make(chan Event, b.bufferSize), simID: simID}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[simID] == nil {
		b.subs[simID] = make(map[*Subscriber]bool)
	}
	b.subs[simID][sub] = true
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

func (b *Bus) removeLocked(sub *Subscriber) {
	if set, ok := b.subs[sub.simID]; ok {
		if set[sub] {
			delete(set, sub)
			close(sub.ch)
		}
		if len(set) == 0 {
			delete(b.subs, sub.simID)
		}
	}
}

// Publish delivers events for a simulation. With Redis attached, each event
// is published as JSON to the simulation's channel; local delivery happens
// via the Relay. Without Redis, events are dispatched locally.
func (b *Bus) Publish(ctx context.Context, simID string, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	if b.rdb == nil {
		for _, ev := range events {
			b.dispatch(simID, ev)
		}
		return nil
	}

	pipe := b.rdb.Pipeline()
	channel := channelFor(simID)
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Warn("Skipping unmarshalable event", "simulation_id", simID, "type", ev.Type, "error", err)
			continue
		}
		pipe.Publish(ctx, channel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publishing %d events to %s: %w", len(events), channel, err)
	}
	return nil
}

// dispatch sends one event to local subscribers. Full buffer means the
// subscriber is evicted: its channel is closed and the WS layer tears the
// connection down.
func (b *Bus) dispatch(simID string, ev Event) {
	b.mu.RLock()
	set := b.subs[simID]
	snapshot := make([]*Subscriber, 0, len(set))
	for sub := range set {
		snapshot = append(snapshot, sub)
	}
	b.mu.RUnlock()

	for _, sub := range snapshot {
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("Evicting slow event subscriber", "simulation_id", simID)
			b.mu.Lock()
			b.removeLocked(sub)
			b.mu.Unlock()
		}
	}
}

// subscriberCount is used by tests to poll instead of sleeping.
func (b *Bus) subscriberCount(simID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[simID])
}
