package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Relay subscribes to every simulation channel on Redis and re-injects
// received events into the local bus. One Relay runs per process.
type Relay struct {
	bus      *Bus
	rdb      *redis.Client
	pubsub   *redis.PubSub
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRelay creates a relay feeding the given bus from the given Redis client.
func NewRelay(bus *Bus, rdb *redis.Client) *Relay {
	return &Relay{bus: bus, rdb: rdb}
}

// Start begins relaying in a background goroutine.
func (r *Relay) Start(ctx context.Context) {
	r.pubsub = r.rdb.PSubscribe(ctx, channelPattern)
	// Wait for the subscription confirmation so events published after
	// Start returns are guaranteed to be received.
	if _, err := r.pubsub.Receive(ctx); err != nil {
		slog.Warn("Event relay subscription confirmation failed", "error", err)
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
	slog.Info("Event relay started", "pattern", channelPattern)
}

// Stop closes the subscription and waits for the relay goroutine.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		if r.pubsub != nil {
			_ = r.pubsub.Close()
		}
	})
	r.wg.Wait()
}

func (r *Relay) run(ctx context.Context) {
	ch := r.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			simID := strings.TrimPrefix(msg.Channel, channelPrefix)
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.Warn("Dropping undecodable relayed event",
					"channel", msg.Channel, "error", err)
				continue
			}
			r.bus.dispatch(simID, ev)
		}
	}
}
