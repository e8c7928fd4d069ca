package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusLocalPublishOrder(t *testing.T) {
	bus := NewBus(nil)
	sub := bus.Subscribe("sim-1")
	defer bus.Unsubscribe(sub)

	events := []Event{
		{Type: TypeLog, Payload: map[string]any{"simulation_id": "sim-1", "seq": 1}},
		{Type: TypeStateChange, Payload: map[string]any{"simulation_id": "sim-1", "seq": 2}},
		{Type: TypeTimeUpdate, Payload: map[string]any{"simulation_id": "sim-1", "seq": 3}},
	}
	require.NoError(t, bus.Publish(context.Background(), "sim-1", events))

	for i, want := range events {
		select {
		case got := <-sub.Events():
			assert.Equal(t, want.Type, got.Type, "event %d", i)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestBusIsolatesSimulations(t *testing.T) {
	bus := NewBus(nil)
	sub := bus.Subscribe("sim-a")
	defer bus.Unsubscribe(sub)

	require.NoError(t, bus.Publish(context.Background(), "sim-b", []Event{
		{Type: TypeLog, Payload: map[string]any{"simulation_id": "sim-b"}},
	}))

	select {
	case ev := <-sub.Events():
		t.Fatalf("subscriber for sim-a received event for sim-b: %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusEvictsSlowSubscriber(t *testing.T) {
	bus := NewBus(nil)
	bus.bufferSize = 2
	sub := bus.Subscribe("sim-1")

	// Nobody drains the channel; the third publish overflows the buffer.
	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(context.Background(), "sim-1", []Event{
			{Type: TypeLog, Payload: map[string]any{"seq": i}},
		}))
	}

	assert.Equal(t, 0, bus.subscriberCount("sim-1"))

	// Buffered events remain readable, then the channel is closed.
	<-sub.Events()
	<-sub.Events()
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(nil)
	sub := bus.Subscribe("sim-1")
	bus.Unsubscribe(sub)

	_, open := <-sub.Events()
	assert.False(t, open)
	assert.Equal(t, 0, bus.subscriberCount("sim-1"))

	// Double unsubscribe is a no-op.
	bus.Unsubscribe(sub)
}

func TestBusRedisRelayRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(rdb)
	relay := NewRelay(bus, rdb)
	relay.Start(ctx)
	defer relay.Stop()

	sub := bus.Subscribe("sim-42")
	defer bus.Unsubscribe(sub)

	require.NoError(t, bus.Publish(ctx, "sim-42", []Event{
		{Type: TypeDisplayMessage, Payload: map[string]any{
			"simulation_id": "sim-42",
			"speaker":       "System Alert",
			"message":       "hello",
		}},
	}))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, TypeDisplayMessage, ev.Type)
		assert.Equal(t, "sim-42", ev.Payload["simulation_id"])
		assert.Equal(t, "hello", ev.Payload["message"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed event")
	}
}
