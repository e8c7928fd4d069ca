// Package store persists simulation state in Redis. Each simulation lives
// under one JSON value with a sliding TTL, so abandoned runs expire on
// their own.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cybersim-labs/cybersim/pkg/sim"
)

// ErrCorruptState marks a stored value that no longer decodes. Callers
// surface this to the player as an unrecoverable simulation error.
var ErrCorruptState = errors.New("stored simulation state is corrupt")

const keyPrefix = "sim_state:"

// Store reads and writes simulation snapshots.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// New wraps a Redis client. ttl bounds how long idle simulations survive.
func New(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func stateKey(simID string) string { return keyPrefix + simID }

// Load fetches and rebuilds a simulation. A missing key returns (nil, nil).
func (st *Store) Load(ctx context.Context, simID string) (*sim.Simulation, error) {
	raw, err := st.rdb.Get(ctx, stateKey(simID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading simulation %s: %w", simID, err)
	}

	var snap sim.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, simID, err)
	}
	restored, err := snap.Restore()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, simID, err)
	}
	return restored, nil
}

// Save serializes the simulation and resets its TTL.
func (st *Store) Save(ctx context.Context, s *sim.Simulation) error {
	raw, err := json.Marshal(s.Snapshot())
	if err != nil {
		return fmt.Errorf("encoding simulation %s: %w", s.ID, err)
	}
	if err := st.rdb.Set(ctx, stateKey(s.ID), raw, st.ttl).Err(); err != nil {
		return fmt.Errorf("saving simulation %s: %w", s.ID, err)
	}
	return nil
}

// Delete removes a simulation's stored state.
func (st *Store) Delete(ctx context.Context, simID string) error {
	if err := st.rdb.Del(ctx, stateKey(simID)).Err(); err != nil {
		return fmt.Errorf("deleting simulation %s: %w", simID, err)
	}
	return nil
}
