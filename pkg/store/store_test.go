package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybersim-labs/cybersim/pkg/oracle"
	"github.com/cybersim-labs/cybersim/pkg/sim"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, time.Hour), mr
}

func newStartedSimulation(t *testing.T, id string) *sim.Simulation {
	t.Helper()
	s := sim.NewSimulation(id)
	m := sim.NewManager(s, oracle.NewAnthropic("", ""))
	require.NoError(t, m.Start(sim.StartParams{
		UserID:      "u1",
		PlayerName:  "Alex",
		ScenarioKey: "Ransomware",
	}))
	return s
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	s := newStartedSimulation(t, "sim-1")

	require.NoError(t, st.Save(ctx, s))
	loaded, err := st.Load(ctx, "sim-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, s.State, loaded.State)
	assert.Equal(t, s.ScenarioKey, loaded.ScenarioKey)
	assert.True(t, loaded.Running)
}

func TestLoadMissingReturnsNil(t *testing.T) {
	st, _ := newTestStore(t)
	loaded, err := st.Load(context.Background(), "no-such-sim")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoadCorruptState(t *testing.T) {
	st, mr := newTestStore(t)
	require.NoError(t, mr.Set("sim_state:broken", "{not json"))

	_, err := st.Load(context.Background(), "broken")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptState)
}

func TestSaveSetsTTL(t *testing.T) {
	st, mr := newTestStore(t)
	s := newStartedSimulation(t, "sim-ttl")
	require.NoError(t, st.Save(context.Background(), s))

	ttl := mr.TTL("sim_state:sim-ttl")
	assert.Equal(t, time.Hour, ttl)
}

func TestSaveRefreshesTTL(t *testing.T) {
	st, mr := newTestStore(t)
	ctx := context.Background()
	s := newStartedSimulation(t, "sim-refresh")

	require.NoError(t, st.Save(ctx, s))
	mr.FastForward(30 * time.Minute)
	require.NoError(t, st.Save(ctx, s))
	assert.Equal(t, time.Hour, mr.TTL("sim_state:sim-refresh"))
}

func TestDelete(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	s := newStartedSimulation(t, "sim-del")

	require.NoError(t, st.Save(ctx, s))
	require.NoError(t, st.Delete(ctx, "sim-del"))
	loaded, err := st.Load(ctx, "sim-del")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
