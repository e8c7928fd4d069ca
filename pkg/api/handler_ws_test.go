package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybersim-labs/cybersim/pkg/events"
	"github.com/cybersim-labs/cybersim/pkg/oracle"
	"github.com/cybersim-labs/cybersim/pkg/sim"
)

func TestWSHandlerAccess(t *testing.T) {
	f := newServerFixture(t)
	seedSimulation(t, f, "guest_abc123def456", "", "guest_abc123def456")

	srv := httptest.NewServer(f.server.echo)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sim/ws/"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("anonymous client on a guest run gets the snapshot", func(t *testing.T) {
		conn, _, err := websocket.Dial(ctx, wsURL+"guest_abc123def456", nil)
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "")

		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var ev events.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		assert.Equal(t, events.TypeInitialState, ev.Type)
	})

	t.Run("authenticated client is denied a guest run", func(t *testing.T) {
		token := f.userToken(t, "u1", "Alex")
		conn, _, err := websocket.Dial(ctx, wsURL+"guest_abc123def456?token="+token, nil)
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "")

		_, _, err = conn.Read(ctx)
		require.Error(t, err)
		assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	})

	t.Run("missing simulation closes the same way as a denied one", func(t *testing.T) {
		conn, _, err := websocket.Dial(ctx, wsURL+"guest_000000000000", nil)
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "")

		_, _, err = conn.Read(ctx)
		require.Error(t, err)
		assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	})
}

func TestInitialStateEvent(t *testing.T) {
	s := sim.NewSimulation("sim-ws")
	m := sim.NewManager(s, oracle.NewAnthropic("", ""))
	require.NoError(t, m.Start(sim.StartParams{
		UserID:          "u1",
		PlayerName:      "Alex",
		ScenarioKey:     "Ransomware",
		IntensityKey:    "Medium",
		DurationMinutes: 30,
	}))

	ev := initialStateEvent(s)
	require.Equal(t, events.TypeInitialState, ev.Type)
	p := ev.Payload

	assert.Equal(t, "sim-ws", p["simulation_id"])
	assert.Equal(t, "Ransomware", p["scenario"])
	assert.NotEmpty(t, p["description"])
	assert.Equal(t, "Medium", p["intensity_key"])
	assert.Equal(t, s.CurrentIntensityMod, p["current_intensity_mod"])
	assert.Equal(t, 30.0, p["duration"])
	assert.Equal(t, "Alex (CTO)", p["player_name"])
	assert.Equal(t, "CTO", p["player_role"])
	assert.Equal(t, string(sim.StateAwaitingPlayerChoice), p["current_state"])

	start, err := time.Parse(time.RFC3339, p["start_time_iso"].(string))
	require.NoError(t, err)
	end, err := time.Parse(time.RFC3339, p["end_time_iso"].(string))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, end.Sub(start))

	status, ok := p["initial_system_status"].(map[string]string)
	require.True(t, ok)
	assert.Contains(t, status, "File_Servers")

	agents, ok := p["initial_agent_status"].(map[string]string)
	require.True(t, ok)
	assert.Contains(t, agents, "Hao Wang")

	assert.Equal(t, []string{}, p["missed_calls"])
}

func TestInitialStateEventUnknownIntensity(t *testing.T) {
	s := sim.NewSimulation("sim-ws")
	m := sim.NewManager(s, oracle.NewAnthropic("", ""))
	require.NoError(t, m.Start(sim.StartParams{
		UserID:          "u1",
		PlayerName:      "Alex",
		ScenarioKey:     "Ransomware",
		IntensityKey:    "Medium",
		DurationMinutes: 30,
	}))
	// A drifted modifier no longer maps back to a named level.
	s.InitialIntensityMod = 0.77

	ev := initialStateEvent(s)
	assert.Equal(t, "", ev.Payload["intensity_key"])
}
