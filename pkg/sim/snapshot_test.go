package sim

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	m, clock := newTestManager(&scriptedOracle{})
	startRansomware(t, m)
	s := m.Simulation()
	ctx := context.Background()

	clock.Advance(6 * time.Minute)
	m.SyncRealTime()
	m.HandlePlayerInput(ctx, "isolate file servers")
	m.HandlePlayerInput(ctx, "call hao")
	m.HandlePlayerInput(ctx, "hang up")
	s.SystemStatus["Customer_Database"] = "COMPROMISED (CRITICAL)"
	s.EscalationLevel = 2
	s.MissedCalls = []string{"Paul Kahn"}

	raw, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	restored, err := snap.Restore()
	require.NoError(t, err)

	assert.Equal(t, s.ID, restored.ID)
	assert.Equal(t, s.UserID, restored.UserID)
	assert.Equal(t, s.PlayerName, restored.PlayerName)
	assert.Equal(t, s.State, restored.State)
	assert.Equal(t, s.Running, restored.Running)
	assert.Equal(t, s.ScenarioKey, restored.ScenarioKey)
	assert.Equal(t, s.EscalationLevel, restored.EscalationLevel)
	assert.Equal(t, s.MissedCalls, restored.MissedCalls)
	assert.Equal(t, s.SystemStatus, restored.SystemStatus)
	assert.True(t, restored.SimTime.Equal(s.SimTime))
	assert.True(t, restored.EndTime.Equal(s.EndTime))
	assert.Len(t, restored.ActionLog, len(s.ActionLog))
	assert.Equal(t, "isolate", restored.ActionLog[0].Action)

	hao := restored.Agents["Hao Wang"]
	require.NotNil(t, hao)
	assert.True(t, hao.Flags["called_by_player"])
	require.NotNil(t, hao.LastContactTime)
	assert.True(t, hao.LastContactTime.Equal(*s.Agents["Hao Wang"].LastContactTime))

	// The compromised set is rebuilt from status keywords, never persisted.
	assert.NotContains(t, string(raw), "compromised\":")
	assert.Equal(t, 1, restored.Metrics.SystemsCompromisedCount)
	assert.True(t, restored.Metrics.compromised["Customer_Database"])

	// Conversations never survive a save.
	assert.Empty(t, restored.ConversationHistory)
	assert.Equal(t, contactedAgents(s.Metrics), contactedAgents(restored.Metrics))
}

func TestSnapshotCapsActionLog(t *testing.T) {
	m, _ := newTestManager(&scriptedOracle{})
	startRansomware(t, m)

	for i := 0; i < 30; i++ {
		m.logPlayerAction("wait", "", nil)
	}
	snap := m.Simulation().Snapshot()
	assert.Len(t, snap.PlayerActionLog, actionLogSaved)
}

func TestRestoreDefaultsInitiativeCheck(t *testing.T) {
	m, _ := newTestManager(&scriptedOracle{})
	startRansomware(t, m)
	snap := m.Simulation().Snapshot()

	for name, agent := range snap.Agents {
		agent.LastInitiativeCheckTimeISO = nil
		snap.Agents[name] = agent
	}
	restored, err := snap.Restore()
	require.NoError(t, err)
	for _, agent := range restored.Agents {
		require.NotNil(t, agent.LastInitiativeCheck)
		assert.True(t, agent.LastInitiativeCheck.Equal(restored.SimTime))
	}
}

func TestRestoreRebuildsFullRoster(t *testing.T) {
	m, _ := newTestManager(&scriptedOracle{})
	startRansomware(t, m)
	snap := m.Simulation().Snapshot()

	// A snapshot from an older save may miss agents; the default roster
	// fills the gaps.
	delete(snap.Agents, "PR Head")
	restored, err := snap.Restore()
	require.NoError(t, err)
	require.Contains(t, restored.Agents, "PR Head")
	assert.Equal(t, AgentAvailable, restored.Agents["PR Head"].State)
}

func TestRestoreRejectsBadTimestamp(t *testing.T) {
	m, _ := newTestManager(&scriptedOracle{})
	startRansomware(t, m)
	snap := m.Simulation().Snapshot()
	snap.SimTimeISO = "yesterday-ish"

	_, err := snap.Restore()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulation_time_iso")
}

func TestSnapshotKeyNames(t *testing.T) {
	m, _ := newTestManager(&scriptedOracle{})
	startRansomware(t, m)
	raw, err := json.Marshal(m.Simulation().Snapshot())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, key := range []string{
		"simulation_id", "player_name", "simulation_running", "simulation_state",
		"agents_simple_state", "selected_scenario_key", "current_intensity_mod",
		"simulation_start_time_iso", "player_action_log", "metrics", "event_log_history",
	} {
		assert.Contains(t, doc, key)
	}
	metrics := doc["metrics"].(map[string]any)
	assert.Contains(t, metrics, "time_to_first_critical")
	assert.Contains(t, metrics, "agents_contacted")
	assert.Contains(t, metrics, "systems_compromised_count")
}
