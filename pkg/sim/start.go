package sim

import (
	"fmt"
	"strings"
	"time"

	"github.com/cybersim-labs/cybersim/pkg/events"
	"github.com/cybersim-labs/cybersim/pkg/oracle"
)

// StartParams configures a new run.
type StartParams struct {
	UserID          string
	GuestID         string
	PlayerName      string
	ScenarioKey     string
	IntensityKey    string
	DurationMinutes int
}

// Start initializes the simulation from a scenario, emits the starting
// events, and fires the initial alert. The simulation ends up in
// AWAITING_PLAYER_CHOICE.
func (m *Manager) Start(p StartParams) error {
	scenario, ok := GetScenario(p.ScenarioKey)
	if !ok {
		return fmt.Errorf("unknown scenario %q", p.ScenarioKey)
	}

	intensityKey := p.IntensityKey
	mod, ok := scenario.Intensity[intensityKey]
	if !ok {
		intensityKey = "Medium"
		mod = scenario.Intensity[intensityKey]
		if mod == 0 {
			mod = 1.0
		}
	}

	duration := p.DurationMinutes
	if duration <= 0 {
		duration = DefaultDurationMinutes
	}

	s := m.sim
	now := m.now().UTC()

	s.UserID = p.UserID
	s.GuestID = p.GuestID
	s.PlayerName = fmt.Sprintf("%s (CTO)", p.PlayerName)
	s.PlayerRole = "CTO"
	s.CurrentLocation = "War Room"
	s.ScenarioKey = scenario.Key
	s.InitialIntensityMod = mod
	s.CurrentIntensityMod = mod
	s.EscalationLevel = 0
	s.MissedCalls = []string{}
	s.PlayerDecisions = map[string]string{}
	s.ActionLog = nil
	s.EventLogHistory = nil
	s.Metrics = newMetrics()
	s.ConversationHistory = map[string][]oracle.Turn{}

	s.StartTime = now
	s.EndTime = now.Add(time.Duration(duration) * time.Minute)
	s.SimTime = now
	s.LastEscalationCheck = now
	s.LastBackgroundCheck = now
	s.LastIntensityCheck = now
	s.LastLogNoise = now
	s.LastRealTimeSync = now

	s.SystemStatus = make(map[string]string, len(scenario.InitialStatus))
	for k, v := range scenario.InitialStatus {
		s.SystemStatus[k] = v
	}

	s.Agents = make(map[string]*Agent, len(agentSpecs))
	for name, spec := range agentSpecs {
		agent := newAgent(spec)
		start := now
		agent.LastInitiativeCheck = &start
		s.Agents[name] = agent
	}
	for name, state := range scenario.AgentStates {
		if agent, ok := s.Agents[name]; ok {
			agent.State = state
		}
	}

	m.logEvent(fmt.Sprintf("Simulation Setup Complete. Scenario: %s (%s). Duration: %d mins. Initial Intensity: %.2fx",
		scenario.Key, intensityKey, duration, mod), "info", false, nil)

	// Seed the feed with the off-nominal starting picture.
	for key, status := range s.SystemStatus {
		if status == "NOMINAL" || status == "UNKNOWN" {
			continue
		}
		m.generateFeedLog(key, "SYS_INITIAL_STATE", map[string]any{
			"system_key": key,
			"status":     status,
			"reason":     "Initial scenario state",
		}, "")
	}

	s.Running = true
	s.State = StateInitialAlert

	agentStates := make(map[string]any, len(s.Agents))
	for name, agent := range s.Agents {
		agentStates[name] = agent.State
	}
	m.emit(events.TypeSimulationStarted, map[string]any{
		"scenario":              scenario.Key,
		"description":           scenario.Description,
		"intensity_key":         intensityKey,
		"current_intensity_mod": s.CurrentIntensityMod,
		"duration":              duration,
		"player_name":           s.PlayerName,
		"player_role":           s.PlayerRole,
		"start_time_iso":        s.StartTime.Format(time.RFC3339),
		"end_time_iso":          s.EndTime.Format(time.RFC3339),
		"current_sim_time_iso":  s.SimTime.Format(time.RFC3339),
		"initial_system_status": copyStatusMap(s.SystemStatus),
		"initial_agent_status":  agentStates,
	})

	m.triggerInitialAlert()
	return nil
}

func (m *Manager) triggerInitialAlert() {
	alert := fmt.Sprintf(
		"URGENT // IOC DETECTED // SigMatch: %s // Potential Severity: HIGH // Monitor Feeds. Awaiting Action.",
		strings.ToUpper(m.sim.ScenarioKey))
	m.display("System Alert", alert, "INITIAL ALERT")
	m.setState(StateAwaitingPlayerChoice)
}

func copyStatusMap(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
