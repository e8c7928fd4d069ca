package sim

import (
	"fmt"
	"time"

	"github.com/cybersim-labs/cybersim/pkg/oracle"
)

// actionLogSaved caps how many recent player actions are persisted.
const actionLogSaved = 20

// AgentSnapshot is the persisted per-agent state.
type AgentSnapshot struct {
	State                      string          `json:"state"`
	Flags                      map[string]bool `json:"flags"`
	LastContactTimeISO         *string         `json:"last_contact_time_iso"`
	LastUpdateTimeISO          *string         `json:"last_update_time_iso"`
	LastInitiativeCheckTimeISO *string         `json:"last_initiative_check_time_iso"`
}

// ActionSnapshot is one persisted player action.
type ActionSnapshot struct {
	TimeISO string         `json:"time_iso"`
	Action  string         `json:"action"`
	Target  string         `json:"target"`
	Details map[string]any `json:"details,omitempty"`
}

// MetricsSnapshot is the persisted metrics block. The compromised-system
// set is deliberately absent; it is recomputed from system status on load.
type MetricsSnapshot struct {
	TimeToFirstCritical      *string           `json:"time_to_first_critical"`
	TimeWastedWaiting        float64           `json:"time_wasted_waiting"`
	AgentsContacted          []string          `json:"agents_contacted"`
	CriticalAgentContactTime map[string]string `json:"critical_agent_contact_time"`
	KeyActionsTaken          [][]string        `json:"key_actions_taken"`
	SystemsCompromisedCount  int               `json:"systems_compromised_count"`
	EscalationsTriggered     int               `json:"escalations_triggered"`
}

// Snapshot is the full persisted form of a simulation.
type Snapshot struct {
	SimulationID             string                    `json:"simulation_id"`
	UserID                   string                    `json:"user_id,omitempty"`
	GuestID                  string                    `json:"guest_id,omitempty"`
	PlayerName               string                    `json:"player_name"`
	PlayerRole               string                    `json:"player_role"`
	CurrentLocation          string                    `json:"current_location"`
	SimulationRunning        bool                      `json:"simulation_running"`
	SimulationState          string                    `json:"simulation_state"`
	ActivePartner            string                    `json:"active_conversation_partner"`
	WaitingCallAgentName     string                    `json:"waiting_call_agent_name"`
	MissedCalls              []string                  `json:"missed_calls"`
	SystemStatus             map[string]string         `json:"system_status"`
	EscalationLevel          int                       `json:"escalation_level"`
	PlayerDecisions          map[string]string         `json:"player_decisions"`
	Agents                   map[string]AgentSnapshot  `json:"agents_simple_state"`
	ScenarioKey              string                    `json:"selected_scenario_key"`
	InitialIntensityMod      float64                   `json:"initial_intensity_mod"`
	CurrentIntensityMod      float64                   `json:"current_intensity_mod"`
	StartTimeISO             string                    `json:"simulation_start_time_iso"`
	EndTimeISO               string                    `json:"simulation_end_time_iso"`
	SimTimeISO               string                    `json:"simulation_time_iso"`
	LastEscalationCheckISO   string                    `json:"last_escalation_check_time_iso"`
	LastBackgroundCheckISO   string                    `json:"last_background_event_check_time_iso"`
	LastIntensityCheckISO    string                    `json:"last_intensity_check_time_iso"`
	LastLogNoiseISO          string                    `json:"last_log_noise_time_iso"`
	LastRealTimeSyncISO      string                    `json:"last_real_time_sync_iso"`
	PlayerActionLog          []ActionSnapshot          `json:"player_action_log"`
	Metrics                  MetricsSnapshot           `json:"metrics"`
	EventLogHistory          []string                  `json:"event_log_history"`
}

func isoOrNil(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// Snapshot renders the simulation for persistence.
func (s *Simulation) Snapshot() *Snapshot {
	agents := make(map[string]AgentSnapshot, len(s.Agents))
	for name, agent := range s.Agents {
		flags := make(map[string]bool, len(agent.Flags))
		for k, v := range agent.Flags {
			flags[k] = v
		}
		agents[name] = AgentSnapshot{
			State:                      agent.State,
			Flags:                      flags,
			LastContactTimeISO:         isoOrNil(agent.LastContactTime),
			LastUpdateTimeISO:          isoOrNil(agent.LastUpdateTime),
			LastInitiativeCheckTimeISO: isoOrNil(agent.LastInitiativeCheck),
		}
	}

	actions := s.ActionLog
	if len(actions) > actionLogSaved {
		actions = actions[len(actions)-actionLogSaved:]
	}
	actionSnaps := make([]ActionSnapshot, len(actions))
	for i, a := range actions {
		actionSnaps[i] = ActionSnapshot{
			TimeISO: a.Time.UTC().Format(time.RFC3339),
			Action:  a.Action,
			Target:  a.Target,
			Details: a.Details,
		}
	}

	contactTimes := make(map[string]string, len(s.Metrics.CriticalAgentContactTime))
	for name, t := range s.Metrics.CriticalAgentContactTime {
		contactTimes[name] = t.UTC().Format(time.RFC3339)
	}
	keyActions := make([][]string, len(s.Metrics.KeyActionsTaken))
	for i, ka := range s.Metrics.KeyActionsTaken {
		keyActions[i] = []string{ka.Time, ka.Action, ka.Target}
	}

	status := make(map[string]string, len(s.SystemStatus))
	for k, v := range s.SystemStatus {
		status[k] = v
	}
	decisions := make(map[string]string, len(s.PlayerDecisions))
	for k, v := range s.PlayerDecisions {
		decisions[k] = v
	}

	return &Snapshot{
		SimulationID:           s.ID,
		UserID:                 s.UserID,
		GuestID:                s.GuestID,
		PlayerName:             s.PlayerName,
		PlayerRole:             s.PlayerRole,
		CurrentLocation:        s.CurrentLocation,
		SimulationRunning:      s.Running,
		SimulationState:        string(s.State),
		ActivePartner:          s.ActivePartner,
		WaitingCallAgentName:   s.WaitingCaller,
		MissedCalls:            append([]string{}, s.MissedCalls...),
		SystemStatus:           status,
		EscalationLevel:        s.EscalationLevel,
		PlayerDecisions:        decisions,
		Agents:                 agents,
		ScenarioKey:            s.ScenarioKey,
		InitialIntensityMod:    s.InitialIntensityMod,
		CurrentIntensityMod:    s.CurrentIntensityMod,
		StartTimeISO:           s.StartTime.UTC().Format(time.RFC3339),
		EndTimeISO:             s.EndTime.UTC().Format(time.RFC3339),
		SimTimeISO:             s.SimTime.UTC().Format(time.RFC3339),
		LastEscalationCheckISO: s.LastEscalationCheck.UTC().Format(time.RFC3339),
		LastBackgroundCheckISO: s.LastBackgroundCheck.UTC().Format(time.RFC3339),
		LastIntensityCheckISO:  s.LastIntensityCheck.UTC().Format(time.RFC3339),
		LastLogNoiseISO:        s.LastLogNoise.UTC().Format(time.RFC3339),
		LastRealTimeSyncISO:    s.LastRealTimeSync.UTC().Format(time.RFC3339),
		PlayerActionLog:        actionSnaps,
		Metrics: MetricsSnapshot{
			TimeToFirstCritical:      isoOrNil(s.Metrics.TimeToFirstCritical),
			TimeWastedWaiting:        s.Metrics.TimeWastedWaiting,
			AgentsContacted:          contactedAgents(s.Metrics),
			CriticalAgentContactTime: contactTimes,
			KeyActionsTaken:          keyActions,
			SystemsCompromisedCount:  s.Metrics.SystemsCompromisedCount,
			EscalationsTriggered:     s.Metrics.EscalationsTriggered,
		},
		EventLogHistory: append([]string{}, s.EventLogHistory...),
	}
}

func parseISO(field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", field, err)
	}
	return t.UTC(), nil
}

func parseISOOrNil(field string, value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	t, err := parseISO(field, *value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Restore rebuilds a live simulation from a snapshot. Agents are rebuilt
// from the default roster merged with the saved state; conversation history
// always starts empty; the compromised-system set is recomputed from the
// saved statuses.
func (snap *Snapshot) Restore() (*Simulation, error) {
	s := NewSimulation(snap.SimulationID)
	s.UserID = snap.UserID
	s.GuestID = snap.GuestID
	s.PlayerName = snap.PlayerName
	s.PlayerRole = snap.PlayerRole
	s.CurrentLocation = snap.CurrentLocation
	s.Running = snap.SimulationRunning
	s.State = State(snap.SimulationState)
	s.ActivePartner = snap.ActivePartner
	s.WaitingCaller = snap.WaitingCallAgentName
	s.MissedCalls = append([]string{}, snap.MissedCalls...)
	s.EscalationLevel = snap.EscalationLevel
	s.ScenarioKey = snap.ScenarioKey
	s.InitialIntensityMod = snap.InitialIntensityMod
	s.CurrentIntensityMod = snap.CurrentIntensityMod

	for k, v := range snap.SystemStatus {
		s.SystemStatus[k] = v
	}
	for k, v := range snap.PlayerDecisions {
		s.PlayerDecisions[k] = v
	}

	var err error
	if s.StartTime, err = parseISO("simulation_start_time_iso", snap.StartTimeISO); err != nil {
		return nil, err
	}
	if s.EndTime, err = parseISO("simulation_end_time_iso", snap.EndTimeISO); err != nil {
		return nil, err
	}
	if s.SimTime, err = parseISO("simulation_time_iso", snap.SimTimeISO); err != nil {
		return nil, err
	}
	if s.LastEscalationCheck, err = parseISO("last_escalation_check_time_iso", snap.LastEscalationCheckISO); err != nil {
		return nil, err
	}
	if s.LastBackgroundCheck, err = parseISO("last_background_event_check_time_iso", snap.LastBackgroundCheckISO); err != nil {
		return nil, err
	}
	if s.LastIntensityCheck, err = parseISO("last_intensity_check_time_iso", snap.LastIntensityCheckISO); err != nil {
		return nil, err
	}
	if s.LastLogNoise, err = parseISO("last_log_noise_time_iso", snap.LastLogNoiseISO); err != nil {
		return nil, err
	}
	if s.LastRealTimeSync, err = parseISO("last_real_time_sync_iso", snap.LastRealTimeSyncISO); err != nil {
		return nil, err
	}

	for name, spec := range agentSpecs {
		agent := newAgent(spec)
		if saved, ok := snap.Agents[name]; ok {
			if saved.State != "" {
				agent.State = saved.State
			}
			for k, v := range saved.Flags {
				agent.Flags[k] = v
			}
			if agent.LastContactTime, err = parseISOOrNil("last_contact_time_iso", saved.LastContactTimeISO); err != nil {
				return nil, err
			}
			if agent.LastUpdateTime, err = parseISOOrNil("last_update_time_iso", saved.LastUpdateTimeISO); err != nil {
				return nil, err
			}
			if agent.LastInitiativeCheck, err = parseISOOrNil("last_initiative_check_time_iso", saved.LastInitiativeCheckTimeISO); err != nil {
				return nil, err
			}
		}
		if agent.LastInitiativeCheck == nil {
			t := s.SimTime
			agent.LastInitiativeCheck = &t
		}
		s.Agents[name] = agent
	}

	s.ActionLog = make([]PlayerAction, 0, len(snap.PlayerActionLog))
	for _, a := range snap.PlayerActionLog {
		t, err := parseISO("player_action_log time_iso", a.TimeISO)
		if err != nil {
			return nil, err
		}
		s.ActionLog = append(s.ActionLog, PlayerAction{Time: t, Action: a.Action, Target: a.Target, Details: a.Details})
	}

	metrics := newMetrics()
	if metrics.TimeToFirstCritical, err = parseISOOrNil("time_to_first_critical", snap.Metrics.TimeToFirstCritical); err != nil {
		return nil, err
	}
	metrics.TimeWastedWaiting = snap.Metrics.TimeWastedWaiting
	for _, name := range snap.Metrics.AgentsContacted {
		metrics.AgentsContacted[name] = true
	}
	for name, iso := range snap.Metrics.CriticalAgentContactTime {
		t, err := parseISO("critical_agent_contact_time", iso)
		if err != nil {
			return nil, err
		}
		metrics.CriticalAgentContactTime[name] = t
	}
	for _, ka := range snap.Metrics.KeyActionsTaken {
		if len(ka) == 3 {
			metrics.KeyActionsTaken = append(metrics.KeyActionsTaken, KeyAction{Time: ka[0], Action: ka[1], Target: ka[2]})
		}
	}
	metrics.EscalationsTriggered = snap.Metrics.EscalationsTriggered
	for key, status := range s.SystemStatus {
		if isCompromisedStatus(status) {
			metrics.compromised[key] = true
		}
	}
	metrics.SystemsCompromisedCount = len(metrics.compromised)
	s.Metrics = metrics

	s.EventLogHistory = append([]string{}, snap.EventLogHistory...)
	s.ConversationHistory = map[string][]oracle.Turn{}

	return s, nil
}
