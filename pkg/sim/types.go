// Package sim implements the incident-response simulation engine: the state
// machine, scenario escalation rules, NPC agents, player input dispatch,
// dynamic intensity, and the debrief/rating flow. A Manager owns one
// Simulation between load and save; tasks drain its emitted events and
// publish them.
package sim

import (
	"time"

	"github.com/cybersim-labs/cybersim/pkg/oracle"
)

// State is the simulation lifecycle state.
type State string

// Simulation states.
const (
	StateSetup                   State = "SETUP"
	StateInitialAlert            State = "INITIAL_ALERT"
	StateAwaitingPlayerChoice    State = "AWAITING_PLAYER_CHOICE"
	StateInConversation          State = "IN_CONVERSATION"
	StateDecisionPointShutdown   State = "DECISION_POINT_SHUTDOWN"
	StatePostInitialCrisis       State = "POST_INITIAL_CRISIS"
	StateAwaitingUserRating      State = "AWAITING_USER_RATING"
	StateAwaitingAnalystBriefing State = "AWAITING_ANALYST_BRIEFING"
	StateEnded                   State = "ENDED"
	StateError                   State = "ERROR"
)

// Agent availability states.
const (
	AgentAvailable          = "available"
	AgentInvestigating      = "investigating"
	AgentBusyMonitoring     = "busy_monitoring"
	AgentBusyExternalCall   = "busy_external_call"
	AgentOnCallWithCTO      = "on_call_with_cto"
	AgentWaitingCTOResponse = "waiting_cto_response"
	AgentTryingToCallCTO    = "trying_to_call_cto"
	AgentUnavailable        = "unavailable"
)

// Engine constants. Durations are simulation seconds unless noted.
const (
	DefaultDurationMinutes = 30

	// TickInterval is the real-time base delay between background checks;
	// the scheduler multiplies it by the current intensity modifier.
	TickInterval = 10 * time.Second

	baseIdleUpdateInterval      = 240.0
	baseEscalationCheckInterval = 150.0
	execPanicDelay              = 300.0
	noiseInterval               = 60.0

	agentContactCooldown = 3 * time.Minute // simulation time

	intensityDecayFactor = 0.90
	minIntensityMod      = 0.3

	eventLogCap   = 100
	eventLogTrim  = 80
	actionLogCap  = 50
	actionLogTrim = 40

	// Oracle call budgets.
	agentResponseTemp    = 0.7
	agentMaxTokens       = 250
	ratingTemp           = 0.2
	ratingMaxTokens      = 600
	prFeedbackTemp       = 0.5
	prFeedbackMaxTokens  = 400
	historyCap           = 6
	historyTrim          = 4
	historyTurnsSent     = 2
)

// Agent is one NPC's mutable state.
type Agent struct {
	Name                string
	State               string
	Flags               map[string]bool
	LastContactTime     *time.Time
	LastUpdateTime      *time.Time
	LastInitiativeCheck *time.Time
}

// PlayerAction is one logged player command (simulation time).
type PlayerAction struct {
	Time    time.Time
	Action  string
	Target  string
	Details map[string]any
}

// KeyAction is a decision-relevant action recorded for the debrief.
type KeyAction struct {
	Time   string // sim clock HH:MM:SS
	Action string
	Target string
}

// Metrics accumulates performance data for the debrief and rating.
type Metrics struct {
	TimeToFirstCritical      *time.Time
	TimeWastedWaiting        float64 // simulation seconds
	AgentsContacted          map[string]bool
	CriticalAgentContactTime map[string]time.Time
	KeyActionsTaken          []KeyAction
	SystemsCompromisedCount  int
	EscalationsTriggered     int

	// compromised is recomputed from system status on load, never stored.
	compromised map[string]bool
}

func newMetrics() Metrics {
	return Metrics{
		AgentsContacted:          map[string]bool{},
		CriticalAgentContactTime: map[string]time.Time{},
		compromised:              map[string]bool{},
	}
}

// Simulation is the full persisted state of one run.
type Simulation struct {
	ID              string
	UserID          string // empty for guest runs
	GuestID         string
	PlayerName      string // "Name (CTO)"
	PlayerRole      string
	CurrentLocation string

	Running bool
	State   State

	ActivePartner string // agent currently on the line with the player
	WaitingCaller string // agent holding for the player (at most one)
	MissedCalls   []string

	SystemStatus    map[string]string
	EscalationLevel int
	PlayerDecisions map[string]string
	Agents          map[string]*Agent

	ScenarioKey         string
	InitialIntensityMod float64
	CurrentIntensityMod float64

	StartTime           time.Time
	EndTime             time.Time
	SimTime             time.Time
	LastEscalationCheck time.Time
	LastBackgroundCheck time.Time
	LastIntensityCheck  time.Time
	LastLogNoise        time.Time
	LastRealTimeSync    time.Time

	ActionLog       []PlayerAction
	Metrics         Metrics
	EventLogHistory []string

	// ConversationHistory is per-agent dialogue context. Deliberately not
	// persisted: each task run starts conversations with fresh context.
	ConversationHistory map[string][]oracle.Turn
}

// NewSimulation returns an empty simulation in SETUP.
func NewSimulation(id string) *Simulation {
	return &Simulation{
		ID:                  id,
		PlayerRole:          "CTO",
		CurrentLocation:     "War Room",
		State:               StateSetup,
		MissedCalls:         []string{},
		SystemStatus:        map[string]string{},
		PlayerDecisions:     map[string]string{},
		Agents:              map[string]*Agent{},
		InitialIntensityMod: 1.0,
		CurrentIntensityMod: 1.0,
		Metrics:             newMetrics(),
		ConversationHistory: map[string][]oracle.Turn{},
	}
}

// Elapsed returns simulation seconds since the start.
func (s *Simulation) Elapsed() float64 {
	return s.SimTime.Sub(s.StartTime).Seconds()
}

// SimClock formats the simulation time of day as HH:MM:SS.
func (s *Simulation) SimClock() string {
	return s.SimTime.UTC().Format("15:04:05")
}

// effectiveIntensity guards against zero or negative modifiers.
func (s *Simulation) effectiveIntensity() float64 {
	if s.CurrentIntensityMod > 0 {
		return s.CurrentIntensityMod
	}
	return 1.0
}
