// Package events carries simulation events from the task workers to
// WebSocket clients. Redis Pub/Sub is the cross-instance substrate; an
// in-process bus fans events out to local connections.
package events

// Event is a single simulation event. Payload always carries simulation_id.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Event type names emitted by the simulation engine.
const (
	TypeInitialState        = "initial_state"
	TypeLog                 = "log"
	TypeLogFeedUpdate       = "log_feed_update"
	TypeDisplayMessage      = "display_message"
	TypeStateChange         = "state_change"
	TypeSystemStatusUpdate  = "system_status_update"
	TypeAgentStatusUpdate   = "agent_status_update"
	TypeSimulationStarted   = "simulation_started"
	TypeSimulationEnded     = "simulation_ended"
	TypeConversationStarted = "conversation_started"
	TypeConversationEnded   = "conversation_ended"
	TypeCallWaiting         = "call_waiting"
	TypeCallAnswered        = "call_answered"
	TypeCallIgnored         = "call_ignored"
	TypeMissedCallsUpdate   = "missed_calls_update"
	TypeIntensityUpdate     = "intensity_update"
	TypeTimeUpdate          = "time_update"
	TypeDecisionPointInfo   = "decision_point_info"
	TypeDebriefInfo         = "debrief_info"
	TypeDebriefRatingUpdate = "debrief_rating_update"
	TypeRequestUserRating   = "request_user_rating"
	TypeRequestYesNo        = "request_yes_no"
	TypeRequestAnalystInput = "request_analyst_input"
	TypeError               = "error"
)

// channelFor returns the Redis Pub/Sub channel for a simulation.
func channelFor(simID string) string {
	return "sim_events:" + simID
}

const channelPattern = "sim_events:*"
const channelPrefix = "sim_events:"
