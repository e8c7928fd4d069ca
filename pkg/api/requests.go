package api

// StartSimulationRequest starts a run. Duration is in minutes.
type StartSimulationRequest struct {
	PlayerName string `json:"player_name"`
	Scenario   string `json:"scenario"`
	Intensity  string `json:"intensity"`
	Duration   int    `json:"duration"`
}

// ActionRequest carries one player command. The action field is nested to
// match the client protocol: {"action": {"action": "call hao"}}.
type ActionRequest struct {
	Action struct {
		Action any `json:"action"`
	} `json:"action"`
}

// BriefingRequest carries the player's analyst briefing talking points.
type BriefingRequest struct {
	TalkingPoints string `json:"talking_points"`
}

// RateRequest records the player's star rating for a finished run.
type RateRequest struct {
	SimulationID string `json:"simulation_id"`
	Rating       int    `json:"rating"`
	Feedback     string `json:"feedback"`
}
