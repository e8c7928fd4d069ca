package api

// StartSimulationResponse acknowledges a queued start.
type StartSimulationResponse struct {
	Message      string `json:"message"`
	SimulationID string `json:"simulation_id"`
	GuestID      string `json:"guest_id,omitempty"`
}

// AcceptedResponse acknowledges a queued action or briefing.
type AcceptedResponse struct {
	Status string `json:"status"`
}

// RateResponse acknowledges a recorded rating.
type RateResponse struct {
	Message string `json:"message"`
}

// HealthResponse reports server liveness.
type HealthResponse struct {
	Status            string `json:"status"`
	ActiveConnections int    `json:"active_connections"`
}
