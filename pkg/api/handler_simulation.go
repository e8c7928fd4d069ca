package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/cybersim-labs/cybersim/pkg/queue"
	"github.com/cybersim-labs/cybersim/pkg/tasks"
)

// randomID returns n hex characters for simulation identifiers.
func randomID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// startHandler handles POST /api/sim/start. The run is queued;
// progress arrives over the WebSocket stream.
func (s *Server) startHandler(c *echo.Context) error {
	user := s.currentUser(c)
	if user.UserID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}
	if s.queue == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Simulation workers are not available")
	}

	var req StartSimulationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	playerName := req.PlayerName
	if playerName == "" {
		playerName = user.Name
	}
	if playerName == "" {
		playerName = "Player"
	}

	simID := "user_" + user.UserID + "_" + randomID(8)
	err := s.queue.Enqueue(c.Request().Context(), queue.Job{
		Task:    queue.TaskStartSimulation,
		SimID:   simID,
		Timeout: tasks.StartTimeout,
		Args: map[string]any{
			"user_id":          user.UserID,
			"player_name":      playerName,
			"scenario_key":     req.Scenario,
			"intensity_key":    req.Intensity,
			"duration_minutes": req.Duration,
		},
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to queue simulation start")
	}

	return c.JSON(http.StatusAccepted, &StartSimulationResponse{
		Message:      "Simulation starting...",
		SimulationID: simID,
	})
}

// startGuestHandler handles POST /api/sim/start_guest. The guest
// id doubles as the simulation id; the client presents it on later requests
// in place of a token.
func (s *Server) startGuestHandler(c *echo.Context) error {
	if s.queue == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Simulation workers are not available")
	}

	var req StartSimulationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	playerName := req.PlayerName
	if playerName == "" {
		playerName = "Guest"
	}

	guestID := "guest_" + randomID(12)
	err := s.queue.Enqueue(c.Request().Context(), queue.Job{
		Task:    queue.TaskStartSimulation,
		SimID:   guestID,
		Timeout: tasks.StartTimeout,
		Args: map[string]any{
			"guest_id":         guestID,
			"player_name":      playerName,
			"scenario_key":     req.Scenario,
			"intensity_key":    req.Intensity,
			"duration_minutes": req.Duration,
		},
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to queue simulation start")
	}

	return c.JSON(http.StatusAccepted, &StartSimulationResponse{
		Message:      "Simulation starting...",
		SimulationID: guestID,
		GuestID:      guestID,
	})
}

// actionHandler handles POST /api/sim/:sim_id/action.
func (s *Server) actionHandler(c *echo.Context) error {
	simID := c.Param("sim_id")

	var req ActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	text, ok := req.Action.Action.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "Request must include an action string")
	}

	user := s.currentUser(c)
	sm, err := s.store.Load(c.Request().Context(), simID)
	if err != nil {
		return mapStoreError(err)
	}
	// Missing state gets the same response as an ownership mismatch so the
	// gate never reveals whether a simulation id exists.
	if sm == nil || !tasks.VerifyAccess(sm, user.UserID) {
		return echo.NewHTTPError(http.StatusForbidden, "You do not have access to this simulation.")
	}

	err = s.queue.Enqueue(c.Request().Context(), queue.Job{
		Task:    queue.TaskHandleAction,
		SimID:   simID,
		Timeout: tasks.ActionTimeout,
		Args: map[string]any{
			"action":  text,
			"user_id": user.UserID,
		},
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to queue action")
	}

	return c.JSON(http.StatusAccepted, &AcceptedResponse{Status: "action processing"})
}

// briefingHandler handles POST /api/sim/:sim_id/briefing.
func (s *Server) briefingHandler(c *echo.Context) error {
	simID := c.Param("sim_id")

	var req BriefingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	user := s.currentUser(c)
	sm, err := s.store.Load(c.Request().Context(), simID)
	if err != nil {
		return mapStoreError(err)
	}
	if sm == nil || !tasks.VerifyAccess(sm, user.UserID) {
		return echo.NewHTTPError(http.StatusForbidden, "You do not have access to this simulation.")
	}

	err = s.queue.Enqueue(c.Request().Context(), queue.Job{
		Task:    queue.TaskHandleBriefing,
		SimID:   simID,
		Timeout: tasks.BriefingTimeout,
		Args: map[string]any{
			"talking_points": req.TalkingPoints,
			"user_id":        user.UserID,
		},
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to queue briefing")
	}

	return c.JSON(http.StatusAccepted, &AcceptedResponse{Status: "briefing processing"})
}

// rateHandler handles POST /api/sim/rate. Ratings outlive the
// simulation state, so an expired run can still be rated.
func (s *Server) rateHandler(c *echo.Context) error {
	if s.ratings == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Rating storage is not configured")
	}

	var req RateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.SimulationID == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "simulation_id is required")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "Rating must be between 1 and 5")
	}

	user := s.currentUser(c)
	sm, err := s.store.Load(c.Request().Context(), req.SimulationID)
	if err != nil {
		return mapStoreError(err)
	}
	if sm != nil && !tasks.VerifyAccess(sm, user.UserID) {
		return echo.NewHTTPError(http.StatusForbidden, "You do not have access to this simulation.")
	}

	if err := s.ratings.UpsertUserStarRating(c.Request().Context(), req.SimulationID, req.Rating, req.Feedback, user.UserID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to store rating")
	}
	return c.JSON(http.StatusCreated, &RateResponse{Message: "Thank you for your feedback!"})
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	active := 0
	if s.connManager != nil {
		active = s.connManager.ActiveConnections()
	}
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:            "healthy",
		ActiveConnections: active,
	})
}
