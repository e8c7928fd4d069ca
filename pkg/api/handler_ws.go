package api

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/cybersim-labs/cybersim/pkg/events"
	"github.com/cybersim-labs/cybersim/pkg/sim"
	"github.com/cybersim-labs/cybersim/pkg/tasks"
)

// wsHandler handles GET /api/sim/ws/:sim_id. It upgrades the connection,
// verifies access using the optional token query parameter, sends the current
// state snapshot, and streams events until the client disconnects.
func (s *Server) wsHandler(c *echo.Context) error {
	if s.connManager == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "WebSocket not available")
	}
	simID := c.Param("sim_id")

	sm, err := s.store.Load(c.Request().Context(), simID)
	if err != nil {
		return mapStoreError(err)
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Browser clients connect from a separately hosted frontend, so
		// origin checking is delegated to the deployment's ingress.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	// Missing state closes the same way as an ownership mismatch so the
	// handshake never reveals whether a simulation id exists.
	user := parseIdentity(c.QueryParam("token"), s.cfg.JWTSecretKey)
	if sm == nil || !tasks.VerifyAccess(sm, user.UserID) {
		return conn.Close(websocket.StatusPolicyViolation, "access denied")
	}

	initial, err := json.Marshal(initialStateEvent(sm))
	if err != nil {
		return conn.Close(websocket.StatusInternalError, "state encoding failed")
	}

	s.connManager.HandleConnection(c.Request().Context(), conn, simID, initial)
	return nil
}

// initialStateEvent builds the snapshot event a client needs to render the
// simulation before live events start flowing.
func initialStateEvent(sm *sim.Simulation) events.Event {
	scenario, _ := sim.GetScenario(sm.ScenarioKey)

	intensityKey := ""
	for key, mod := range scenario.Intensity {
		if math.Abs(mod-sm.InitialIntensityMod) < 0.001 {
			intensityKey = key
			break
		}
	}

	agentStates := make(map[string]string, len(sm.Agents))
	for name, a := range sm.Agents {
		agentStates[name] = a.State
	}

	return events.Event{Type: events.TypeInitialState, Payload: map[string]any{
		"simulation_id":         sm.ID,
		"scenario":              sm.ScenarioKey,
		"description":           scenario.Description,
		"intensity_key":         intensityKey,
		"current_intensity_mod": sm.CurrentIntensityMod,
		"duration":              sm.EndTime.Sub(sm.StartTime).Minutes(),
		"player_name":           sm.PlayerName,
		"player_role":           sm.PlayerRole,
		"start_time_iso":        sm.StartTime.UTC().Format(time.RFC3339),
		"end_time_iso":          sm.EndTime.UTC().Format(time.RFC3339),
		"current_sim_time_iso":  sm.SimTime.UTC().Format(time.RFC3339),
		"initial_system_status": sm.SystemStatus,
		"initial_agent_status":  agentStates,
		"current_state":         string(sm.State),
		"missed_calls":          sm.MissedCalls,
	}}
}
