package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybersim-labs/cybersim/pkg/config"
	"github.com/cybersim-labs/cybersim/pkg/events"
	"github.com/cybersim-labs/cybersim/pkg/oracle"
	"github.com/cybersim-labs/cybersim/pkg/queue"
	"github.com/cybersim-labs/cybersim/pkg/ratings"
	"github.com/cybersim-labs/cybersim/pkg/sim"
	"github.com/cybersim-labs/cybersim/pkg/store"
)

// fakeRatingsDB records rating SQL without a real database.
type fakeRatingsDB struct {
	sql  []string
	args [][]any
}

func (f *fakeRatingsDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

type serverFixture struct {
	server *Server
	store  *store.Store
	queue  *queue.MemoryQueue
	db     *fakeRatingsDB
	cfg    *config.Settings
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	st := store.New(rdb, time.Hour)
	q := queue.NewMemory()
	db := &fakeRatingsDB{}
	cfg := &config.Settings{JWTSecretKey: "test-secret"}
	connManager := events.NewConnectionManager(events.NewBus(nil), time.Second)

	return &serverFixture{
		server: NewServer(cfg, st, q, connManager, ratings.New(db)),
		store:  st,
		queue:  q,
		db:     db,
		cfg:    cfg,
	}
}

// seedSimulation stores a started Ransomware run owned by the given ids.
func seedSimulation(t *testing.T, f *serverFixture, simID, userID, guestID string) *sim.Simulation {
	t.Helper()
	s := sim.NewSimulation(simID)
	m := sim.NewManager(s, oracle.NewAnthropic("", ""))
	require.NoError(t, m.Start(sim.StartParams{
		UserID:          userID,
		GuestID:         guestID,
		PlayerName:      "Alex",
		ScenarioKey:     "Ransomware",
		IntensityKey:    "Medium",
		DurationMinutes: 30,
	}))
	require.NoError(t, f.store.Save(context.Background(), s))
	return s
}

func (f *serverFixture) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("{}")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.echo.ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) userToken(t *testing.T, userID, name string) string {
	t.Helper()
	token, err := mintToken(f.cfg.JWTSecretKey, identity{UserID: userID, Name: name}, time.Hour)
	require.NoError(t, err)
	return token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestStartHandler(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		f := newServerFixture(t)
		rec := f.request(t, http.MethodPost, "/api/sim/start", "", map[string]any{
			"scenario": "Ransomware",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("queues a start job", func(t *testing.T) {
		f := newServerFixture(t)
		token := f.userToken(t, "u1", "Alex")
		rec := f.request(t, http.MethodPost, "/api/sim/start", token, map[string]any{
			"scenario":  "Ransomware",
			"intensity": "High",
			"duration":  45,
		})
		require.Equal(t, http.StatusAccepted, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, "Simulation starting...", body["message"])
		simID, _ := body["simulation_id"].(string)
		assert.True(t, strings.HasPrefix(simID, "user_u1_"), "got id %q", simID)
		assert.Len(t, simID, len("user_u1_")+8)

		job, err := f.queue.Dequeue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStartSimulation, job.Task)
		assert.Equal(t, simID, job.SimID)
		assert.Equal(t, "u1", job.Args["user_id"])
		assert.Equal(t, "Alex", job.Args["player_name"])
		assert.Equal(t, "Ransomware", job.Args["scenario_key"])
		assert.Equal(t, "High", job.Args["intensity_key"])
		assert.Equal(t, 45, job.Args["duration_minutes"])
	})

	t.Run("queue unavailable", func(t *testing.T) {
		f := newServerFixture(t)
		f.server.queue = nil
		token := f.userToken(t, "u1", "Alex")
		rec := f.request(t, http.MethodPost, "/api/sim/start", token, map[string]any{
			"scenario": "Ransomware",
		})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestStartGuestHandler(t *testing.T) {
	f := newServerFixture(t)
	rec := f.request(t, http.MethodPost, "/api/sim/start_guest", "", map[string]any{
		"scenario":  "DDoS",
		"intensity": "Low",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decodeBody(t, rec)
	simID, _ := body["simulation_id"].(string)
	assert.True(t, strings.HasPrefix(simID, "guest_"), "got id %q", simID)
	assert.Len(t, simID, len("guest_")+12)
	assert.Equal(t, simID, body["guest_id"])

	job, err := f.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, queue.TaskStartSimulation, job.Task)
	assert.Equal(t, simID, job.Args["guest_id"])
	assert.Equal(t, "Guest", job.Args["player_name"])
}

func TestActionHandler(t *testing.T) {
	t.Run("rejects missing action text", func(t *testing.T) {
		f := newServerFixture(t)
		seedSimulation(t, f, "sim-1", "u1", "")
		token := f.userToken(t, "u1", "Alex")

		for _, body := range []map[string]any{
			{},
			{"action": map[string]any{}},
			{"action": map[string]any{"action": 42}},
			{"action": map[string]any{"action": "   "}},
		} {
			rec := f.request(t, http.MethodPost, "/api/sim/sim-1/action", token, body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		}
	})

	t.Run("unknown simulation is indistinguishable from a foreign one", func(t *testing.T) {
		f := newServerFixture(t)
		token := f.userToken(t, "u1", "Alex")
		rec := f.request(t, http.MethodPost, "/api/sim/missing/action", token, map[string]any{
			"action": map[string]any{"action": "status"},
		})
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "You do not have access to this simulation.")
	})

	t.Run("denies the wrong user", func(t *testing.T) {
		f := newServerFixture(t)
		seedSimulation(t, f, "sim-1", "u1", "")
		token := f.userToken(t, "u2", "Sam")
		rec := f.request(t, http.MethodPost, "/api/sim/sim-1/action", token, map[string]any{
			"action": map[string]any{"action": "status"},
		})
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "You do not have access to this simulation.")
	})

	t.Run("queues the action", func(t *testing.T) {
		f := newServerFixture(t)
		seedSimulation(t, f, "sim-1", "u1", "")
		token := f.userToken(t, "u1", "Alex")
		rec := f.request(t, http.MethodPost, "/api/sim/sim-1/action", token, map[string]any{
			"action": map[string]any{"action": "call hao"},
		})
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "action processing", decodeBody(t, rec)["status"])

		job, err := f.queue.Dequeue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, queue.TaskHandleAction, job.Task)
		assert.Equal(t, "sim-1", job.SimID)
		assert.Equal(t, "call hao", job.Args["action"])
		assert.Equal(t, "u1", job.Args["user_id"])
	})

	t.Run("anonymous access to a guest run", func(t *testing.T) {
		f := newServerFixture(t)
		seedSimulation(t, f, "guest_abc123def456", "", "guest_abc123def456")
		// No token, no extra credential: knowing the guest id is enough.
		rec := f.request(t, http.MethodPost, "/api/sim/guest_abc123def456/action", "", map[string]any{
			"action": map[string]any{"action": "status"},
		})
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("authenticated users are denied guest runs", func(t *testing.T) {
		f := newServerFixture(t)
		seedSimulation(t, f, "guest_abc123def456", "", "guest_abc123def456")
		token := f.userToken(t, "u1", "Alex")
		rec := f.request(t, http.MethodPost, "/api/sim/guest_abc123def456/action", token, map[string]any{
			"action": map[string]any{"action": "status"},
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestBriefingHandler(t *testing.T) {
	f := newServerFixture(t)
	seedSimulation(t, f, "sim-1", "u1", "")
	token := f.userToken(t, "u1", "Alex")
	rec := f.request(t, http.MethodPost, "/api/sim/sim-1/briefing", token, map[string]any{
		"talking_points": "Contained the outbreak, restoring from backups.",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "briefing processing", decodeBody(t, rec)["status"])

	job, err := f.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, queue.TaskHandleBriefing, job.Task)
	assert.Equal(t, "Contained the outbreak, restoring from backups.", job.Args["talking_points"])
}

func TestRateHandler(t *testing.T) {
	t.Run("validates the rating", func(t *testing.T) {
		f := newServerFixture(t)
		token := f.userToken(t, "u1", "Alex")
		for _, body := range []map[string]any{
			{"rating": 3},
			{"simulation_id": "sim-1", "rating": 0},
			{"simulation_id": "sim-1", "rating": 6},
		} {
			rec := f.request(t, http.MethodPost, "/api/sim/rate", token, body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		}
	})

	t.Run("stores the rating", func(t *testing.T) {
		f := newServerFixture(t)
		seedSimulation(t, f, "sim-1", "u1", "")
		token := f.userToken(t, "u1", "Alex")
		rec := f.request(t, http.MethodPost, "/api/sim/rate", token, map[string]any{
			"simulation_id": "sim-1",
			"rating":        5,
			"feedback":      "Great exercise",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "Thank you for your feedback!", decodeBody(t, rec)["message"])

		require.Len(t, f.db.args, 1)
		assert.Equal(t, []any{"sim-1", "u1", 5, "Great exercise"}, f.db.args[0])
	})

	t.Run("accepts ratings for expired runs", func(t *testing.T) {
		f := newServerFixture(t)
		token := f.userToken(t, "u1", "Alex")
		rec := f.request(t, http.MethodPost, "/api/sim/rate", token, map[string]any{
			"simulation_id": "sim-gone",
			"rating":        4,
		})
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("denies a foreign simulation", func(t *testing.T) {
		f := newServerFixture(t)
		seedSimulation(t, f, "sim-1", "u1", "")
		token := f.userToken(t, "u2", "Sam")
		rec := f.request(t, http.MethodPost, "/api/sim/rate", token, map[string]any{
			"simulation_id": "sim-1",
			"rating":        4,
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unavailable without storage", func(t *testing.T) {
		f := newServerFixture(t)
		f.server.ratings = nil
		token := f.userToken(t, "u1", "Alex")
		rec := f.request(t, http.MethodPost, "/api/sim/rate", token, map[string]any{
			"simulation_id": "sim-1",
			"rating":        4,
		})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHealthHandler(t *testing.T) {
	f := newServerFixture(t)
	rec := f.request(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(0), body["active_connections"])
}
