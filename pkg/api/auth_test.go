package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybersim-labs/cybersim/pkg/config"
)

const testSecret = "test-secret"

func TestParseIdentity(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		token, err := mintToken(testSecret, identity{
			UserID: "u1", Email: "alex@example.com", Role: "admin", Name: "Alex",
		}, time.Hour)
		require.NoError(t, err)

		id := parseIdentity(token, testSecret)
		assert.Equal(t, "u1", id.UserID)
		assert.Equal(t, "alex@example.com", id.Email)
		assert.Equal(t, "admin", id.Role)
		assert.Equal(t, "Alex", id.Name)
	})

	t.Run("empty token is guest", func(t *testing.T) {
		assert.Equal(t, identity{}, parseIdentity("", testSecret))
	})

	t.Run("wrong secret is guest", func(t *testing.T) {
		token, err := mintToken("other-secret", identity{UserID: "u1"}, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, identity{}, parseIdentity(token, testSecret))
	})

	t.Run("expired token is guest", func(t *testing.T) {
		token, err := mintToken(testSecret, identity{UserID: "u1"}, -time.Minute)
		require.NoError(t, err)
		assert.Equal(t, identity{}, parseIdentity(token, testSecret))
	})

	t.Run("garbage token is guest", func(t *testing.T) {
		assert.Equal(t, identity{}, parseIdentity("not.a.token", testSecret))
	})
}

func TestCurrentUser(t *testing.T) {
	s := &Server{cfg: &config.Settings{JWTSecretKey: testSecret}}
	token, err := mintToken(testSecret, identity{UserID: "u1", Name: "Alex"}, time.Hour)
	require.NoError(t, err)

	t.Run("authorization header", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		c := e.NewContext(req, httptest.NewRecorder())

		assert.Equal(t, "u1", s.currentUser(c).UserID)
	})

	t.Run("token query parameter", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/?token="+token, nil)
		c := e.NewContext(req, httptest.NewRecorder())

		assert.Equal(t, "u1", s.currentUser(c).UserID)
	})

	t.Run("no credentials is guest", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())

		assert.Equal(t, identity{}, s.currentUser(c))
	})
}
