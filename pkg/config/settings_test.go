package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load("testdata/missing.env")
	require.NoError(t, err)

	assert.Equal(t, "8080", s.HTTPPort)
	assert.Equal(t, "redis://localhost:6379/0", s.RedisURL)
	assert.Equal(t, "claude-sonnet-4-5", s.OracleModel)
	assert.Equal(t, 4, s.WorkerCount)
	assert.Equal(t, 30*time.Second, s.GracefulShutdownTimeout)
	assert.Equal(t, time.Hour, s.StateTTL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("STATE_TTL", "30m")
	t.Setenv("DATABASE_URL", "postgres://localhost/cybersim")

	s, err := Load("testdata/missing.env")
	require.NoError(t, err)

	assert.Equal(t, "9090", s.HTTPPort)
	assert.Equal(t, 8, s.WorkerCount)
	assert.Equal(t, 30*time.Minute, s.StateTTL)
	assert.Equal(t, "postgres://localhost/cybersim", s.DatabaseURL)
}

func TestLoadClampsWorkerCount(t *testing.T) {
	t.Setenv("WORKER_COUNT", "0")
	s, err := Load("testdata/missing.env")
	require.NoError(t, err)
	assert.Equal(t, 1, s.WorkerCount)
}
