package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Andy", s.TriggerName)
	assert.Equal(t, 90*time.Second, s.BatchWindow)
	assert.Empty(t, s.AgentRoutes)
	assert.NotEmpty(t, s.AuthDir)
	assert.NotEmpty(t, s.SessionDB)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv(EnvPrefix+"TRIGGER_NAME", "Ressu")
	t.Setenv(EnvPrefix+"BATCH_WINDOW_SECONDS", "5")
	t.Setenv(EnvPrefix+"SESSION_DB", "/tmp/wa.db")
	t.Setenv(EnvPrefix+"AGENT_ROUTES", "/tmp/routes.json")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Ressu", s.TriggerName)
	assert.Equal(t, 5*time.Second, s.BatchWindow)
	assert.Equal(t, "/tmp/wa.db", s.SessionDB)
	assert.Equal(t, "/tmp/routes.json", s.AgentRoutes)
}

func TestLoad_UnknownPrefixedKeyRejected(t *testing.T) {
	t.Setenv(EnvPrefix+"BOGUS", "1")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PYKOCLAW_WA_BOGUS")
}

func TestLoad_InvalidWindow(t *testing.T) {
	for _, bad := range []string{"abc", "0", "-3"} {
		t.Run(bad, func(t *testing.T) {
			t.Setenv(EnvPrefix+"BATCH_WINDOW_SECONDS", bad)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
