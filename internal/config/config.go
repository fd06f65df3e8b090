// Package config loads bridge settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is the prefix for all bridge environment variables.
const EnvPrefix = "PYKOCLAW_WA_"

// Settings holds the WhatsApp bridge configuration.
type Settings struct {
	// AuthDir holds whatsmeow pairing credentials.
	AuthDir string
	// TriggerName is the fallback agent name when no routing file is given.
	TriggerName string
	// SessionDB is the sqlite database for messages, cursors and deliveries.
	SessionDB string
	// BatchWindow is the ambient batch debounce window.
	BatchWindow time.Duration
	// AgentRoutes is the path to the multi-agent routing JSON file ("" = none).
	AgentRoutes string
}

var knownKeys = map[string]struct{}{
	"TRIGGER_NAME":         {},
	"BATCH_WINDOW_SECONDS": {},
	"AUTH_DIR":             {},
	"SESSION_DB":           {},
	"AGENT_ROUTES":         {},
}

// Default returns the settings with all defaults applied.
func Default() Settings {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".waclaw")
	return Settings{
		AuthDir:     filepath.Join(base, "auth"),
		TriggerName: "Andy",
		SessionDB:   filepath.Join(base, "session.db"),
		BatchWindow: 90 * time.Second,
		AgentRoutes: "",
	}
}

// Load reads settings from the environment on top of the defaults.
// Any PYKOCLAW_WA_-prefixed variable that is not a known key is an error.
func Load() (Settings, error) {
	s := Default()

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		name := strings.TrimPrefix(key, EnvPrefix)
		if _, ok := knownKeys[name]; !ok {
			return Settings{}, fmt.Errorf("unknown environment variable %s", key)
		}
		switch name {
		case "TRIGGER_NAME":
			if value != "" {
				s.TriggerName = value
			}
		case "BATCH_WINDOW_SECONDS":
			secs, err := strconv.Atoi(value)
			if err != nil || secs <= 0 {
				return Settings{}, fmt.Errorf("invalid %s%s: %q", EnvPrefix, name, value)
			}
			s.BatchWindow = time.Duration(secs) * time.Second
		case "AUTH_DIR":
			s.AuthDir = expandHome(value)
		case "SESSION_DB":
			s.SessionDB = expandHome(value)
		case "AGENT_ROUTES":
			s.AgentRoutes = expandHome(value)
		}
	}
	return s, nil
}

// expandHome resolves a leading "~/" against the user's home directory.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
