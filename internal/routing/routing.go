// Package routing maps WhatsApp chats to agent personalities.
//
// Each agent has a trigger name (for @mentions), an optional model override
// and an optional private data directory. Chats not listed in the routes
// table, and all direct messages, use the default agent.
package routing

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Agent is the configuration for a single agent personality.
type Agent struct {
	Name    string
	Model   string
	DataDir string
}

// Config is the multi-agent chat routing table.
type Config struct {
	DefaultAgent string
	Agents       map[string]Agent
	Routes       map[string][]string
}

// routesFile is the on-disk JSON shape.
type routesFile struct {
	DefaultAgent string                `json:"default_agent"`
	Agents       map[string]agentEntry `json:"agents"`
	Routes       map[string][]string   `json:"routes"`
}

type agentEntry struct {
	Model   string `json:"model"`
	DataDir string `json:"data_dir"`
}

// AgentsFor returns the agents mapped to a chat, in route order.
// Unrouted chats get the default agent.
func (c *Config) AgentsFor(chatJID string) []Agent {
	if names, ok := c.Routes[chatJID]; ok {
		agents := make([]Agent, 0, len(names))
		for _, name := range names {
			agents = append(agents, c.Agents[name])
		}
		return agents
	}
	return []Agent{c.Agents[c.DefaultAgent]}
}

// IsMulti reports whether a chat has two or more agents mapped.
func (c *Config) IsMulti(chatJID string) bool {
	return len(c.Routes[chatJID]) >= 2
}

// AllTriggerNames returns every agent name, sorted.
func (c *Config) AllTriggerNames() []string {
	names := make([]string, 0, len(c.Agents))
	for name := range c.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConversationName builds the agent-scoped conversation key for a chat.
// Format: wa-{agent_name_lower}-{jid}.
func (c *Config) ConversationName(agent Agent, chatJID string) string {
	return "wa-" + strings.ToLower(agent.Name) + "-" + chatJID
}

// ParseConversation splits a conversation name back into (agent, chat).
// Returns (zero Agent, "", false) when no known agent prefix matches.
func (c *Config) ParseConversation(conversation string) (Agent, string, bool) {
	for _, name := range c.AllTriggerNames() {
		prefix := "wa-" + strings.ToLower(name) + "-"
		if strings.HasPrefix(conversation, prefix) {
			return c.Agents[name], conversation[len(prefix):], true
		}
	}
	return Agent{}, "", false
}

// Single returns a degenerate single-agent config for the given trigger name.
func Single(trigger string) *Config {
	return &Config{
		DefaultAgent: trigger,
		Agents:       map[string]Agent{trigger: {Name: trigger}},
		Routes:       map[string][]string{},
	}
}

// Load reads the routing JSON at path, falling back to a single-agent
// config named defaultTrigger when path is empty or missing.
//
// Route entries referencing unknown agents are dropped with a warning;
// entries left empty are dropped entirely. A default agent missing from
// the agents table is synthesized with no model override.
func Load(path, defaultTrigger string) (*Config, error) {
	if path == "" {
		return Single(defaultTrigger), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", path).Msg("routing file not found, using single-agent config")
			return Single(defaultTrigger), nil
		}
		return nil, fmt.Errorf("read routing config: %w", err)
	}

	var file routesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse routing config %s: %w", path, err)
	}

	agents := make(map[string]Agent, len(file.Agents))
	for name, entry := range file.Agents {
		agents[name] = Agent{Name: name, Model: entry.Model, DataDir: entry.DataDir}
	}

	defaultName := file.DefaultAgent
	if defaultName == "" {
		defaultName = defaultTrigger
	}
	if _, ok := agents[defaultName]; !ok {
		agents[defaultName] = Agent{Name: defaultName}
	}

	routes := make(map[string][]string, len(file.Routes))
	for jid, names := range file.Routes {
		valid := make([]string, 0, len(names))
		for _, name := range names {
			if _, ok := agents[name]; ok {
				valid = append(valid, name)
			} else {
				log.Warn().Str("chat", jid).Str("agent", name).Msg("route references unknown agent, skipping")
			}
		}
		if len(valid) > 0 {
			routes[jid] = valid
		}
	}

	cfg := &Config{DefaultAgent: defaultName, Agents: agents, Routes: routes}
	log.Info().
		Int("agents", len(agents)).
		Int("routes", len(routes)).
		Str("default", defaultName).
		Msg("loaded routing config")
	return cfg, nil
}
