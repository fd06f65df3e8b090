package store

import (
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry hands out per-agent stores, opened lazily and cached by agent
// name. Agents without a private data directory share the bridge store.
type Registry struct {
	mu      sync.Mutex
	bridge  *Store
	byAgent map[string]*Store
}

// NewRegistry creates a registry around the always-present bridge store.
func NewRegistry(bridge *Store) *Registry {
	return &Registry{bridge: bridge, byAgent: make(map[string]*Store)}
}

// Bridge returns the bridge store.
func (r *Registry) Bridge() *Store { return r.bridge }

// ForAgent returns the store for an agent, opening it on first use.
func (r *Registry) ForAgent(name, dataDir string) (*Store, error) {
	if dataDir == "" {
		return r.bridge, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byAgent[name]; ok {
		return s, nil
	}
	s, err := Open(filepath.Join(dataDir, "waclaw.db"))
	if err != nil {
		return nil, err
	}
	r.byAgent[name] = s
	log.Info().Str("agent", name).Str("path", s.Path()).Msg("opened agent store")
	return s, nil
}

// All returns every distinct store: the bridge store plus one per opened
// agent store. Agents sharing the bridge store are not duplicated.
func (r *Registry) All() []*Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*Store{r.bridge}
	seen := map[string]struct{}{r.bridge.Path(): {}}
	for _, s := range r.byAgent {
		if _, ok := seen[s.Path()]; ok {
			continue
		}
		seen[s.Path()] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Close closes every store owned by the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, s := range r.byAgent {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Str("agent", name).Msg("closing agent store")
		}
	}
	r.byAgent = make(map[string]*Store)
	if err := r.bridge.Close(); err != nil {
		log.Warn().Err(err).Msg("closing bridge store")
	}
}
