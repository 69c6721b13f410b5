// Package state owns the global state of the bot: per-scope memory,
// durable timers, hooks and presence. All durable data goes through the
// Store; callers only ever receive copies.
package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/flake/datastore"
)

// Store is the single source of truth for durable data.
type Store struct {
	mu   sync.RWMutex
	doc  map[string]any
	snap *datastore.Snapshot
	log  zerolog.Logger
}

// Open loads the snapshot, or initializes an empty state when it is
// missing or unreadable. In the latter case the fresh state is flushed
// right away so a snapshot always exists after boot.
func Open(snap *datastore.Snapshot, log zerolog.Logger) *Store {
	s := &Store{snap: snap, log: log}

	doc, err := snap.Load()
	switch {
	case err == nil:
		s.doc = doc
		s.repair()
		s.log.Info().Str("file", snap.Path()).Int("timers", len(s.section(keyTimers))).Msg("loaded memory")
		return s
	case errors.Is(err, datastore.ErrNotFound):
		s.log.Info().Str("file", snap.Path()).Msg("no memory file yet, starting fresh")
	default:
		s.log.Error().Err(err).Str("file", snap.Path()).Msg("memory file unreadable, starting fresh")
	}

	s.doc = emptyDocument()
	if err := s.Flush(); err != nil {
		s.log.Error().Err(err).Msg("initial flush failed")
	}
	return s
}

func emptyDocument() map[string]any {
	return map[string]any{
		string(Users):    map[string]any{},
		string(Channels): map[string]any{},
		string(Guilds):   map[string]any{},
		keyActivity:      map[string]any{"string": "", "type": "PLAYING"},
		keyTimers:        map[string]any{},
	}
}

// repair restores top-level sections that are missing or of the wrong type.
func (s *Store) repair() {
	for k, v := range emptyDocument() {
		if _, ok := s.doc[k].(map[string]any); !ok {
			if _, present := s.doc[k]; present {
				s.log.Warn().Str("key", k).Msg("memory section has wrong type, resetting it")
			}
			s.doc[k] = v
		}
	}
}

// section returns a top-level map, creating it if needed. Caller holds the lock.
func (s *Store) section(key string) map[string]any {
	m, ok := s.doc[key].(map[string]any)
	if !ok {
		m = map[string]any{}
		s.doc[key] = m
	}
	return m
}

// Read returns a deep copy of the whole state.
func (s *Store) Read() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMap(s.doc)
}

// MergeDurable deep-merges patch into the state. See deepMerge for the rules.
func (s *Store) MergeDurable(patch map[string]any) error {
	n, err := normalize(patch)
	if err != nil {
		return err
	}
	pm, _ := n.(map[string]any)

	s.mu.Lock()
	defer s.mu.Unlock()
	deepMerge(s.doc, pm)
	s.repair()
	return nil
}

// Flush writes a snapshot of the current state. On failure the in-memory
// state stays authoritative.
func (s *Store) Flush() error {
	doc := s.Read()
	if err := s.snap.Save(doc); err != nil {
		return fmt.Errorf("flush memory: %w", err)
	}
	s.log.Debug().Str("file", s.snap.Path()).Msg("saved memory")
	return nil
}

// EnsureScope creates an empty scope map. It reports whether one was created.
func (s *Store) EnsureScope(kind ScopeKind, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	scopes := s.section(string(kind))
	if _, ok := scopes[id].(map[string]any); ok {
		return false
	}
	scopes[id] = map[string]any{}
	return true
}

// Scope returns a copy of one scope map.
func (s *Store) Scope(kind ScopeKind, id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.scope(kind, id)
	if !ok {
		return nil, false
	}
	return cloneMap(m), true
}

func (s *Store) scope(kind ScopeKind, id string) (map[string]any, bool) {
	scopes, ok := s.doc[string(kind)].(map[string]any)
	if !ok {
		return nil, false
	}
	m, ok := scopes[id].(map[string]any)
	return m, ok
}

// ScopeIDs lists the ids of a scope kind, sorted.
func (s *Store) ScopeIDs(kind ScopeKind) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scopes, _ := s.doc[string(kind)].(map[string]any)
	return sortedKeys(scopes)
}

// DeleteScope removes a scope and everything stored in it.
func (s *Store) DeleteScope(kind ScopeKind, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.section(string(kind)), id)
}

// SetScopeValue stores v under key in a scope, creating the scope if needed.
func (s *Store) SetScopeValue(kind ScopeKind, id, key string, v any) error {
	n, err := normalize(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	scopes := s.section(string(kind))
	m, ok := scopes[id].(map[string]any)
	if !ok {
		m = map[string]any{}
		scopes[id] = m
	}
	m[key] = n
	return nil
}

// ScopeValue returns a copy of a value stored in a scope.
func (s *Store) ScopeValue(kind ScopeKind, id, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.scope(kind, id)
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return cloneValue(v), ok
}

// DeleteScopeValue removes key from a scope. Missing scopes are ignored.
func (s *Store) DeleteScopeValue(kind ScopeKind, id, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.scope(kind, id); ok {
		delete(m, key)
	}
}

// ConfigOverride returns the guild's config override map, if any.
func (s *Store) ConfigOverride(guildID string) map[string]any {
	v, ok := s.ScopeValue(Guilds, guildID, KeyConfigOverride)
	if !ok {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

// Presence returns the stored activity.
func (s *Store) Presence() Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var p Presence
	_ = decode(s.doc[keyActivity], &p)
	return p
}

// SetPresence stores the activity.
func (s *Store) SetPresence(p Presence) {
	n, _ := normalize(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc[keyActivity] = n
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
