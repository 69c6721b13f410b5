package state

// Hooks returns the durable hook descriptors of a guild, keyed by pattern.
func (s *Store) Hooks(guildID string) map[string]HookDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := map[string]HookDescriptor{}
	g, ok := s.scope(Guilds, guildID)
	if !ok {
		return out
	}
	raw, _ := g[KeyHooks].(map[string]any)
	for pattern, v := range raw {
		var d HookDescriptor
		if err := decode(v, &d); err != nil {
			s.log.Warn().Err(err).Str("guild", guildID).Str("pattern", pattern).Msg("undecodable hook")
			continue
		}
		d.Pattern = pattern
		out[pattern] = d
	}
	return out
}

// AddHook stores a hook descriptor. It returns false without changing
// anything if the guild already has a hook with the same pattern.
func (s *Store) AddHook(guildID string, d HookDescriptor) (bool, error) {
	n, err := normalize(d)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	guilds := s.section(string(Guilds))
	g, ok := guilds[guildID].(map[string]any)
	if !ok {
		g = map[string]any{}
		guilds[guildID] = g
	}
	hooks, ok := g[KeyHooks].(map[string]any)
	if !ok {
		hooks = map[string]any{}
		g[KeyHooks] = hooks
	}
	if _, exists := hooks[d.Pattern]; exists {
		return false, nil
	}
	hooks[d.Pattern] = n
	return true, nil
}

// RemoveHook deletes a hook descriptor. Unknown guilds and patterns are ignored.
func (s *Store) RemoveHook(guildID, pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.scope(Guilds, guildID)
	if !ok {
		return
	}
	if hooks, ok := g[KeyHooks].(map[string]any); ok {
		delete(hooks, pattern)
	}
}
