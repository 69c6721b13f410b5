package state

import (
	"fmt"

	"github.com/google/uuid"
)

// NewTimerID returns an id that is not used by any stored timer.
func (s *Store) NewTimerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	timers, _ := s.doc[keyTimers].(map[string]any)
	for {
		id := uuid.NewString()[:8]
		if _, taken := timers[id]; !taken {
			return id
		}
	}
}

// Timer returns the durable record of a timer.
func (s *Store) Timer(id string) (TimerRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	timers, _ := s.doc[keyTimers].(map[string]any)
	raw, ok := timers[id]
	if !ok {
		return TimerRecord{}, false
	}
	var rec TimerRecord
	if err := decode(raw, &rec); err != nil {
		s.log.Warn().Err(err).Str("timer", id).Msg("undecodable timer record")
		return TimerRecord{}, false
	}
	return rec, true
}

// HasTimer reports whether a durable record exists for id.
func (s *Store) HasTimer(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	timers, _ := s.doc[keyTimers].(map[string]any)
	_, ok := timers[id]
	return ok
}

// PutTimer stores a timer record.
func (s *Store) PutTimer(id string, rec TimerRecord) error {
	n, err := normalize(rec)
	if err != nil {
		return fmt.Errorf("timer %s: %w", id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.section(keyTimers)[id] = n
	return nil
}

// DeleteTimer removes a timer record. It reports whether one existed.
func (s *Store) DeleteTimer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	timers := s.section(keyTimers)
	if _, ok := timers[id]; !ok {
		return false
	}
	delete(timers, id)
	return true
}

// TimerIDs lists all stored timer ids, sorted.
func (s *Store) TimerIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	timers, _ := s.doc[keyTimers].(map[string]any)
	return sortedKeys(timers)
}
