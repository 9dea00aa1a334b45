package strategy

import (
	"sort"
	"sync"
	"time"
)

// Session records pair windows closed to new entries after a stop-loss. It is
// owned by the caller and shared by every generator of a run.
type Session struct {
	mu      sync.Mutex
	stopped map[string]time.Time
}

func NewSession() *Session {
	return &Session{stopped: make(map[string]time.Time)}
}

func SessionKey(pairKey, windowKey string) string {
	return pairKey + "@" + windowKey
}

func (s *Session) Stopped(pairKey, windowKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.stopped[SessionKey(pairKey, windowKey)]
	return ok
}

// MarkStopped closes the window; the first stop date is kept.
func (s *Session) MarkStopped(pairKey, windowKey string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := SessionKey(pairKey, windowKey)
	if _, ok := s.stopped[key]; ok {
		return
	}
	s.stopped[key] = at
}

// Snapshot returns a copy of the stopped windows.
func (s *Session) Snapshot() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.stopped))
	for k, v := range s.stopped {
		out[k] = v
	}
	return out
}

// Restore replaces the stopped windows with a previously taken snapshot.
func (s *Session) Restore(stopped map[string]time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = make(map[string]time.Time, len(stopped))
	for k, v := range stopped {
		s.stopped[k] = v
	}
}

func (s *Session) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.stopped))
	for k := range s.stopped {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
