package query

import "sync"

// Session holds the process-wide query state: the single latest-query slot
// and the display language order. There is exactly one slot, shared across
// accounts; it is cleared only by process restart. The contract is single
// writer (whichever surface last ran a query), multiple readers.
type Session struct {
	mu        sync.RWMutex
	latest    *ProductQuery
	languages []string
}

// NewSession builds a session with the configured display language order.
func NewSession(languages []string) *Session {
	return &Session{languages: languages}
}

// SetLatest records the last executed query.
func (s *Session) SetLatest(q ProductQuery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := q
	s.latest = &copied
}

// Latest returns the last executed query, if any.
func (s *Session) Latest() (ProductQuery, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return ProductQuery{}, false
	}
	return *s.latest, true
}

// Languages returns the ordered display language tags.
func (s *Session) Languages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.languages
}
