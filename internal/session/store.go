package session

import "sync"

// Store maps credentials to upstream conversation state for the process
// lifetime. Entries are never evicted once established; a pending entry is
// removed only when its creation attempt fails.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// entry tracks one credential's conversation. ready is closed once id and
// err are final; waiters must not read them before that.
type entry struct {
	ready chan struct{}
	id    string
	err   error
}

// NewStore constructs an empty process-scoped session store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// lookupOrBegin returns the entry for the credential. The second result is
// true when the caller installed a fresh pending entry and therefore owns
// the creation attempt.
func (s *Store) lookupOrBegin(credential string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[credential]; ok {
		return e, false
	}
	e := &entry{ready: make(chan struct{})}
	s.entries[credential] = e
	return e, true
}

// evict removes a failed pending entry so a later request may try again.
func (s *Store) evict(credential string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.entries[credential]; ok && current == e {
		delete(s.entries, credential)
	}
}

// Len reports the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
