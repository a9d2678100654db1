package state

import (
	"encoding/json"
	"sync"
)

// Store is the process-wide latest-value cell for the game state.
type Store struct {
	mu      sync.RWMutex
	current GameState
	version uint64
}

// NewStore creates a store holding the default snapshot.
func NewStore() *Store {
	return &Store{current: Default()}
}

// Get returns a copy of the current snapshot.
func (s *Store) Get() GameState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Set replaces the current snapshot.
func (s *Store) Set(gs GameState) {
	next := gs.Clone()

	s.mu.Lock()
	s.current = next
	s.version++
	s.mu.Unlock()
}

// SetRunning stamps the lifecycle flag on the current snapshot.
func (s *Store) SetRunning(running bool) {
	flag := json.RawMessage(`false`)
	if running {
		flag = json.RawMessage(`true`)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	next[RunningField] = flag
	s.current = next
	s.version++
}

// Version returns the number of mutations applied since creation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
