package state

import (
	"fmt"
	"sync"
)

// Store owns exactly one VersionedState.
type Store struct {
	mu       sync.RWMutex
	current  VersionedState
	checksum Checksummer
	clock    Clock
}

// NewStore creates an empty store at version 0. The checksum of the empty
// data is computed immediately so the checksum invariant holds from the
// start.
func NewStore(checksum Checksummer, clock Clock) *Store {
	if checksum == nil {
		checksum = NewKyberChecksum()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	s := &Store{
		current:  VersionedState{Data: map[string]any{}},
		checksum: checksum,
		clock:    clock,
	}
	s.current.Timestamp = clock.Now()
	s.current.Checksum = checksum.Checksum(s.current.Data)
	return s
}

// Mutate runs fn on the live state under the write lock and commits the
// result: checksum and timestamp are recomputed afterwards. fn must not keep
// references to vs.
func (s *Store) Mutate(fn func(vs *VersionedState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.current)
	if s.current.Data == nil {
		s.current.Data = map[string]any{}
	}
	if s.current.Version < 0 {
		panic(fmt.Sprintf("state: negative version %d", s.current.Version))
	}
	s.current.Checksum = s.checksum.Checksum(s.current.Data)
	s.current.Timestamp = s.clock.Now()
}

// Read runs fn with read access to the live state.
func (s *Store) Read(fn func(vs *VersionedState)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.current)
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() VersionedState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Version returns the current version.
func (s *Store) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Version
}

// Checksummer returns the checksum strategy of the store.
func (s *Store) Checksummer() Checksummer {
	return s.checksum
}

// Clock returns the clock of the store.
func (s *Store) Clock() Clock {
	return s.clock
}
