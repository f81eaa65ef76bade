// Package memory implements store.History in process memory. Conversation
// history is never written to disk.
package memory

import (
	"log/slog"
	"sync"

	"github.com/nstogner/motifchat/pkg/domain"
	"github.com/nstogner/motifchat/pkg/store"
)

// Store is an in-memory, capacity-bounded conversation history.
type Store struct {
	mu      sync.RWMutex
	turns   []domain.Turn
	limit   int
	onClear []func()
	log     *slog.Logger
}

// Verify interface compliance.
var _ store.History = (*Store)(nil)

// New creates a store bounded to limit turns. limit <= 0 disables limiting.
func New(limit int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		limit: store.EffectiveLimit(limit),
		log:   logger,
	}
}

// Append adds a turn at the tail, evicting from the head as needed.
func (s *Store) Append(turn domain.Turn) (store.AppendResult, error) {
	if len(turn.Parts) == 0 {
		if turn.Role == domain.RoleAssistant {
			turn = domain.AssistantTurn("")
		} else {
			return store.AppendResult{}, store.ErrEmptyTurn
		}
	}
	turn = turn.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	if over := len(s.turns) + 1 - s.limit; over > 0 {
		evicted = s.evictLocked(over)
	}
	s.turns = append(s.turns, turn)

	if evicted > 0 {
		s.log.Debug("Evicted oldest turns", "count", evicted, "limit", s.limit)
	}
	return store.AppendResult{Evicted: evicted, Len: len(s.turns)}, nil
}

// evictLocked drops the n oldest turns. The backing array is reallocated so
// dropped turns (and their image bytes) can be collected.
func (s *Store) evictLocked(n int) int {
	if n > len(s.turns) {
		n = len(s.turns)
	}
	kept := make([]domain.Turn, len(s.turns)-n, s.limit)
	copy(kept, s.turns[n:])
	s.turns = kept
	return n
}

// Clear removes all turns and runs the OnClear listeners.
func (s *Store) Clear() {
	s.mu.Lock()
	s.turns = nil
	listeners := append([]func(){}, s.onClear...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Snapshot returns a deep copy of the stored turns.
func (s *Store) Snapshot() []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Turn, len(s.turns))
	for i, t := range s.turns {
		out[i] = t.Clone()
	}
	return out
}

// Len returns the number of stored turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Limit returns the effective bound.
func (s *Store) Limit() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limit
}

// SetLimit changes the bound and trims the head if the store is now over it.
func (s *Store) SetLimit(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.limit = store.EffectiveLimit(n)
	if over := len(s.turns) - s.limit; over > 0 {
		return s.evictLocked(over)
	}
	return 0
}

// OnClear registers fn to run after every Clear.
func (s *Store) OnClear(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClear = append(s.onClear, fn)
}
