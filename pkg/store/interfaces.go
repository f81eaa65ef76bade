package store

import "github.com/nstogner/motifchat/pkg/domain"

// History is the bounded, ordered conversation store that each completion
// request is built from. Turns are appended at the tail and evicted from the
// head, whole turns at a time, so that Len() never exceeds the effective
// limit.
type History interface {
	// Append adds a turn at the tail, first evicting the fewest oldest turns
	// needed to keep the store within its limit. A user turn with no parts is
	// rejected with ErrEmptyTurn; an assistant turn with no parts is stored as
	// a single empty text part.
	Append(turn domain.Turn) (AppendResult, error)

	// Clear removes every turn and notifies OnClear listeners.
	Clear()

	// Snapshot returns a deep copy of the current turns. The copy is safe to
	// hand to another goroutine; later Appends and Clears never affect it.
	Snapshot() []domain.Turn

	// Len returns the number of stored turns.
	Len() int

	// Limit returns the effective maximum number of turns.
	Limit() int

	// SetLimit changes the configured limit. n <= 0 disables limiting, which
	// falls back to Ceiling. Excess turns are evicted from the head at once.
	SetLimit(n int) (evicted int)

	// OnClear registers a callback run after each Clear.
	OnClear(fn func())
}
