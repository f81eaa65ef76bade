package store

import "errors"

// Ceiling is the effective limit used when history limiting is disabled.
const Ceiling = 10000

// DefaultLimit matches the history bound of the original desktop client.
const DefaultLimit = 50

// ErrEmptyTurn is returned when appending a user turn with no content parts.
var ErrEmptyTurn = errors.New("store: user turn has no parts")

// AppendResult reports what an Append did to the store.
type AppendResult struct {
	// Evicted is the number of turns removed from the head.
	Evicted int
	// Len is the store length after the append.
	Len int
}

// EffectiveLimit maps a configured limit to the bound actually enforced.
func EffectiveLimit(configured int) int {
	if configured <= 0 || configured > Ceiling {
		return Ceiling
	}
	return configured
}
