package chat

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultMaxReplyBytes bounds a single reply held in memory.
const DefaultMaxReplyBytes = 4 << 20

// Accumulator collects the text of the reply in flight. The worker appends,
// the UI goroutine takes the result on StreamEnd.
type Accumulator struct {
	mu  sync.Mutex
	sb  strings.Builder
	max int
}

// NewAccumulator returns an accumulator holding at most max bytes; max <= 0
// selects DefaultMaxReplyBytes.
func NewAccumulator(max int) *Accumulator {
	if max <= 0 {
		max = DefaultMaxReplyBytes
	}
	return &Accumulator{max: max}
}

// Append adds s. Growing past the limit resets the buffer and returns
// ErrAllocation.
func (a *Accumulator) Append(s string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sb.Len()+len(s) > a.max {
		a.sb.Reset()
		return fmt.Errorf("%w: limit %d bytes", ErrAllocation, a.max)
	}
	a.sb.WriteString(s)
	return nil
}

// Reset empties the buffer.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.sb.Reset()
	a.mu.Unlock()
}

// String returns the current contents.
func (a *Accumulator) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sb.String()
}

// Take returns the contents and resets the buffer.
func (a *Accumulator) Take() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.sb.String()
	a.sb.Reset()
	return s
}

// Len returns the size of the contents in bytes.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sb.Len()
}
