package models

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrNoProvider is returned by Acquire when no provider is installed.
var ErrNoProvider = errors.New("models: no provider configured")

// Switch holds the active provider. Requests take a Lease for the duration
// of a stream; Swap installs a replacement for future requests and closes the
// old provider only after its last lease is released.
type Switch struct {
	mu      sync.Mutex
	current *slot
	log     *slog.Logger
}

type slot struct {
	p       Provider
	leases  int
	retired bool
}

// NewSwitch returns a Switch holding p, which may be nil.
func NewSwitch(p Provider, logger *slog.Logger) *Switch {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Switch{log: logger}
	if p != nil {
		s.current = &slot{p: p}
	}
	return s
}

// Lease pins a provider until Release is called.
type Lease struct {
	Provider
	sw   *Switch
	slot *slot
	once sync.Once
}

// Acquire leases the current provider.
func (s *Switch) Acquire() (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoProvider
	}
	s.current.leases++
	return &Lease{Provider: s.current.p, sw: s, slot: s.current}, nil
}

// Release returns the lease. Extra calls are no-ops.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.sw.mu.Lock()
		l.slot.leases--
		closeNow := l.slot.retired && l.slot.leases == 0
		l.sw.mu.Unlock()
		if closeNow {
			l.sw.closeProvider(l.slot.p)
		}
	})
}

// Current returns the installed provider without leasing it.
func (s *Switch) Current() Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.p
}

// Swap installs p for future requests.
func (s *Switch) Swap(p Provider) {
	s.mu.Lock()
	old := s.current
	s.current = &slot{p: p}
	closeNow, pending := false, 0
	if old != nil {
		old.retired = true
		pending = old.leases
		closeNow = pending == 0
	}
	s.mu.Unlock()

	if old != nil {
		s.log.Info("Swapped provider", "from", old.p.Name(), "to", p.Name(), "pendingLeases", pending)
	}
	if closeNow {
		s.closeProvider(old.p)
	}
}

// Close retires the current provider. Outstanding leases keep it open until
// they are released.
func (s *Switch) Close() error {
	s.mu.Lock()
	old := s.current
	s.current = nil
	closeNow := false
	if old != nil {
		old.retired = true
		closeNow = old.leases == 0
	}
	s.mu.Unlock()

	if closeNow {
		return old.p.Close()
	}
	return nil
}

func (s *Switch) closeProvider(p Provider) {
	if err := p.Close(); err != nil {
		s.log.Warn("Failed to close provider", "provider", p.Name(), "error", err)
	}
}

var _ Provider = (*Lease)(nil)

// Close on a lease releases it; the provider itself is closed by the Switch.
func (l *Lease) Close() error {
	l.Release()
	return nil
}
