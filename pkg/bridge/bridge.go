// Package bridge carries events from the streaming worker goroutine to the UI
// loop. It is a bounded FIFO of fixed-size frames; senders never block for
// longer than the configured timeout.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultCapacity    = 256
	DefaultSendTimeout = 50 * time.Millisecond
)

var (
	// ErrOverflow is returned when a frame was dropped because the bridge
	// stayed full for the whole send timeout.
	ErrOverflow = errors.New("bridge: overflow, frame dropped")
	// ErrClosed is returned by Send after Close and by Recv once the bridge
	// is closed and drained.
	ErrClosed = errors.New("bridge: closed")
)

// Options configure a Bridge.
type Options struct {
	Capacity    int
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// Bridge is a multi-producer, single-consumer frame queue.
type Bridge struct {
	ch      chan Frame
	done    chan struct{}
	timeout time.Duration
	log     *slog.Logger

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	dropped   atomic.Int64
	overflows rate.Sometimes
}

// New creates a bridge. Zero options fall back to the defaults.
func New(opts Options) *Bridge {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Bridge{
		ch:        make(chan Frame, opts.Capacity),
		done:      make(chan struct{}),
		timeout:   opts.SendTimeout,
		log:       opts.Logger,
		overflows: rate.Sometimes{First: 1, Interval: time.Second},
	}
}

// Send enqueues m, split into as many frames as it needs. Every frame gets
// its own timeout. The first dropped frame aborts the rest of the message.
func (b *Bridge) Send(m Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for _, f := range Encode(m) {
		if err := b.sendFrame(f); err != nil {
			if errors.Is(err, ErrOverflow) {
				n := b.dropped.Add(1)
				b.overflows.Do(func() {
					b.log.Warn("BridgeOverflow", "kind", m.Kind.String(), "dropped", n)
				})
			}
			return err
		}
	}
	return nil
}

func (b *Bridge) sendFrame(f Frame) error {
	select {
	case b.ch <- f:
		return nil
	default:
	}

	t := time.NewTimer(b.timeout)
	defer t.Stop()
	select {
	case b.ch <- f:
		return nil
	case <-b.done:
		return ErrClosed
	case <-t.C:
		return ErrOverflow
	}
}

// Recv blocks for the next message. It returns ErrClosed once the bridge is
// closed and every queued frame has been read.
func (b *Bridge) Recv(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case f, ok := <-b.ch:
		if !ok {
			return Message{}, ErrClosed
		}
		return Decode(f)
	}
}

// Frames exposes the raw read endpoint. A receive with ok == false means the
// bridge is closed for good.
func (b *Bridge) Frames() <-chan Frame {
	return b.ch
}

// Dropped returns the number of frames lost to overflow.
func (b *Bridge) Dropped() int64 {
	return b.dropped.Load()
}

// Len returns the number of queued frames.
func (b *Bridge) Len() int {
	return len(b.ch)
}

// Close stops the bridge. Pending senders give up with ErrClosed; queued
// frames stay readable. Close is idempotent.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		b.mu.Lock()
		b.closed = true
		close(b.ch)
		b.mu.Unlock()
	})
	return nil
}
