// Package fake provides a scripted models.Provider for tests and offline use.
package fake

import (
	"context"
	"sync"

	"github.com/nstogner/motifchat/pkg/models"
)

// StreamFunc scripts one call to Stream.
type StreamFunc func(ctx context.Context, req models.Request, onChunk func(models.Chunk)) error

// Reply streams tokens in order and then a final chunk.
func Reply(tokens ...string) StreamFunc {
	return func(ctx context.Context, _ models.Request, onChunk func(models.Chunk)) error {
		for _, t := range tokens {
			if err := ctx.Err(); err != nil {
				onChunk(models.Chunk{Err: err})
				return nil
			}
			onChunk(models.Chunk{Text: t})
		}
		onChunk(models.Chunk{Final: true})
		return nil
	}
}

// FailMidStream streams tokens and then reports err.
func FailMidStream(err error, tokens ...string) StreamFunc {
	return func(_ context.Context, _ models.Request, onChunk func(models.Chunk)) error {
		for _, t := range tokens {
			onChunk(models.Chunk{Text: t})
		}
		onChunk(models.Chunk{Err: err})
		return nil
	}
}

// FailSetup fails before any chunk, like a rejected API key.
func FailSetup(status int, msg string) StreamFunc {
	return func(context.Context, models.Request, func(models.Chunk)) error {
		return &models.SetupError{Provider: "fake", StatusCode: status, Message: msg}
	}
}

// Gated waits for release to be closed (or ctx to end) before running next.
func Gated(release <-chan struct{}, next StreamFunc) StreamFunc {
	return func(ctx context.Context, req models.Request, onChunk func(models.Chunk)) error {
		select {
		case <-release:
		case <-ctx.Done():
			onChunk(models.Chunk{Err: ctx.Err()})
			return nil
		}
		return next(ctx, req, onChunk)
	}
}

// Provider replays Streams in order; the last entry repeats.
type Provider struct {
	ProviderName string
	Models       []string
	ListErr      error
	Streams      []StreamFunc

	mu       sync.Mutex
	calls    int
	requests []models.Request
	closed   bool
}

var _ models.Provider = (*Provider)(nil)

// New returns a provider that answers every request with streams in turn.
func New(streams ...StreamFunc) *Provider {
	return &Provider{ProviderName: "fake", Streams: streams}
}

func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "fake"
	}
	return p.ProviderName
}

func (p *Provider) List(ctx context.Context) ([]string, error) {
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	return append([]string(nil), p.Models...), nil
}

func (p *Provider) Stream(ctx context.Context, req models.Request, onChunk func(models.Chunk)) error {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	var fn StreamFunc
	if n := len(p.Streams); n > 0 {
		i := p.calls
		if i >= n {
			i = n - 1
		}
		fn = p.Streams[i]
	}
	p.calls++
	p.mu.Unlock()

	if fn == nil {
		fn = Reply()
	}
	return fn(ctx, req, onChunk)
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Requests returns every request received so far.
func (p *Provider) Requests() []models.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Request(nil), p.requests...)
}

// Closed reports whether Close was called.
func (p *Provider) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
