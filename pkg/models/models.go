package models

import (
	"context"
	"fmt"

	"github.com/nstogner/motifchat/pkg/domain"
)

// Request is the immutable description of one completion call. It is built
// once by the session and only read afterwards.
type Request struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Stream      bool
	// Turns is a snapshot of the conversation, newest last.
	Turns []domain.Turn
}

// Chunk is one event of a streaming reply. Exactly one of Text, Final or Err
// is meaningful.
type Chunk struct {
	Text  string
	Final bool
	Err   error
}

// Provider represents a service that provides LLMs (e.g. Gemini, OpenAI).
type Provider interface {
	// Name returns the provider's identifier (e.g. "gemini", "openai").
	Name() string

	// List returns the model identifiers that can serve completions.
	List(ctx context.Context) ([]string, error)

	// Stream runs a completion and calls onChunk, from the calling goroutine,
	// for every token and once with Final or Err at the end. Failures before
	// the first chunk are returned as a *SetupError and onChunk is not called.
	Stream(ctx context.Context, req Request, onChunk func(Chunk)) error

	// Close releases resources held by the provider.
	Close() error
}

// SetupError is a failure to start a completion: bad credentials, unknown
// model or an unreachable endpoint.
type SetupError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *SetupError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s setup failed (HTTP %d): %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s setup failed: %s", e.Provider, msg)
}

func (e *SetupError) Unwrap() error { return e.Err }
