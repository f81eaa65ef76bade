package chat

import (
	"errors"
	"fmt"

	"github.com/nstogner/motifchat/pkg/models"
)

// ErrValidation matches every submission rejected before dispatch.
var ErrValidation = errors.New("chat: invalid submission")

// ValidationError is returned by SubmitUserMessage when nothing was sent.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "chat: " + e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

var (
	// ErrEmptySubmission is returned for empty text without an image.
	ErrEmptySubmission = &ValidationError{Reason: "message is empty"}
	// ErrReplyInFlight is returned while a previous reply is still streaming.
	ErrReplyInFlight = &ValidationError{Reason: "a reply is still streaming"}
)

// ErrAllocation is reported when a reply grows past the accumulator limit.
var ErrAllocation = errors.New("chat: reply exceeds maximum size")

// StreamError is a failure after the reply started streaming.
type StreamError struct {
	TaskID string
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("task %s: stream error: %v", e.TaskID, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// SetupMessage is the user-facing text for a failure to start a request.
func SetupMessage(err *models.SetupError) string {
	msg := err.Message
	if msg == "" && err.Err != nil {
		msg = err.Err.Error()
	}
	if err.StatusCode != 0 {
		return fmt.Sprintf("LLM request failed (setup) (HTTP %d): %s", err.StatusCode, msg)
	}
	return "LLM request failed (setup): " + msg
}

// StreamMessage is the user-facing text for a mid-stream failure.
func StreamMessage(err error) string {
	return "Stream error: " + err.Error()
}
