package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/nstogner/motifchat/pkg/bridge"
	"github.com/nstogner/motifchat/pkg/models"
)

// Task is a handle on a background request. The dispatcher never waits on
// it; Done and Err exist for callers (and tests) that want to.
type Task struct {
	ID string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu           sync.Mutex
	cancelled    bool
	terminalSent bool
	err          error
}

func newTask(parent context.Context) *Task {
	ctx, cancel := context.WithCancel(parent)
	return &Task{
		ID:     uuid.New().String(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Done is closed when the worker has exited.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the failure that ended the task, if any. Valid after Done.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Cancel stops the request. Once Cancel returns the task sends nothing more
// on the bridge.
func (t *Task) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
	t.cancel()
}

func (t *Task) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// delivered reports whether a terminal message reached the bridge and the
// UI has not handled it yet.
func (t *Task) delivered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminalSent
}

func (t *Task) fail(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
}

// emit sends m unless the task was cancelled. Terminal messages that make it
// onto the bridge are recorded so the session knows the UI will see them.
func (t *Task) emit(b *bridge.Bridge, log *slog.Logger, m bridge.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}
	err := b.Send(m)
	if err != nil {
		log.Debug("Dropped bridge message", "task", t.ID, "kind", m.Kind.String(), "error", err)
		return
	}
	if m.Kind == bridge.KindStreamEnd || m.Kind == bridge.KindError {
		t.terminalSent = true
	}
}

// replyWorker streams one completion into the accumulator and the bridge.
type replyWorker struct {
	task   *Task
	lease  *models.Lease
	req    models.Request
	acc    *Accumulator
	bridge *bridge.Bridge
	log    *slog.Logger

	started bool
	aborted bool
	ended   bool
}

func (w *replyWorker) run() {
	defer close(w.task.done)
	defer w.lease.Release()

	log := w.log.With("task", w.task.ID, "provider", w.lease.Name(), "model", w.req.Model)
	log.Debug("Worker started", "turnCount", len(w.req.Turns))

	err := w.lease.Stream(w.task.ctx, w.req, w.onChunk)

	switch {
	case w.aborted || w.ended:
	case w.task.ctx.Err() != nil:
		log.Debug("Reply cancelled")
		w.task.fail(w.task.ctx.Err())
	case err != nil && !w.started:
		var setupErr *models.SetupError
		if !errors.As(err, &setupErr) {
			setupErr = &models.SetupError{Provider: w.lease.Name(), Message: err.Error(), Err: err}
		}
		log.Warn("LLM request failed (setup)", "status", setupErr.StatusCode, "error", setupErr)
		w.task.fail(setupErr)
		w.task.emit(w.bridge, log, bridge.Error(SetupMessage(setupErr)))
	case err != nil:
		w.abort(log, err)
	default:
		// The provider finished without a final chunk; close the reply anyway.
		w.ended = true
		w.task.emit(w.bridge, log, bridge.StreamEnd())
	}
	log.Debug("Worker finished", "aborted", w.aborted)
}

func (w *replyWorker) onChunk(c models.Chunk) {
	if w.aborted || w.ended || w.task.ctx.Err() != nil {
		return
	}
	log := w.log.With("task", w.task.ID)

	switch {
	case c.Err != nil:
		w.abort(log, c.Err)
	case c.Final:
		w.ended = true
		w.task.emit(w.bridge, log, bridge.StreamEnd())
	case c.Text != "":
		if !w.started {
			w.acc.Reset()
			w.started = true
		}
		if err := w.acc.Append(c.Text); err != nil {
			log.Error("Reply too large", "error", err)
			w.abort(log, err)
			w.task.cancel()
			return
		}
		w.task.emit(w.bridge, log, bridge.Token(c.Text))
	}
}

// abort discards the partial reply and reports err to the UI.
func (w *replyWorker) abort(log *slog.Logger, err error) {
	w.aborted = true
	w.acc.Reset()
	w.task.fail(&StreamError{TaskID: w.task.ID, Err: err})
	log.Warn("Stream error", "error", err)
	w.task.emit(w.bridge, log, bridge.Error(StreamMessage(err)))
}

// listWorker sends the provider's model ids as ModelList messages.
type listWorker struct {
	task   *Task
	lease  *models.Lease
	bridge *bridge.Bridge
	log    *slog.Logger
}

func (w *listWorker) run() {
	defer close(w.task.done)
	defer w.lease.Release()

	log := w.log.With("task", w.task.ID, "provider", w.lease.Name())
	names, err := w.lease.List(w.task.ctx)
	if err != nil {
		log.Warn("Failed to list models", "error", err)
		w.task.fail(err)
		w.task.emit(w.bridge, log, bridge.ModelListError(err.Error()))
		return
	}
	log.Debug("Listed models", "count", len(names))
	for _, name := range names {
		w.task.emit(w.bridge, log, bridge.ModelListItem(name))
	}
	w.task.emit(w.bridge, log, bridge.ModelListEnd())
}
