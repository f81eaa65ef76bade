// Package chat connects the conversation store, the streaming workers and
// the UI loop. Session is the dispatcher; Pump applies bridge messages on
// the UI goroutine.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nstogner/motifchat/pkg/bridge"
	"github.com/nstogner/motifchat/pkg/domain"
	"github.com/nstogner/motifchat/pkg/models"
	"github.com/nstogner/motifchat/pkg/store"
	"github.com/nstogner/motifchat/pkg/store/memory"
)

// Settings are the per-request parameters. They are copied into each
// models.Request at dispatch time.
type Settings struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// CancelOnClear stops the streaming reply when the conversation is
	// cleared. When false, tokens still arriving after a clear are applied
	// to the fresh conversation.
	CancelOnClear bool
	MaxReplyBytes int
}

// Options configure a Session. Nil History and Bridge get in-memory defaults.
type Options struct {
	Settings  Settings
	History   store.History
	Providers *models.Switch
	Bridge    *bridge.Bridge
	Logger    *slog.Logger
}

// Session owns one conversation: its history, the reply in flight and the
// bridge the workers report on.
type Session struct {
	history   store.History
	providers *models.Switch
	bridge    *bridge.Bridge
	acc       *Accumulator
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	settings Settings
	pending  *Task
	listing  *Task
}

// New creates a session.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.History == nil {
		opts.History = memory.New(store.DefaultLimit, opts.Logger)
	}
	if opts.Bridge == nil {
		opts.Bridge = bridge.New(bridge.Options{Logger: opts.Logger})
	}
	if opts.Providers == nil {
		opts.Providers = models.NewSwitch(nil, opts.Logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		history:   opts.History,
		providers: opts.Providers,
		bridge:    opts.Bridge,
		acc:       NewAccumulator(opts.Settings.MaxReplyBytes),
		log:       opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		settings:  opts.Settings,
	}
}

// SubmitUserMessage appends a user turn and starts streaming the reply in
// the background. It returns as soon as the worker is spawned.
func (s *Session) SubmitUserMessage(text string, img *domain.Image) (*Task, error) {
	text = strings.TrimRight(text, "\r\n")
	if strings.TrimSpace(text) == "" && img == nil {
		return nil, ErrEmptySubmission
	}
	if strings.TrimSpace(text) == "" {
		text = ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlightLocked() {
		return nil, ErrReplyInFlight
	}

	lease, err := s.providers.Acquire()
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	res, err := s.history.Append(domain.UserTurn(text, img))
	if err != nil {
		lease.Release()
		return nil, fmt.Errorf("appending user turn: %w", err)
	}

	req := models.Request{
		Model:       s.settings.Model,
		Temperature: s.settings.Temperature,
		MaxTokens:   s.settings.MaxTokens,
		Stream:      true,
		Turns:       s.history.Snapshot(),
	}

	task := newTask(s.ctx)
	s.pending = task
	// Each reply gets its own buffer; a worker whose end was lost keeps the old one.
	s.acc = NewAccumulator(s.settings.MaxReplyBytes)
	s.log.Info("Dispatching request", "task", task.ID, "model", req.Model, "turnCount", len(req.Turns), "evicted", res.Evicted)

	w := &replyWorker{
		task:   task,
		lease:  lease,
		req:    req,
		acc:    s.acc,
		bridge: s.bridge,
		log:    s.log,
	}
	go w.run()
	return task, nil
}

// inFlightLocked reports whether a reply is still owed to the UI: the worker
// is running, or it delivered a terminal message the UI has not applied.
func (s *Session) inFlightLocked() bool {
	if s.pending == nil {
		return false
	}
	if !s.pending.finished() || s.pending.delivered() {
		return true
	}
	// The worker ended without reaching the UI (cancelled or dropped).
	s.pending = nil
	return false
}

// Streaming reports whether a reply is in flight.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlightLocked()
}

// Partial returns the text received so far for the reply in flight.
func (s *Session) Partial() string {
	return s.reply().String()
}

func (s *Session) reply() *Accumulator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc
}

// commitReply stores the accumulated reply as an assistant turn. Called by
// the pump on StreamEnd.
func (s *Session) commitReply() {
	s.mu.Lock()
	acc := s.acc
	s.pending = nil
	s.mu.Unlock()
	text := acc.Take()

	res, err := s.history.Append(domain.AssistantTurn(text))
	if err != nil {
		s.log.Error("Failed to commit reply", "error", err)
		return
	}
	s.log.Debug("Committed reply", "bytes", len(text), "len", res.Len, "evicted", res.Evicted)
}

// abortReply forgets the reply in flight without storing anything.
func (s *Session) abortReply() {
	s.reply().Reset()
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

// ClearConversation empties the history. The reply in flight keeps
// streaming unless CancelOnClear is set.
func (s *Session) ClearConversation() {
	s.mu.Lock()
	if s.settings.CancelOnClear && s.pending != nil {
		s.pending.Cancel()
		s.pending = nil
	}
	acc := s.acc
	s.mu.Unlock()

	acc.Reset()
	s.history.Clear()
	s.log.Info("Conversation cleared")
}

// BrowseModels lists the provider's models in the background. Results
// arrive on the bridge as ModelList messages.
func (s *Session) BrowseModels() (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listing != nil && !s.listing.finished() {
		return s.listing, nil
	}
	lease, err := s.providers.Acquire()
	if err != nil {
		return nil, err
	}
	task := newTask(s.ctx)
	s.listing = task
	w := &listWorker{task: task, lease: lease, bridge: s.bridge, log: s.log}
	go w.run()
	return task, nil
}

// SetModel selects the model for future requests.
func (s *Session) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info("Model selected", "from", s.settings.Model, "to", model)
	s.settings.Model = model
}

// Settings returns a copy of the current settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SwapProvider installs p for future requests. A reply in flight finishes
// on the provider it started with.
func (s *Session) SwapProvider(p models.Provider) {
	s.providers.Swap(p)
}

// Provider returns the provider future requests will use.
func (s *Session) Provider() models.Provider {
	return s.providers.Current()
}

// History returns the conversation store.
func (s *Session) History() store.History { return s.history }

// Bridge returns the bridge the UI reads from.
func (s *Session) Bridge() *bridge.Bridge { return s.bridge }

// Close cancels background work, releases the provider and closes the
// bridge.
func (s *Session) Close() error {
	s.cancel()
	s.mu.Lock()
	for _, t := range []*Task{s.pending, s.listing} {
		if t != nil {
			t.Cancel()
		}
	}
	s.mu.Unlock()
	err := s.providers.Close()
	s.bridge.Close()
	return err
}
