package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nstogner/motifchat/pkg/bridge"
	"github.com/nstogner/motifchat/pkg/domain"
)

// Transcript is the visible conversation text.
type Transcript interface {
	Append(text string)
	Reset()
}

// Notifier raises a blocking notification, e.g. a modal dialog.
type Notifier interface {
	Alert(text string)
}

// ModelBrowser receives ModelList messages while it is open.
type ModelBrowser interface {
	Active() bool
	AddModel(name string)
	EndModels()
	ModelsFailed(text string)
}

// Names are the transcript prefixes for each role.
type Names struct {
	User      string
	Assistant string
}

// PumpOptions configure a Pump. Browser may be nil.
type PumpOptions struct {
	Transcript Transcript
	Notifier   Notifier
	Browser    ModelBrowser
	Names      Names
	Logger     *slog.Logger
}

// Pump applies bridge messages to the UI. All of its methods must be called
// from the UI goroutine.
type Pump struct {
	session    *Session
	transcript Transcript
	notifier   Notifier
	browser    ModelBrowser
	names      Names
	log        *slog.Logger

	prefixShown bool
	// discarding drops reply messages of a reply cancelled by Clear until
	// the next Submit.
	discarding bool
}

// NewPump creates a pump for session. It resets its per-reply state whenever
// the session history is cleared.
func NewPump(session *Session, opts PumpOptions) *Pump {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Names.User == "" {
		opts.Names.User = "User"
	}
	if opts.Names.Assistant == "" {
		opts.Names.Assistant = "Assistant"
	}
	p := &Pump{
		session:    session,
		transcript: opts.Transcript,
		notifier:   opts.Notifier,
		browser:    opts.Browser,
		names:      opts.Names,
		log:        opts.Logger,
	}
	session.History().OnClear(p.resetReply)
	return p
}

// Apply handles one bridge message.
func (p *Pump) Apply(m bridge.Message) {
	if p.discarding && isReply(m.Kind) {
		p.log.Debug("Dropped message of cancelled reply", "kind", m.Kind.String())
		return
	}
	switch m.Kind {
	case bridge.KindToken:
		p.showPrefix()
		p.transcript.Append(m.Text)

	case bridge.KindStreamEnd:
		p.showPrefix()
		p.transcript.Append("\n")
		p.session.commitReply()
		p.resetReply()

	case bridge.KindError:
		if p.prefixShown {
			p.transcript.Append("\n")
		}
		p.transcript.Append(m.Text + "\n")
		if p.notifier != nil {
			p.notifier.Alert(m.Text)
		}
		p.session.abortReply()
		p.resetReply()

	case bridge.KindModelListItem, bridge.KindModelListEnd, bridge.KindModelListError:
		p.applyModelList(m)

	default:
		p.log.Warn("Unknown bridge message", "kind", m.Kind.String())
	}
}

func (p *Pump) applyModelList(m bridge.Message) {
	if p.browser == nil || !p.browser.Active() {
		p.log.Debug("Dropped model list message, browser closed", "kind", m.Kind.String())
		return
	}
	switch m.Kind {
	case bridge.KindModelListItem:
		p.browser.AddModel(m.Text)
	case bridge.KindModelListEnd:
		p.browser.EndModels()
	case bridge.KindModelListError:
		p.browser.ModelsFailed(m.Text)
	}
}

func isReply(k bridge.Kind) bool {
	return k == bridge.KindToken || k == bridge.KindStreamEnd || k == bridge.KindError
}

func (p *Pump) showPrefix() {
	if !p.prefixShown {
		p.transcript.Append(p.names.Assistant + ": ")
		p.prefixShown = true
	}
}

func (p *Pump) resetReply() {
	p.prefixShown = false
}

// Submit sends the user's message and echoes it to the transcript.
func (p *Pump) Submit(text string, img *domain.Image) (*Task, error) {
	task, err := p.session.SubmitUserMessage(text, img)
	if err != nil {
		return nil, err
	}
	if p.prefixShown {
		// The previous reply never ended on screen.
		p.transcript.Append("\n")
	}
	p.resetReply()
	p.discarding = false

	line := p.names.User + ": " + strings.TrimRight(text, "\r\n")
	if img != nil {
		line += fmt.Sprintf(" [%s, %d bytes]", img.MIMEType, len(img.Data))
	}
	p.transcript.Append(line + "\n")
	return task, nil
}

// Clear empties the conversation and the transcript. When the session
// cancels on clear, reply messages still queued from the cancelled worker
// are discarded.
func (p *Pump) Clear() {
	p.session.ClearConversation()
	if p.session.Settings().CancelOnClear {
		p.drainReplies()
		// A UI may already hold a frame read before the drain.
		p.discarding = true
	}
	p.transcript.Reset()
	p.transcript.Append("Chat cleared.\n")
}

func (p *Pump) drainReplies() {
	frames := p.session.Bridge().Frames()
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			m, err := bridge.Decode(f)
			if err != nil {
				continue
			}
			if !isReply(m.Kind) {
				p.Apply(m)
			}
		default:
			return
		}
	}
}

// Run applies bridge messages until ctx ends or the bridge closes. Functions
// received on actions run on the same goroutine, so they may call Submit and
// Clear.
func (p *Pump) Run(ctx context.Context, actions <-chan func()) error {
	frames := p.session.Bridge().Frames()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn, ok := <-actions:
			if !ok {
				actions = nil
				continue
			}
			fn()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			m, err := bridge.Decode(f)
			if err != nil {
				p.log.Warn("Dropping malformed frame", "error", err)
				continue
			}
			p.Apply(m)
		}
	}
}

// IsValidation reports whether err was a rejected submission.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
