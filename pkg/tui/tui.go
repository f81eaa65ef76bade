// Package tui is the Bubble Tea front end. Update runs on the program's
// single event goroutine; bridge messages reach it through WaitForMessage.
package tui

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/nstogner/motifchat/pkg/bridge"
	"github.com/nstogner/motifchat/pkg/chat"
	"github.com/nstogner/motifchat/pkg/domain"
	"github.com/nstogner/motifchat/pkg/notify"
)

// Options configure the UI.
type Options struct {
	Names chat.Names
	// Markdown renders the transcript with glamour while no reply is
	// streaming.
	Markdown bool
	// DesktopAlerts also sends error alerts as desktop notifications.
	DesktopAlerts bool
	Logger        *slog.Logger
}

type bridgeMsg struct{ m bridge.Message }
type bridgeClosedMsg struct{}

// WaitForMessage blocks for the next bridge message.
func WaitForMessage(b *bridge.Bridge) tea.Cmd {
	return func() tea.Msg {
		for f := range b.Frames() {
			m, err := bridge.Decode(f)
			if err != nil {
				slog.Warn("Dropping malformed frame", "error", err)
				continue
			}
			return bridgeMsg{m: m}
		}
		return bridgeClosedMsg{}
	}
}

// Model is the Bubble Tea model for a chat session.
type Model struct {
	session *chat.Session
	pump    *chat.Pump
	log     *slog.Logger

	transcript *transcript
	alerts     *alerts
	browser    *browser

	markdown bool
	renderer *glamour.TermRenderer
	rendered string
	renderAt int

	pendingImage *domain.Image
	imageName    string
	status       string

	width  int
	height int

	viewport viewport.Model
	textarea textarea.Model
}

// New builds the UI around session.
func New(session *chat.Session, opts Options) Model {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ta := textarea.New()
	ta.Placeholder = "Send a message... (Enter to send, Alt+Enter for newline, /models, /clear)"
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 0
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	vp := viewport.New(80, 20)

	m := Model{
		session:    session,
		log:        opts.Logger,
		transcript: &transcript{},
		alerts:     &alerts{},
		browser:    &browser{},
		markdown:   opts.Markdown,
		renderAt:   -1,
		viewport:   vp,
		textarea:   ta,
	}
	var notifier chat.Notifier = m.alerts
	if opts.DesktopAlerts {
		notifier = &notify.Desktop{Next: m.alerts, Logger: opts.Logger}
	}
	m.pump = chat.NewPump(session, chat.PumpOptions{
		Transcript: m.transcript,
		Notifier:   notifier,
		Browser:    m.browser,
		Names:      opts.Names,
		Logger:     opts.Logger,
	})
	if m.markdown {
		m.renderer = newRenderer(80)
	}

	settings := session.Settings()
	m.transcript.Append(fmt.Sprintf("Welcome to motifchat. Provider: %s, model: %s.\n", providerName(session), settings.Model))
	m.refresh()
	return m
}

func newRenderer(width int) *glamour.TermRenderer {
	if width < 20 {
		width = 20
	}
	// A fixed style avoids terminal queries leaking into the input.
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		slog.Warn("Failed to create markdown renderer", "error", err)
		return nil
	}
	return r
}

func providerName(s *chat.Session) string {
	if p := s.Provider(); p != nil {
		return p.Name()
	}
	return "none"
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, WaitForMessage(m.session.Bridge()))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = msg.Height - m.textarea.Height() - 3
		if m.viewport.Height < 0 {
			m.viewport.Height = 0
		}
		if m.markdown {
			m.renderer = newRenderer(msg.Width - 4)
			m.renderAt = -1
		}
		m.refresh()
		return m, nil

	case bridgeMsg:
		m.pump.Apply(msg.m)
		m.refresh()
		return m, WaitForMessage(m.session.Bridge())

	case bridgeClosedMsg:
		m.log.Info("Bridge closed, stopping UI")
		return m, tea.Quit

	case tea.KeyMsg:
		if _, ok := m.alerts.current(); ok {
			switch msg.Type {
			case tea.KeyEnter, tea.KeyEsc, tea.KeySpace:
				m.alerts.dismiss()
			case tea.KeyCtrlC:
				return m, tea.Quit
			}
			return m, nil
		}
		if m.browser.open {
			return m.updateBrowser(msg)
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlQ:
			return m, tea.Quit
		case tea.KeyCtrlK:
			m.clear()
			return m, nil
		case tea.KeyCtrlL:
			return m, m.openBrowser()
		case tea.KeyEnter:
			if msg.Alt {
				m.textarea.InsertString("\n")
				return m, nil
			}
			return m, m.submit()
		}
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) submit() tea.Cmd {
	input := m.textarea.Value()
	if strings.HasPrefix(strings.TrimSpace(input), "/") {
		m.textarea.Reset()
		return m.command(strings.TrimSpace(input))
	}

	if _, err := m.pump.Submit(input, m.pendingImage); err != nil {
		var verr *chat.ValidationError
		switch {
		case errors.Is(err, chat.ErrEmptySubmission):
		case errors.Is(err, chat.ErrReplyInFlight):
			m.status = "Still streaming the previous reply."
		case errors.As(err, &verr):
			m.status = "Not sent: " + verr.Reason
		default:
			m.alerts.Alert(err.Error())
		}
		return nil
	}
	m.textarea.Reset()
	m.pendingImage, m.imageName = nil, ""
	m.status = ""
	m.refresh()
	return nil
}

func (m *Model) command(line string) tea.Cmd {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/clear":
		m.clear()
	case "/models":
		return m.openBrowser()
	case "/model":
		if arg == "" {
			m.status = "Usage: /model <id>"
			return nil
		}
		m.session.SetModel(arg)
		m.status = "Model: " + arg
	case "/image":
		if err := m.attach(arg); err != nil {
			m.alerts.Alert(err.Error())
		}
	case "/quit", "/exit":
		return tea.Quit
	default:
		m.status = "Unknown command " + name
	}
	return nil
}

func (m *Model) attach(path string) error {
	if path == "" {
		return fmt.Errorf("usage: /image <path>")
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if !strings.HasPrefix(mimeType, "image/") {
		return fmt.Errorf("%s: not a recognized image type", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	m.pendingImage = &domain.Image{MIMEType: mimeType, Data: data}
	m.imageName = filepath.Base(path)
	m.status = fmt.Sprintf("Attached %s (%s)", m.imageName, mimeType)
	return nil
}

func (m *Model) clear() {
	m.pump.Clear()
	m.status = ""
	m.refresh()
}

func (m *Model) openBrowser() tea.Cmd {
	m.browser.reset()
	if _, err := m.session.BrowseModels(); err != nil {
		m.browser.ModelsFailed(err.Error())
	}
	return nil
}

func (m Model) updateBrowser(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	visible := m.listHeight()
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.browser.open = false
	case tea.KeyUp:
		m.browser.move(-1, visible)
	case tea.KeyDown:
		m.browser.move(1, visible)
	case tea.KeyPgUp:
		m.browser.move(-visible, visible)
	case tea.KeyPgDown:
		m.browser.move(visible, visible)
	case tea.KeyEnter:
		if name, ok := m.browser.selected(); ok {
			m.session.SetModel(name)
			m.status = "Model: " + name
			m.browser.open = false
		}
	}
	return m, nil
}

func (m Model) listHeight() int {
	h := m.height - 7
	if h < 1 {
		h = 1
	}
	return h
}

// refresh copies the transcript into the viewport.
func (m *Model) refresh() {
	content := m.transcript.String()
	if m.markdown && m.renderer != nil && !m.session.Streaming() {
		if m.renderAt != m.transcript.version {
			out, err := m.renderer.Render(content)
			if err != nil {
				m.log.Debug("Markdown render failed", "error", err)
				out = content
			}
			m.rendered = out
			m.renderAt = m.transcript.version
		}
		content = m.rendered
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if text, ok := m.alerts.current(); ok {
		box := modalStyle.Render(errorStyle.Render("Error") + "\n\n" + text + "\n\n" + statusStyle.Render("Press Enter to dismiss."))
		if m.width > 0 && m.height > 0 {
			return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
		}
		return box
	}
	if m.browser.open {
		return m.browserView()
	}

	settings := m.session.Settings()
	header := titleStyle.Render(fmt.Sprintf("motifchat · %s · %s", providerName(m.session), settings.Model))

	status := m.status
	if m.session.Streaming() {
		status = "Streaming..."
	}
	if m.imageName != "" && status == "" {
		status = "Attached " + m.imageName
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		statusStyle.Render(status),
		m.textarea.View(),
	)
}

func (m Model) browserView() string {
	header := titleStyle.Render("Select Model")
	b := m.browser

	var lines []string
	switch {
	case b.err != "":
		lines = append(lines, errorStyle.Render("Failed to list models: "+b.err))
	case len(b.items) == 0 && b.loading:
		lines = append(lines, "Loading models...")
	case len(b.items) == 0:
		lines = append(lines, "No models available.")
	}

	end := b.offset + m.listHeight()
	if end > len(b.items) {
		end = len(b.items)
	}
	for i := b.offset; i < end; i++ {
		cursor := " "
		line := b.items[i]
		if i == b.cursor {
			cursor = ">"
			line = selectedItemStyle.Render(line)
		}
		lines = append(lines, fmt.Sprintf("%s %s", cursorStyle.Render(cursor), line))
	}

	list := lipgloss.JoinVertical(lipgloss.Left, lines...)
	footer := "Enter to select, Esc to go back."
	return lipgloss.JoinVertical(lipgloss.Left, header, "", list, "", footer)
}

// Transcript returns the raw transcript text.
func (m Model) Transcript() string { return m.transcript.String() }
