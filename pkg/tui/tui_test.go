package tui

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/motifchat/pkg/chat"
	"github.com/nstogner/motifchat/pkg/models"
	"github.com/nstogner/motifchat/pkg/models/fake"
)

func newTestModel(t *testing.T, p *fake.Provider) Model {
	t.Helper()
	s := chat.New(chat.Options{
		Settings:  chat.Settings{Model: "test-model"},
		Providers: models.NewSwitch(p, nil),
	})
	t.Cleanup(func() { _ = s.Close() })
	next, _ := New(s, Options{}).Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model)
}

func key(t tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: t} }

func typeText(m Model, text string) Model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(Model)
}

// pumpOne runs the bridge wait command and feeds its result to Update.
func pumpOne(t *testing.T, m Model) Model {
	t.Helper()
	done := make(chan tea.Msg, 1)
	go func() { done <- WaitForMessage(m.session.Bridge())() }()
	select {
	case msg := <-done:
		next, _ := m.Update(msg)
		return next.(Model)
	case <-time.After(5 * time.Second):
		t.Fatal("no bridge message")
		return m
	}
}

func TestWelcomeLine(t *testing.T) {
	m := newTestModel(t, fake.New())
	assert.Contains(t, m.Transcript(), "Welcome to motifchat. Provider: fake, model: test-model.")
}

func TestSubmitAndStream(t *testing.T) {
	m := newTestModel(t, fake.New(fake.Reply("Hello", " there")))

	m = typeText(m, "Hi")
	next, _ := m.Update(key(tea.KeyEnter))
	m = next.(Model)
	assert.Contains(t, m.Transcript(), "User: Hi\n")
	assert.Equal(t, "", m.textarea.Value())

	for i := 0; i < 3; i++ {
		m = pumpOne(t, m)
	}
	assert.Contains(t, m.Transcript(), "User: Hi\nAssistant: Hello there\n")
	assert.Len(t, m.session.History().Snapshot(), 2)
}

func TestSubmitWithoutProviderShowsStatus(t *testing.T) {
	s := chat.New(chat.Options{Settings: chat.Settings{Model: "test-model"}})
	t.Cleanup(func() { _ = s.Close() })
	next, _ := New(s, Options{}).Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m := next.(Model)

	m = typeText(m, "Hi")
	next, _ = m.Update(key(tea.KeyEnter))
	m = next.(Model)

	assert.Equal(t, "Not sent: models: no provider configured", m.status)
	assert.Equal(t, "Hi", m.textarea.Value())
	_, ok := m.alerts.current()
	assert.False(t, ok)
}

func TestEmptySubmitIsSilent(t *testing.T) {
	m := newTestModel(t, fake.New())
	next, _ := m.Update(key(tea.KeyEnter))
	m = next.(Model)
	assert.Equal(t, "", m.status)
}

func TestAltEnterInsertsNewline(t *testing.T) {
	m := newTestModel(t, fake.New())
	m = typeText(m, "line one")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter, Alt: true})
	m = next.(Model)
	m = typeText(m, "line two")

	assert.Equal(t, "line one\nline two", m.textarea.Value())
	assert.Empty(t, m.session.History().Snapshot())
}

func TestErrorShowsModal(t *testing.T) {
	m := newTestModel(t, fake.New(fake.FailSetup(401, "bad key")))
	m = typeText(m, "Hi")
	next, _ := m.Update(key(tea.KeyEnter))
	m = pumpOne(t, next.(Model))

	assert.Contains(t, m.View(), "LLM request failed (setup) (HTTP 401): bad key")
	assert.Contains(t, m.View(), "Press Enter to dismiss.")

	next, _ = m.Update(key(tea.KeyEnter))
	m = next.(Model)
	assert.NotContains(t, m.View(), "Press Enter to dismiss.")
	assert.Contains(t, m.Transcript(), "LLM request failed (setup) (HTTP 401): bad key\n")
}

func TestClearCommand(t *testing.T) {
	m := newTestModel(t, fake.New(fake.Reply("ok")))
	m = typeText(m, "Hi")
	next, _ := m.Update(key(tea.KeyEnter))
	m = next.(Model)
	for i := 0; i < 2; i++ {
		m = pumpOne(t, m)
	}
	require.Len(t, m.session.History().Snapshot(), 2)

	m = typeText(m, "/clear")
	next, _ = m.Update(key(tea.KeyEnter))
	m = next.(Model)
	assert.Equal(t, "Chat cleared.\n", m.Transcript())
	assert.Empty(t, m.session.History().Snapshot())
}

func TestModelBrowser(t *testing.T) {
	p := fake.New()
	p.Models = []string{"models/a", "models/b"}
	m := newTestModel(t, p)

	next, _ := m.Update(key(tea.KeyCtrlL))
	m = next.(Model)
	assert.Contains(t, m.View(), "Select Model")

	for i := 0; i < 3; i++ {
		m = pumpOne(t, m)
	}
	assert.Contains(t, m.View(), "models/b")

	next, _ = m.Update(key(tea.KeyDown))
	m = next.(Model)
	next, _ = m.Update(key(tea.KeyEnter))
	m = next.(Model)

	assert.False(t, m.browser.open)
	assert.Equal(t, "models/b", m.session.Settings().Model)
}

func TestModelCommand(t *testing.T) {
	m := newTestModel(t, fake.New())
	m = typeText(m, "/model gemini-1.5-pro")
	next, _ := m.Update(key(tea.KeyEnter))
	m = next.(Model)
	assert.Equal(t, "gemini-1.5-pro", m.session.Settings().Model)
}

func TestImageCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cat.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0o600))

	p := fake.New(fake.Reply("a cat"))
	m := newTestModel(t, p)
	m = typeText(m, "/image "+path)
	next, _ := m.Update(key(tea.KeyEnter))
	m = next.(Model)
	require.NotNil(t, m.pendingImage)
	assert.Equal(t, "image/png", m.pendingImage.MIMEType)

	m = typeText(m, "what is it?")
	next, _ = m.Update(key(tea.KeyEnter))
	m = next.(Model)
	assert.Nil(t, m.pendingImage)

	snap := m.session.History().Snapshot()
	require.Len(t, snap, 1)
	assert.Len(t, snap[0].Parts, 2)
}

func TestImageCommandRejectsNonImage(t *testing.T) {
	m := newTestModel(t, fake.New())
	m = typeText(m, "/image notes.txt")
	next, _ := m.Update(key(tea.KeyEnter))
	m = next.(Model)
	assert.Nil(t, m.pendingImage)
	assert.Contains(t, m.View(), "not a recognized image type")
}

func TestQuitKeys(t *testing.T) {
	m := newTestModel(t, fake.New())
	for _, k := range []tea.KeyType{tea.KeyCtrlC, tea.KeyCtrlQ} {
		_, cmd := m.Update(key(k))
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
	}
}
