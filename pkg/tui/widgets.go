package tui

import "strings"

// transcript is the text shown in the viewport. The pump appends to it from
// Update, so no locking is needed.
type transcript struct {
	sb      strings.Builder
	version int
}

func (t *transcript) Append(s string) {
	t.sb.WriteString(s)
	t.version++
}

func (t *transcript) Reset() {
	t.sb.Reset()
	t.version++
}

func (t *transcript) String() string { return t.sb.String() }

// alerts queues blocking notifications; the oldest is shown as a modal
// until dismissed.
type alerts struct {
	queue []string
}

func (a *alerts) Alert(text string) { a.queue = append(a.queue, text) }

func (a *alerts) current() (string, bool) {
	if len(a.queue) == 0 {
		return "", false
	}
	return a.queue[0], true
}

func (a *alerts) dismiss() {
	if len(a.queue) > 0 {
		a.queue = a.queue[1:]
	}
}

// browser is the model selection screen.
type browser struct {
	open    bool
	loading bool
	items   []string
	err     string
	cursor  int
	offset  int
}

func (b *browser) Active() bool { return b.open }

func (b *browser) AddModel(name string) { b.items = append(b.items, name) }

func (b *browser) EndModels() { b.loading = false }

func (b *browser) ModelsFailed(text string) {
	b.loading = false
	b.err = text
}

func (b *browser) reset() {
	*b = browser{open: true, loading: true}
}

func (b *browser) move(delta, visible int) {
	b.cursor += delta
	if b.cursor < 0 {
		b.cursor = 0
	}
	if b.cursor > len(b.items)-1 {
		b.cursor = len(b.items) - 1
	}
	if b.cursor < 0 {
		b.cursor = 0
	}
	if visible < 1 {
		visible = 1
	}
	if b.cursor < b.offset {
		b.offset = b.cursor
	}
	if b.cursor >= b.offset+visible {
		b.offset = b.cursor - visible + 1
	}
}

func (b *browser) selected() (string, bool) {
	if b.cursor < 0 || b.cursor >= len(b.items) {
		return "", false
	}
	return b.items[b.cursor], true
}
