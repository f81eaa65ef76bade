// Package notify forwards chat alerts to the desktop.
// It uses beeep, which picks D-Bus or notify-send on Linux, AppleScript on
// macOS and the toast API on Windows.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"

	"github.com/nstogner/motifchat/pkg/chat"
)

// send is replaced in tests.
var send = beeep.Notify

// Desktop shows each alert as a desktop notification and then passes it on
// to Next. A failed notification is logged and otherwise ignored.
type Desktop struct {
	Title  string
	Next   chat.Notifier
	Logger *slog.Logger
}

var _ chat.Notifier = (*Desktop)(nil)

// Alert implements chat.Notifier.
func (d *Desktop) Alert(text string) {
	if d.Next != nil {
		d.Next.Alert(text)
	}
	title := d.Title
	if title == "" {
		title = "motifchat"
	}
	if err := send(title, text, ""); err != nil && d.Logger != nil {
		d.Logger.Debug("Desktop notification failed", "error", err)
	}
}
