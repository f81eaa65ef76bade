package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct{ got []string }

func (r *recorder) Alert(text string) { r.got = append(r.got, text) }

func stubSend(t *testing.T, err error) *[]string {
	t.Helper()
	var calls []string
	orig := send
	send = func(title, message string, icon any) error {
		calls = append(calls, title+"|"+message)
		return err
	}
	t.Cleanup(func() { send = orig })
	return &calls
}

func TestDesktopForwardsAndNotifies(t *testing.T) {
	calls := stubSend(t, nil)
	next := &recorder{}
	d := &Desktop{Next: next}

	d.Alert("Stream error: boom")

	assert.Equal(t, []string{"Stream error: boom"}, next.got)
	assert.Equal(t, []string{"motifchat|Stream error: boom"}, *calls)
}

func TestDesktopIgnoresNotifyFailure(t *testing.T) {
	calls := stubSend(t, errors.New("no dbus"))
	next := &recorder{}
	d := &Desktop{Title: "chat", Next: next}

	d.Alert("x")

	assert.Equal(t, []string{"x"}, next.got)
	assert.Equal(t, []string{"chat|x"}, *calls)
}
