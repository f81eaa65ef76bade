package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/motifchat/pkg/chat"
	"github.com/nstogner/motifchat/pkg/models"
	"github.com/nstogner/motifchat/pkg/models/fake"
	"github.com/nstogner/motifchat/pkg/server"
)

func newTestServer(t *testing.T, p *fake.Provider) *httptest.Server {
	t.Helper()
	srv := server.New(server.Options{
		NewSession: func(ctx context.Context) (*chat.Session, error) {
			return chat.New(chat.Options{
				Settings:  chat.Settings{Model: "test-model"},
				Providers: models.NewSwitch(p, nil),
			}), nil
		},
		Models: p,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readUntil collects events until one of type stop arrives.
func readUntil(t *testing.T, ws *websocket.Conn, stop string) []server.Outbound {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var out []server.Outbound
	for {
		var o server.Outbound
		require.NoError(t, ws.ReadJSON(&o))
		out = append(out, o)
		if o.Type == stop {
			return out
		}
	}
}

func transcript(events []server.Outbound) string {
	var sb strings.Builder
	for _, e := range events {
		if e.Type == "transcript" {
			sb.WriteString(e.Text)
		}
	}
	return sb.String()
}

func TestWebSocketStreamsReply(t *testing.T) {
	ts := newTestServer(t, fake.New(fake.Reply("Hel", "lo")))
	ws := dial(t, ts)

	require.NoError(t, ws.WriteJSON(server.Inbound{Type: "submit", Text: "hi"}))

	var events []server.Outbound
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for !strings.HasSuffix(transcript(events), "Hello\n") {
		var o server.Outbound
		require.NoError(t, ws.ReadJSON(&o))
		events = append(events, o)
	}
	assert.Equal(t, "User: hi\nAssistant: Hello\n", transcript(events))
}

func TestWebSocketRejectsEmptySubmit(t *testing.T) {
	ts := newTestServer(t, fake.New())
	ws := dial(t, ts)

	require.NoError(t, ws.WriteJSON(server.Inbound{Type: "submit", Text: "  "}))
	events := readUntil(t, ws, "error")
	assert.NotEmpty(t, events[len(events)-1].Text)
}

func TestWebSocketSetupFailureAlerts(t *testing.T) {
	ts := newTestServer(t, fake.New(fake.FailSetup(403, "bad key")))
	ws := dial(t, ts)

	require.NoError(t, ws.WriteJSON(server.Inbound{Type: "submit", Text: "hi"}))
	events := readUntil(t, ws, "alert")
	assert.Contains(t, events[len(events)-1].Text, "HTTP 403")
	assert.Contains(t, events[len(events)-1].Text, "bad key")
}

func TestWebSocketClear(t *testing.T) {
	ts := newTestServer(t, fake.New())
	ws := dial(t, ts)

	require.NoError(t, ws.WriteJSON(server.Inbound{Type: "clear"}))
	events := readUntil(t, ws, "reset")
	assert.Equal(t, "reset", events[0].Type)
}

func TestWebSocketModels(t *testing.T) {
	p := fake.New()
	p.Models = []string{"a", "b"}
	ts := newTestServer(t, p)
	ws := dial(t, ts)

	require.NoError(t, ws.WriteJSON(server.Inbound{Type: "models"}))
	events := readUntil(t, ws, "models_end")
	var names []string
	for _, e := range events {
		if e.Type == "model" {
			names = append(names, e.Text)
		}
	}
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, ws.WriteJSON(server.Inbound{Type: "model", Name: "b"}))
	events = readUntil(t, ws, "selected")
	assert.Equal(t, "b", events[len(events)-1].Text)
}

func TestListModelsAPI(t *testing.T) {
	p := fake.New()
	p.Models = []string{"m1", "m2"}
	ts := newTestServer(t, p)

	resp, err := http.Get(ts.URL + "/api/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var names []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&names))
	assert.Equal(t, []string{"m1", "m2"}, names)
}
