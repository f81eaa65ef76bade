package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nstogner/motifchat/pkg/chat"
	"github.com/nstogner/motifchat/pkg/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Inbound is a client request.
type Inbound struct {
	Type  string        `json:"type"` // "submit", "clear", "models", "model"
	Text  string        `json:"text,omitempty"`
	Name  string        `json:"name,omitempty"`
	Image *domain.Image `json:"image,omitempty"`
}

// Outbound is a server event.
type Outbound struct {
	// Type is one of "transcript", "reset", "alert", "error", "model",
	// "models_end", "models_error" or "selected".
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// conn adapts one websocket to the pump's UI interfaces. Every write happens
// on the pump goroutine.
type conn struct {
	id  string
	ws  *websocket.Conn
	log *slog.Logger

	browsing bool
	writeErr error
}

func (c *conn) send(o Outbound) {
	if c.writeErr != nil {
		return
	}
	if err := c.ws.WriteJSON(o); err != nil {
		c.writeErr = err
		c.log.Debug("WebSocket write failed", "conn", c.id, "error", err)
	}
}

func (c *conn) Append(text string)   { c.send(Outbound{Type: "transcript", Text: text}) }
func (c *conn) Reset()               { c.send(Outbound{Type: "reset"}) }
func (c *conn) Alert(text string)    { c.send(Outbound{Type: "alert", Text: text}) }
func (c *conn) Active() bool         { return c.browsing }
func (c *conn) AddModel(name string) { c.send(Outbound{Type: "model", Text: name}) }
func (c *conn) EndModels()           { c.browsing = false; c.send(Outbound{Type: "models_end"}) }
func (c *conn) ModelsFailed(text string) {
	c.browsing = false
	c.send(Outbound{Type: "models_error", Text: text})
}

func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	c := &conn{id: uuid.New().String(), ws: ws, log: s.log}
	log := s.log.With("conn", c.id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session, err := s.newSession(ctx)
	if err != nil {
		log.Error("Failed to create session", "error", err)
		_ = ws.WriteJSON(Outbound{Type: "error", Text: err.Error()})
		return
	}
	defer session.Close()

	pump := chat.NewPump(session, chat.PumpOptions{
		Transcript: c,
		Notifier:   c,
		Browser:    c,
		Names:      s.names,
		Logger:     log,
	})
	log.Info("WebSocket connected")

	actions := make(chan func())
	var wg sync.WaitGroup
	wg.Add(1)

	// Pump goroutine: owns the session's UI state and all writes.
	go func() {
		defer wg.Done()
		defer ws.Close()
		if err := pump.Run(ctx, actions); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Pump stopped", "error", err)
		}
	}()

	// Reader loop: receives client requests.
	for {
		var msg Inbound
		if err := ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("WebSocket read ended", "error", err)
			}
			break
		}
		fn := s.action(c, pump, session, msg)
		if fn == nil {
			continue
		}
		select {
		case actions <- fn:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	cancel()
	wg.Wait()
	log.Info("WebSocket disconnected")
}

func (s *Server) action(c *conn, pump *chat.Pump, session *chat.Session, msg Inbound) func() {
	switch msg.Type {
	case "submit":
		return func() {
			if _, err := pump.Submit(msg.Text, msg.Image); err != nil {
				c.send(Outbound{Type: "error", Text: err.Error()})
			}
		}
	case "clear":
		return pump.Clear
	case "models":
		return func() {
			c.browsing = true
			if _, err := session.BrowseModels(); err != nil {
				c.ModelsFailed(err.Error())
			}
		}
	case "model":
		return func() {
			if msg.Name == "" {
				c.send(Outbound{Type: "error", Text: "model name is required"})
				return
			}
			session.SetModel(msg.Name)
			c.send(Outbound{Type: "selected", Text: msg.Name})
		}
	default:
		s.log.Debug("Ignoring unknown message", "conn", c.id, "type", msg.Type)
		return nil
	}
}
