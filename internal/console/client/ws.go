// Package client connects the operator console to a running booth over its
// websocket and HTTP API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/foreach/photobooth/internal/control"
	"github.com/foreach/photobooth/internal/ws"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// ErrNotConnected is returned by writes while the socket is down.
var ErrNotConnected = errors.New("not connected")

// WSClient manages the websocket connection to the booth.
type WSClient struct {
	url   string
	token string

	mu      sync.Mutex
	writeMu sync.Mutex // serialises all conn writes
	conn    *websocket.Conn
	pingCtx context.CancelFunc
}

func NewWSClient(url, token string) *WSClient {
	return &WSClient{url: url, token: token}
}

// --- Bubble Tea messages ---

type ConnectedMsg struct{}

type DisconnectedMsg struct{ Err error }

// DialErrorMsg reports a failed connection attempt before the next retry.
type DialErrorMsg struct {
	Err   error
	Retry time.Duration
}

type SnapshotMsg struct{ Payload ws.SnapshotPayload }

type StateMsg struct{ Payload ws.StatePayload }

type PhaseMsg struct{ Payload ws.PhasePayload }

type CameraHealthMsg struct{ Payload ws.CameraHealthPayload }

type MilestoneMsg struct{ Payload ws.MilestonePayload }

type ErrorMsg struct{ Payload ws.ErrorPayload }

// rawMessage mirrors ws.WSMessage with a deferred payload.
type rawMessage struct {
	Type    ws.MessageType  `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Listen returns a command that dials once. On failure it sleeps for the
// current backoff and reports DialErrorMsg; the caller re-issues Listen.
func (c *WSClient) Listen(ctx context.Context, attempt int) tea.Cmd {
	return func() tea.Msg {
		if ctx.Err() != nil {
			return nil
		}
		header := http.Header{}
		if c.token != "" {
			header.Set(ws.TokenHeader, c.token)
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
		if err != nil {
			delay := Backoff(attempt)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			return DialErrorMsg{Err: err, Retry: delay}
		}

		c.mu.Lock()
		if c.pingCtx != nil {
			c.pingCtx()
		}
		pingCtx, pingCancel := context.WithCancel(ctx)
		c.conn = conn
		c.pingCtx = pingCancel
		c.mu.Unlock()

		go c.pingLoop(pingCtx, conn)
		return ConnectedMsg{}
	}
}

// Backoff returns the reconnect delay after attempt failures.
func Backoff(attempt int) time.Duration {
	d := reconnectBaseDelay
	for i := 0; i < attempt && d < reconnectMaxDelay; i++ {
		d *= 2
	}
	return min(d, reconnectMaxDelay)
}

// ReadLoop returns a command that blocks until the next known message.
// It should be re-issued after every message it delivers.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return DisconnectedMsg{Err: ErrNotConnected}
		}

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
				return DisconnectedMsg{Err: err}
			}
			if msg := Decode(data); msg != nil {
				return msg
			}
		}
	}
}

func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Send writes a trigger over the websocket. The booth replies with an error
// message if it rejects it.
func (c *WSClient) Send(t control.Trigger) error {
	if err := t.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(ws.TriggerRequest{Name: t.Name, Args: t.Args})
}

// Close drops the connection and stops the ping loop.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pingCtx != nil {
		c.pingCtx()
		c.pingCtx = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Decode turns one websocket frame into a Bubble Tea message. Unknown or
// undecodable frames yield nil.
func Decode(data []byte) tea.Msg {
	var msg rawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil
	}
	switch msg.Type {
	case ws.MsgSnapshot:
		var p ws.SnapshotPayload
		if json.Unmarshal(msg.Payload, &p) == nil && p.State != nil {
			return SnapshotMsg{Payload: p}
		}
	case ws.MsgState:
		var p ws.StatePayload
		if json.Unmarshal(msg.Payload, &p) == nil && p.State != nil {
			return StateMsg{Payload: p}
		}
	case ws.MsgPhase:
		var p ws.PhasePayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			return PhaseMsg{Payload: p}
		}
	case ws.MsgCameraHealth:
		var p ws.CameraHealthPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			return CameraHealthMsg{Payload: p}
		}
	case ws.MsgMilestone:
		var p ws.MilestonePayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			return MilestoneMsg{Payload: p}
		}
	case ws.MsgError:
		var p ws.ErrorPayload
		if json.Unmarshal(msg.Payload, &p) == nil {
			return ErrorMsg{Payload: p}
		}
	}
	return nil
}
