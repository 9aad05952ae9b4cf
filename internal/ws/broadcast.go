package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/foreach/photobooth/internal/metrics"
	"github.com/foreach/photobooth/internal/session"
)

// ErrTooManyConnections is returned by AddClient when the connection limit
// is reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

const (
	clientBuffer = 64
	writeWait    = 5 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	b    *Broadcaster
}

func newClient(conn *websocket.Conn, b *Broadcaster) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, clientBuffer),
		b:    b,
	}
	go c.writePump()
	return c
}

// writePump drains send until it is closed. A failed write removes the
// client so broadcasts stop queueing for a dead connection.
func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.log.Debug("ws write failed", "error", err)
			c.b.RemoveClient(c)
			for range c.send {
			}
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans booth state out to websocket clients. Phase changes and
// camera health go out immediately; per-tick state is coalesced so that at
// most one state message per throttle window reaches a client.
type Broadcaster struct {
	mu             sync.RWMutex
	clients        map[*client]bool
	maxConns       int
	store          *session.Store
	throttle       time.Duration
	snapshotTicker *time.Ticker
	stop           chan struct{}
	stopOnce       sync.Once
	healthHook     func() CameraHealthPayload
	log            *slog.Logger

	flushMu      sync.Mutex
	pendingState *session.State
	flushTimer   *time.Timer
}

// NewBroadcaster starts the periodic snapshot loop. maxConns <= 0 means no
// limit.
func NewBroadcaster(store *session.Store, throttle, snapshotInterval time.Duration, maxConns int) *Broadcaster {
	b := &Broadcaster{
		clients:  make(map[*client]bool),
		maxConns: maxConns,
		store:    store,
		throttle: throttle,
		stop:     make(chan struct{}),
		log:      slog.Default(),
	}
	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()
	return b
}

func (b *Broadcaster) SetLogger(log *slog.Logger) {
	if log != nil {
		b.log = log
	}
}

// SetHealthHook sets the source of camera health included in snapshots.
func (b *Broadcaster) SetHealthHook(fn func() CameraHealthPayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.healthHook = fn
}

// AddClient registers conn and queues a snapshot for it.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	c := newClient(conn, b)
	b.clients[c] = true
	n := len(b.clients)
	b.mu.Unlock()
	metrics.WSClients.Set(float64(n))

	b.sendTo(c, b.snapshotMessage())
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	n := len(b.clients)
	b.mu.Unlock()
	metrics.WSClients.Set(float64(n))
}

// QueueState records s as the latest state. Only the newest state queued
// within a throttle window is sent.
func (b *Broadcaster) QueueState(s *session.State) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pendingState = s
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

func (b *Broadcaster) PublishPhase(p PhasePayload) {
	b.broadcast(WSMessage{Type: MsgPhase, Payload: p})
}

func (b *Broadcaster) PublishCameraHealth(h CameraHealthPayload) {
	b.broadcast(WSMessage{Type: MsgCameraHealth, Payload: h})
}

// PublishMilestone announces a completed-session milestone.
func (b *Broadcaster) PublishMilestone(completed int) {
	b.broadcast(WSMessage{Type: MsgMilestone, Payload: MilestonePayload{Completed: completed}})
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	s := b.pendingState
	b.pendingState = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if s == nil {
		return
	}
	b.broadcast(WSMessage{Type: MsgState, Payload: StatePayload{State: s}})
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.stop:
			return
		case <-b.snapshotTicker.C:
			b.broadcast(b.snapshotMessage())
		}
	}
}

func (b *Broadcaster) snapshotMessage() WSMessage {
	b.mu.RLock()
	hook := b.healthHook
	b.mu.RUnlock()

	p := SnapshotPayload{State: b.store.Get()}
	if hook != nil {
		h := hook()
		p.Camera = &h
	}
	return WSMessage{Type: MsgSnapshot, Payload: p}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("broadcast marshal failed", "type", string(msg.Type), "error", err)
		return
	}

	// Sends hold the read lock; RemoveClient closes send under the write lock.
	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.log.Warn("ws client too slow, disconnecting")
		b.RemoveClient(c)
	}
}

// sendTo queues msg for a single client if it is still registered.
func (b *Broadcaster) sendTo(c *client, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("message marshal failed", "type", string(msg.Type), "error", err)
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stop ends the snapshot loop, cancels a pending flush and disconnects all
// clients.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.stop)
		b.snapshotTicker.Stop()

		b.flushMu.Lock()
		if b.flushTimer != nil {
			b.flushTimer.Stop()
			b.flushTimer = nil
		}
		b.pendingState = nil
		b.flushMu.Unlock()

		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			c.close()
		}
		b.mu.Unlock()
		metrics.WSClients.Set(0)
	})
}
