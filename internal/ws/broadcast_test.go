package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/foreach/photobooth/internal/session"
)

// wsPair starts a server that upgrades one connection and returns both ends.
func wsPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	cc, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { cc.Close() })

	select {
	case sc := <-connCh:
		return sc, cc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side websocket")
		return nil, nil
	}
}

func readMessage(t *testing.T, c *websocket.Conn) (MessageType, json.RawMessage) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type    MessageType     `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg.Type, msg.Payload
}

func TestAddClientSendsSnapshotWithHealth(t *testing.T) {
	b := NewBroadcaster(session.NewStore(), time.Hour, time.Hour, 0)
	defer b.Stop()
	b.SetHealthHook(func() CameraHealthPayload {
		return CameraHealthPayload{Status: StatusDegraded, ConsecutiveFailures: 2}
	})

	sc, cc := wsPair(t)
	if _, err := b.AddClient(sc); err != nil {
		t.Fatalf("AddClient: %v", err)
	}

	typ, payload := readMessage(t, cc)
	if typ != MsgSnapshot {
		t.Fatalf("first message = %s, want snapshot", typ)
	}
	var snap SnapshotPayload
	if err := json.Unmarshal(payload, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.State == nil || snap.State.Phase != session.Idle {
		t.Errorf("snapshot state = %+v, want idle", snap.State)
	}
	if snap.Camera == nil || snap.Camera.Status != StatusDegraded || snap.Camera.ConsecutiveFailures != 2 {
		t.Errorf("snapshot camera = %+v", snap.Camera)
	}
}

func TestQueueStateSendsLatestOnly(t *testing.T) {
	b := NewBroadcaster(session.NewStore(), 50*time.Millisecond, time.Hour, 0)
	defer b.Stop()

	sc, cc := wsPair(t)
	if _, err := b.AddClient(sc); err != nil {
		t.Fatal(err)
	}
	readMessage(t, cc) // snapshot

	for i := uint64(1); i <= 5; i++ {
		b.QueueState(&session.State{Phase: session.Countdown, Tick: i})
	}

	typ, payload := readMessage(t, cc)
	if typ != MsgState {
		t.Fatalf("message = %s, want state", typ)
	}
	var sp StatePayload
	if err := json.Unmarshal(payload, &sp); err != nil {
		t.Fatal(err)
	}
	if sp.State.Tick != 5 {
		t.Errorf("flushed tick = %d, want latest 5", sp.State.Tick)
	}

	_ = cc.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, data, err := cc.ReadMessage(); err == nil {
		t.Errorf("unexpected extra message %s", data)
	}
}

func TestPublishPhaseIsImmediate(t *testing.T) {
	b := NewBroadcaster(session.NewStore(), time.Hour, time.Hour, 0)
	defer b.Stop()

	sc, cc := wsPair(t)
	if _, err := b.AddClient(sc); err != nil {
		t.Fatal(err)
	}
	readMessage(t, cc)

	st := &session.State{Phase: session.Transition, SessionID: "abc"}
	b.PublishPhase(NewPhasePayload(session.Change{
		From: session.Countdown, To: session.Transition,
		Reason: session.ReasonCountdownElapsed, SessionID: "abc",
	}, st))

	typ, payload := readMessage(t, cc)
	if typ != MsgPhase {
		t.Fatalf("message = %s, want phase", typ)
	}
	var p PhasePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.From != session.Countdown || p.To != session.Transition || p.Reason != session.ReasonCountdownElapsed || p.SessionID != "abc" {
		t.Errorf("phase payload = %+v", p)
	}
}

func TestAddClientMaxConnections(t *testing.T) {
	const maxConns = 2
	b := NewBroadcaster(session.NewStore(), time.Hour, time.Hour, maxConns)
	defer b.Stop()

	var clients []*client
	for i := 0; i < maxConns; i++ {
		sc, _ := wsPair(t)
		c, err := b.AddClient(sc)
		if err != nil {
			t.Fatalf("AddClient[%d]: %v", i, err)
		}
		clients = append(clients, c)
	}

	sc, _ := wsPair(t)
	if _, err := b.AddClient(sc); !errors.Is(err, ErrTooManyConnections) {
		t.Fatalf("AddClient over limit = %v, want ErrTooManyConnections", err)
	}
	if got := b.ClientCount(); got != maxConns {
		t.Errorf("ClientCount after rejection = %d, want %d", got, maxConns)
	}

	b.RemoveClient(clients[0])
	sc, _ = wsPair(t)
	if _, err := b.AddClient(sc); err != nil {
		t.Errorf("AddClient after removal: %v", err)
	}
}

func TestAddClientUnlimited(t *testing.T) {
	b := NewBroadcaster(session.NewStore(), time.Hour, time.Hour, 0)
	defer b.Stop()

	for i := 0; i < 8; i++ {
		sc, _ := wsPair(t)
		if _, err := b.AddClient(sc); err != nil {
			t.Fatalf("AddClient[%d]: %v", i, err)
		}
	}
	if got := b.ClientCount(); got != 8 {
		t.Errorf("ClientCount = %d, want 8", got)
	}
}

func TestWritePumpRemovesClientOnWriteError(t *testing.T) {
	sc, _ := wsPair(t)
	b := NewBroadcaster(session.NewStore(), time.Hour, time.Hour, 0)
	defer b.Stop()

	c := &client{conn: sc, b: b, send: make(chan []byte, clientBuffer)}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	sc.Close()
	c.send <- []byte(`{"type":"state"}`)
	go c.writePump()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.ClientCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client not removed after write error; ClientCount = %d", b.ClientCount())
}

func TestStopDisconnectsClients(t *testing.T) {
	b := NewBroadcaster(session.NewStore(), time.Hour, time.Hour, 0)
	sc, cc := wsPair(t)
	if _, err := b.AddClient(sc); err != nil {
		t.Fatal(err)
	}
	readMessage(t, cc)

	b.QueueState(&session.State{})
	b.Stop()
	b.Stop()

	if got := b.ClientCount(); got != 0 {
		t.Errorf("ClientCount after Stop = %d", got)
	}
	_ = cc.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := cc.ReadMessage(); err == nil {
		t.Error("client connection still open after Stop")
	}
}
