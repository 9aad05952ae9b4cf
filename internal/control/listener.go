package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/foreach/photobooth/internal/metrics"
	"github.com/hypebeast/go-osc/osc"
	"golang.org/x/time/rate"
)

// maxDatagram bounds one OSC packet; anything longer is truncated by the
// kernel and will fail to parse.
const maxDatagram = 8192

// ListenerOptions tune the UDP listener.
type ListenerOptions struct {
	// AddressPrefix is stripped from incoming OSC addresses.
	AddressPrefix string
	// RateLimit is the sustained datagrams per second accepted; 0 disables.
	RateLimit float64
	// Burst is the limiter bucket size.
	Burst int
}

// Listener receives OSC datagrams and feeds decoded triggers into a Queue.
type Listener struct {
	addr    string
	queue   *Queue
	prefix  string
	limiter *rate.Limiter
	log     *slog.Logger

	mu   sync.Mutex
	conn net.PacketConn
}

// NewListener prepares a listener for addr (host:port). Call Listen to bind.
func NewListener(addr string, q *Queue, opts ListenerOptions, log *slog.Logger) *Listener {
	l := &Listener{
		addr:   addr,
		queue:  q,
		prefix: opts.AddressPrefix,
		log:    log,
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return l
}

// Listen binds the UDP socket. It is separate from Serve so callers can
// fail fast on a taken port before starting anything else.
func (l *Listener) Listen() error {
	conn, err := net.ListenPacket("udp", l.addr)
	if err != nil {
		return fmt.Errorf("listen osc %s: %w", l.addr, err)
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Serve reads datagrams until ctx is cancelled. It binds first if Listen
// was not called.
func (l *Listener) Serve(ctx context.Context) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		if err := l.Listen(); err != nil {
			return err
		}
		conn = l.conn
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	l.log.Info("osc listener started", "addr", conn.LocalAddr().String())
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.log.Info("osc listener stopped")
				return nil
			}
			l.log.Warn("osc read error", "error", err)
			continue
		}
		l.handle(buf[:n], from)
	}
}

// handle decodes one datagram. Every failure is absorbed here: the state
// machine never sees malformed input.
func (l *Listener) handle(data []byte, from net.Addr) {
	if l.limiter != nil && !l.limiter.Allow() {
		metrics.Triggers.WithLabelValues("any", metrics.ResultRateLimited).Inc()
		return
	}

	pkt, err := osc.ParsePacket(string(data))
	if err != nil {
		metrics.Triggers.WithLabelValues("unknown", metrics.ResultMalformed).Inc()
		l.log.Debug("discarding unparseable osc packet", "from", addrString(from), "error", err)
		return
	}

	for _, msg := range messages(pkt) {
		t, err := Decode(msg, l.prefix)
		if err != nil {
			metrics.Triggers.WithLabelValues("unknown", metrics.ResultMalformed).Inc()
			l.log.Debug("discarding osc message", "from", addrString(from), "address", msg.Address, "error", err)
			continue
		}
		if !l.queue.Push(t) {
			l.log.Warn("control queue full, trigger dropped", "trigger", t.String())
		}
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
