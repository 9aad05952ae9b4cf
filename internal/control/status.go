package control

import (
	"fmt"
	"log/slog"

	"github.com/foreach/photobooth/internal/metrics"
	"github.com/hypebeast/go-osc/osc"
)

// Outbound status addresses.
const (
	StatusPhase     = "/phase"
	StatusSession   = "/session"
	StatusCountdown = "/countdown"
	StatusZoom      = "/zoom"
	StatusPixels    = "/pixels"
)

// StatusSender reports booth state to an external controller over OSC.
// Sends are fire-and-forget: failures are counted and logged at debug,
// never returned.
type StatusSender struct {
	client *osc.Client
	log    *slog.Logger
}

// NewStatusSender targets host:port.
func NewStatusSender(host string, port int, log *slog.Logger) *StatusSender {
	return &StatusSender{client: osc.NewClient(host, port), log: log}
}

// Phase announces a phase change together with the session it belongs to.
func (s *StatusSender) Phase(phase, sessionID string) {
	s.send(osc.NewMessage(StatusPhase, phase))
	if sessionID != "" {
		s.send(osc.NewMessage(StatusSession, sessionID))
	}
}

// Countdown reports the number currently shown.
func (s *StatusSender) Countdown(n int) {
	s.send(osc.NewMessage(StatusCountdown, int32(n)))
}

// Zoom reports the transition zoom level.
func (s *StatusSender) Zoom(z float64) {
	s.send(osc.NewMessage(StatusZoom, float32(z)))
}

// Pixels reports the filter's processed pixel counter.
func (s *StatusSender) Pixels(n int64) {
	s.send(osc.NewMessage(StatusPixels, int32(min(n, 1<<31-1))))
}

func (s *StatusSender) send(msg *osc.Message) {
	if err := s.client.Send(msg); err != nil {
		metrics.StatusSendErrors.Inc()
		s.log.Debug("osc status send failed", "address", msg.Address, "error", err)
	}
}

// Client sends triggers to a booth. Used by the CLI and the console.
type Client struct {
	client *osc.Client
	prefix string
}

// NewClient targets the booth's control port on host.
func NewClient(host string, port int, prefix string) *Client {
	return &Client{client: osc.NewClient(host, port), prefix: prefix}
}

// Send validates and transmits t.
func (c *Client) Send(t Trigger) error {
	if err := t.Validate(); err != nil {
		return err
	}
	msg, err := Encode(t, c.prefix)
	if err != nil {
		return err
	}
	if err := c.client.Send(msg); err != nil {
		return fmt.Errorf("send %s: %w", t, err)
	}
	return nil
}
