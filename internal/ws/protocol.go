package ws

import (
	"time"

	"github.com/foreach/photobooth/internal/session"
)

type MessageType string

const (
	MsgSnapshot     MessageType = "snapshot"
	MsgState        MessageType = "state"
	MsgPhase        MessageType = "phase"
	MsgCameraHealth MessageType = "camera_health"
	MsgMilestone    MessageType = "milestone"
	MsgError        MessageType = "error"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotPayload is sent on connect and every snapshot interval.
type SnapshotPayload struct {
	State  *session.State       `json:"state"`
	Camera *CameraHealthPayload `json:"camera,omitempty"`
}

// StatePayload carries the latest state, throttled.
type StatePayload struct {
	State *session.State `json:"state"`
}

// PhasePayload is sent immediately on every phase change.
type PhasePayload struct {
	From      session.Phase  `json:"from"`
	To        session.Phase  `json:"to"`
	Reason    string         `json:"reason"`
	SessionID string         `json:"sessionId,omitempty"`
	At        time.Time      `json:"at"`
	State     *session.State `json:"state"`
}

// NewPhasePayload builds the message body for c.
func NewPhasePayload(c session.Change, s *session.State) PhasePayload {
	return PhasePayload{
		From:      c.From,
		To:        c.To,
		Reason:    c.Reason,
		SessionID: c.SessionID,
		At:        c.At,
		State:     s,
	}
}

type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

type CameraHealthPayload struct {
	Status              HealthStatus `json:"status"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	LastError           string       `json:"lastError,omitempty"`
	Since               time.Time    `json:"since"`
}

// MilestonePayload announces a completed-session count worth celebrating.
type MilestonePayload struct {
	Completed int `json:"completed"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
