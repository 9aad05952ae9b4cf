package engine

import (
	"sync"
	"time"

	"github.com/foreach/photobooth/internal/metrics"
	"github.com/foreach/photobooth/internal/ws"
)

// CameraHealth tracks consecutive capture failures. RecordFailure is the
// frame source's failure hook and runs on the engine goroutine; Snapshot is
// read by HTTP handlers, so fields are protected by mu.
type CameraHealth struct {
	mu                sync.Mutex
	threshold         int
	failures          int
	lastErr           string
	lastFail          time.Time
	since             time.Time
	lastEmittedStatus ws.HealthStatus
}

func NewCameraHealth(threshold int) *CameraHealth {
	if threshold < 1 {
		threshold = 1
	}
	return &CameraHealth{
		threshold:         threshold,
		since:             time.Now(),
		lastEmittedStatus: ws.StatusHealthy,
	}
}

// RecordFailure counts one failed capture.
func (h *CameraHealth) RecordFailure(err error) {
	metrics.CameraFailures.Inc()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	if err != nil {
		h.lastErr = err.Error()
	}
	h.lastFail = time.Now()
}

// RecordSuccess clears the failure streak. The last error is kept for
// display.
func (h *CameraHealth) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = 0
}

func (h *CameraHealth) SetThreshold(n int) {
	if n < 1 {
		n = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.threshold = n
}

// Snapshot returns a consistent copy of the health fields.
func (h *CameraHealth) Snapshot() ws.CameraHealthPayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.payloadLocked(h.statusLocked())
}

// snapshotAndEmit returns the current health and whether the status changed
// since the last emission, updating the emitted status in the same lock
// acquisition.
func (h *CameraHealth) snapshotAndEmit() (ws.CameraHealthPayload, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	status := h.statusLocked()
	changed := status != h.lastEmittedStatus
	if changed {
		h.lastEmittedStatus = status
		h.since = time.Now()
	}
	return h.payloadLocked(status), changed
}

// statusLocked computes health status. Caller must hold h.mu.
func (h *CameraHealth) statusLocked() ws.HealthStatus {
	switch {
	case h.failures >= h.threshold:
		return ws.StatusFailed
	case h.failures > 0:
		return ws.StatusDegraded
	}
	return ws.StatusHealthy
}

func (h *CameraHealth) payloadLocked(status ws.HealthStatus) ws.CameraHealthPayload {
	return ws.CameraHealthPayload{
		Status:              status,
		ConsecutiveFailures: h.failures,
		LastError:           h.lastErr,
		Since:               h.since,
	}
}
