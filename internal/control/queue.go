package control

import (
	"sync/atomic"

	"github.com/foreach/photobooth/internal/metrics"
)

// Queue is a bounded FIFO of triggers. Producers (the OSC listener, the
// HTTP API, the mock driver) never block: when the queue is full the
// incoming trigger is dropped. The engine is the single consumer.
type Queue struct {
	ch      chan Trigger
	dropped atomic.Uint64
}

// NewQueue returns a queue holding at most size triggers.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan Trigger, size)}
}

// Push enqueues t and reports whether it was accepted.
func (q *Queue) Push(t Trigger) bool {
	select {
	case q.ch <- t:
		metrics.Triggers.WithLabelValues(t.Name, metrics.ResultAccepted).Inc()
		return true
	default:
		q.dropped.Add(1)
		metrics.Triggers.WithLabelValues(t.Name, metrics.ResultDropped).Inc()
		return false
	}
}

// Poll dequeues at most one trigger without blocking.
func (q *Queue) Poll() (Trigger, bool) {
	select {
	case t := <-q.ch:
		return t, true
	default:
		return Trigger{}, false
	}
}

// Len returns the number of queued triggers.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue bound.
func (q *Queue) Cap() int { return cap(q.ch) }

// Dropped returns how many triggers were rejected because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
