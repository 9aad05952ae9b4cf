// Package stats keeps in-memory booth statistics fed by phase change events.
package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foreach/photobooth/internal/session"
)

// Milestones are completed-session counts announced to observers.
var Milestones = []int{1, 10, 50, 100, 250, 500, 1000}

// MilestoneCallback is invoked when SessionsCompleted reaches a milestone.
type MilestoneCallback func(completed int)

type Stats struct {
	SessionsStarted        int            `json:"sessionsStarted"`
	SessionsCompleted      int            `json:"sessionsCompleted"`
	SessionsCancelled      int            `json:"sessionsCancelled"`
	ConsecutiveCompletions int            `json:"consecutiveCompletions"`
	DegradedSessions       int            `json:"degradedSessions"`
	PhaseEntries           map[string]int `json:"phaseEntries"`
	FilterEndReasons       map[string]int `json:"filterEndReasons"`
	TotalPixels            int64          `json:"totalPixels"`
	MaxPixels              int64          `json:"maxPixels"`
	TotalSessionSec        float64        `json:"totalSessionSec"`
	AvgSessionSec          float64        `json:"avgSessionSec"`
	MaxSessionSec          float64        `json:"maxSessionSec"`
	LastSessionAt          *time.Time     `json:"lastSessionAt,omitempty"`
	Since                  time.Time      `json:"since"`
}

func newStats(now time.Time) *Stats {
	return &Stats{
		PhaseEntries:     make(map[string]int),
		FilterEndReasons: make(map[string]int),
		Since:            now,
	}
}

func (s *Stats) clone() *Stats {
	c := *s
	c.PhaseEntries = make(map[string]int, len(s.PhaseEntries))
	for k, v := range s.PhaseEntries {
		c.PhaseEntries[k] = v
	}
	c.FilterEndReasons = make(map[string]int, len(s.FilterEndReasons))
	for k, v := range s.FilterEndReasons {
		c.FilterEndReasons[k] = v
	}
	if s.LastSessionAt != nil {
		t := *s.LastSessionAt
		c.LastSessionAt = &t
	}
	return &c
}

// Tracker observes phase change events and maintains aggregate stats. It
// receives events from the engine via a channel.
type Tracker struct {
	events      chan session.Event
	mu          sync.Mutex
	stats       *Stats
	degraded    map[string]bool // session IDs already counted as degraded
	onMilestone MilestoneCallback
	log         *slog.Logger
}

// NewTracker returns a Tracker and a send-only channel for the engine to
// deliver events on. The caller must run Run in a goroutine.
func NewTracker(buffer int, log *slog.Logger) (*Tracker, chan<- session.Event) {
	if buffer < 1 {
		buffer = 256
	}
	if log == nil {
		log = slog.Default()
	}
	ch := make(chan session.Event, buffer)
	t := &Tracker{
		events:   ch,
		stats:    newStats(time.Now()),
		degraded: make(map[string]bool),
		log:      log,
	}
	return t, ch
}

// OnMilestone registers a callback for completed-session milestones. Must be
// called before Run.
func (t *Tracker) OnMilestone(cb MilestoneCallback) {
	t.onMilestone = cb
}

// Run processes events until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-t.events:
			t.processEvent(ev)
		}
	}
}

// Stats returns a deep copy of the current aggregate stats.
func (t *Tracker) Stats() *Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats.clone()
}

func (t *Tracker) processEvent(ev session.Event) {
	t.mu.Lock()
	s := t.stats
	s.PhaseEntries[ev.To.String()]++

	if ev.State != nil && ev.State.Degraded && ev.SessionID != "" && !t.degraded[ev.SessionID] {
		t.degraded[ev.SessionID] = true
		s.DegradedSessions++
	}

	milestone := 0
	switch {
	case ev.To == session.Countdown:
		s.SessionsStarted++

	case ev.From == session.ApplyFilter && ev.To == session.EndScreen:
		s.FilterEndReasons[ev.Reason]++
		s.SessionsCompleted++
		s.ConsecutiveCompletions++
		t.recordSession(ev)
		for _, m := range Milestones {
			if s.SessionsCompleted == m {
				milestone = m
			}
		}

	case ev.Cancelled():
		s.SessionsCancelled++
		s.ConsecutiveCompletions = 0
		if ev.From == session.ApplyFilter {
			s.FilterEndReasons[ev.Reason]++
			t.recordPixels(ev.Pixels)
		}
	}

	if ev.To == session.Idle {
		delete(t.degraded, ev.SessionID)
	}
	t.mu.Unlock()

	if milestone > 0 {
		t.log.Info("milestone reached", "completed", milestone)
		if t.onMilestone != nil {
			t.onMilestone(milestone)
		}
	}
}

// recordSession folds a completed session into the totals. Caller must hold
// t.mu.
func (t *Tracker) recordSession(ev session.Event) {
	s := t.stats
	t.recordPixels(ev.Pixels)
	at := ev.At
	s.LastSessionAt = &at
	if ev.SessionStarted.IsZero() {
		return
	}
	dur := ev.At.Sub(ev.SessionStarted).Seconds()
	s.TotalSessionSec += dur
	s.AvgSessionSec = s.TotalSessionSec / float64(s.SessionsCompleted)
	if dur > s.MaxSessionSec {
		s.MaxSessionSec = dur
	}
}

func (t *Tracker) recordPixels(n int64) {
	t.stats.TotalPixels += n
	if n > t.stats.MaxPixels {
		t.stats.MaxPixels = n
	}
}
