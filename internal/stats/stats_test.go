package stats

import (
	"context"
	"testing"
	"time"

	"github.com/foreach/photobooth/internal/logging"
	"github.com/foreach/photobooth/internal/session"
)

// startTracker starts a Tracker's Run loop and returns it with its event
// channel. The Run goroutine is stopped when the test finishes.
func startTracker(t *testing.T) (*Tracker, chan<- session.Event) {
	t.Helper()
	tracker, ch := NewTracker(16, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tracker.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return tracker, ch
}

var t0 = time.Date(2026, 7, 4, 20, 0, 0, 0, time.UTC)

func change(from, to session.Phase, reason string, at time.Duration) session.Event {
	return session.Event{
		Change: session.Change{
			From:           from,
			To:             to,
			Reason:         reason,
			SessionID:      "s1",
			At:             t0.Add(at),
			SessionStarted: t0,
		},
		State: &session.State{Phase: to},
	}
}

// completedSession is the event sequence of one full session lasting 12s
// that processed px pixels.
func completedSession(px int64) []session.Event {
	leave := change(session.ApplyFilter, session.EndScreen, session.ReasonNext, 12*time.Second)
	leave.Pixels = px
	return []session.Event{
		change(session.Idle, session.Countdown, session.ReasonStart, 0),
		change(session.Countdown, session.Transition, session.ReasonCountdownElapsed, 3*time.Second),
		change(session.Transition, session.ApplyFilter, session.ReasonTransitionElapsed, 5*time.Second),
		leave,
		change(session.EndScreen, session.Idle, session.ReasonEndScreenTimeout, 22*time.Second),
	}
}

func process(tr *Tracker, events ...session.Event) {
	for _, ev := range events {
		tr.processEvent(ev)
	}
}

func TestTracker_CompletedSession(t *testing.T) {
	tr, _ := NewTracker(0, logging.Discard())
	process(tr, completedSession(1000)...)

	s := tr.Stats()
	if s.SessionsStarted != 1 || s.SessionsCompleted != 1 || s.SessionsCancelled != 0 {
		t.Errorf("counts = %d/%d/%d, want 1/1/0", s.SessionsStarted, s.SessionsCompleted, s.SessionsCancelled)
	}
	if s.TotalPixels != 1000 || s.MaxPixels != 1000 {
		t.Errorf("pixels = %d (max %d), want 1000", s.TotalPixels, s.MaxPixels)
	}
	if s.AvgSessionSec != 12 || s.MaxSessionSec != 12 {
		t.Errorf("durations avg=%v max=%v, want 12", s.AvgSessionSec, s.MaxSessionSec)
	}
	if s.FilterEndReasons[session.ReasonNext] != 1 {
		t.Errorf("FilterEndReasons = %v", s.FilterEndReasons)
	}
	if s.PhaseEntries["idle"] != 1 || s.PhaseEntries["countdown"] != 1 {
		t.Errorf("PhaseEntries = %v", s.PhaseEntries)
	}
	if s.LastSessionAt == nil || !s.LastSessionAt.Equal(t0.Add(12*time.Second)) {
		t.Errorf("LastSessionAt = %v", s.LastSessionAt)
	}
}

func TestTracker_AverageAcrossSessions(t *testing.T) {
	tr, _ := NewTracker(0, logging.Discard())
	process(tr, completedSession(100)...)

	second := completedSession(300)
	second[3].At = t0.Add(20 * time.Second)
	process(tr, second...)

	s := tr.Stats()
	if s.SessionsCompleted != 2 || s.ConsecutiveCompletions != 2 {
		t.Errorf("completed = %d consecutive = %d, want 2/2", s.SessionsCompleted, s.ConsecutiveCompletions)
	}
	if s.AvgSessionSec != 16 || s.MaxSessionSec != 20 {
		t.Errorf("avg = %v max = %v, want 16/20", s.AvgSessionSec, s.MaxSessionSec)
	}
	if s.TotalPixels != 400 || s.MaxPixels != 300 {
		t.Errorf("pixels = %d max = %d, want 400/300", s.TotalPixels, s.MaxPixels)
	}
}

func TestTracker_CancelledSession(t *testing.T) {
	tests := []struct {
		name      string
		from      session.Phase
		cancelled int
	}{
		{"countdown", session.Countdown, 1},
		{"apply filter", session.ApplyFilter, 1},
		{"end screen", session.EndScreen, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := NewTracker(0, logging.Discard())
			process(tr, completedSession(10)[:1]...)
			reset := change(tt.from, session.Idle, session.ReasonReset, time.Second)
			reset.Pixels = 50
			process(tr, reset)

			s := tr.Stats()
			if s.SessionsCancelled != tt.cancelled {
				t.Errorf("SessionsCancelled = %d, want %d", s.SessionsCancelled, tt.cancelled)
			}
			if tt.from == session.ApplyFilter && s.TotalPixels != 50 {
				t.Errorf("TotalPixels = %d, want 50", s.TotalPixels)
			}
			if s.SessionsCompleted != 0 {
				t.Errorf("SessionsCompleted = %d, want 0", s.SessionsCompleted)
			}
		})
	}
}

func TestTracker_CancelResetsStreak(t *testing.T) {
	tr, _ := NewTracker(0, logging.Discard())
	process(tr, completedSession(1)...)
	process(tr, completedSession(1)[:2]...)
	process(tr, change(session.Transition, session.Idle, session.ReasonReset, 4*time.Second))

	if got := tr.Stats().ConsecutiveCompletions; got != 0 {
		t.Errorf("ConsecutiveCompletions = %d, want 0", got)
	}
}

func TestTracker_DegradedCountedOncePerSession(t *testing.T) {
	tr, _ := NewTracker(0, logging.Discard())
	events := completedSession(1)
	for i := 1; i < 4; i++ {
		events[i].State.Degraded = true
	}
	process(tr, events...)

	if got := tr.Stats().DegradedSessions; got != 1 {
		t.Errorf("DegradedSessions = %d, want 1", got)
	}
}

func TestTracker_Milestones(t *testing.T) {
	tr, _ := NewTracker(0, logging.Discard())
	var got []int
	tr.OnMilestone(func(n int) { got = append(got, n) })

	for i := 0; i < 10; i++ {
		process(tr, completedSession(1)...)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 10 {
		t.Errorf("milestones = %v, want [1 10]", got)
	}
}

func TestTracker_RunConsumesChannel(t *testing.T) {
	tr, ch := startTracker(t)
	for _, ev := range completedSession(5) {
		ch <- ev
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if tr.Stats().SessionsCompleted == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("events not processed: %+v", tr.Stats())
}

func TestStatsCloneIsDeep(t *testing.T) {
	tr, _ := NewTracker(0, logging.Discard())
	process(tr, completedSession(1)...)

	c := tr.Stats()
	c.PhaseEntries["idle"] = 99
	*c.LastSessionAt = time.Time{}

	s := tr.Stats()
	if s.PhaseEntries["idle"] != 1 || s.LastSessionAt.IsZero() {
		t.Error("Stats() shares maps or pointers with the tracker")
	}
}
