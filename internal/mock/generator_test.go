package mock

import (
	"math/rand"
	"testing"
	"time"

	"github.com/foreach/photobooth/internal/config"
	"github.com/foreach/photobooth/internal/control"
	"github.com/foreach/photobooth/internal/logging"
	"github.com/foreach/photobooth/internal/session"
)

// drainTriggers collects all triggers currently queued without blocking.
func drainTriggers(q *control.Queue) []control.Trigger {
	var out []control.Trigger
	for {
		t, ok := q.Poll()
		if !ok {
			return out
		}
		out = append(out, t)
	}
}

func newTestGenerator() (*Generator, *control.Queue, *session.Store) {
	q := control.NewQueue(16)
	store := session.NewStore()
	cfg := config.MockConfig{StartEvery: 20 * time.Second, HoldFilter: 6 * time.Second}
	g := NewGenerator(q, store, cfg, logging.Discard())
	g.rng = rand.New(rand.NewSource(1))
	return g, q, store
}

var t0 = time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

func TestGenerator_StartsWhenIdle(t *testing.T) {
	g, q, _ := newTestGenerator()

	g.step(t0)
	got := drainTriggers(q)
	if len(got) != 1 || got[0].Name != control.NameStart {
		t.Fatalf("triggers = %v, want one start", got)
	}
	n, ok := got[0].Arg(0)
	if !ok || n < 3 || n > 5 {
		t.Errorf("countdown arg = %v, want 3..5", n)
	}
	if err := got[0].Validate(); err != nil {
		t.Errorf("generated invalid trigger: %v", err)
	}

	g.step(t0.Add(10 * time.Second))
	if got := drainTriggers(q); len(got) != 0 {
		t.Errorf("started again before StartEvery: %v", got)
	}
	g.step(t0.Add(20 * time.Second))
	if got := drainTriggers(q); len(got) != 1 {
		t.Errorf("did not start after StartEvery: %v", got)
	}
}

func TestGenerator_PicksLookOncePerSession(t *testing.T) {
	g, q, store := newTestGenerator()
	store.Update(&session.State{Phase: session.Transition, SessionID: "a"}, nil)

	g.step(t0)
	got := drainTriggers(q)
	if len(got) != 2 || got[0].Name != control.NameGain || got[1].Name != control.NameExponent {
		t.Fatalf("triggers = %v, want gain then exponent", got)
	}
	for _, tr := range got {
		if err := tr.Validate(); err != nil {
			t.Errorf("generated invalid trigger %v: %v", tr, err)
		}
	}

	g.step(t0.Add(time.Second))
	if got := drainTriggers(q); len(got) != 0 {
		t.Errorf("look picked twice for one session: %v", got)
	}

	store.Update(&session.State{Phase: session.Transition, SessionID: "b"}, nil)
	g.step(t0.Add(2 * time.Second))
	if got := drainTriggers(q); len(got) != 2 {
		t.Errorf("no look for the next session: %v", got)
	}
}

func TestGenerator_NextAfterHold(t *testing.T) {
	g, q, store := newTestGenerator()
	store.Update(&session.State{Phase: session.ApplyFilter, EnteredAt: t0, ApplyFilter: &session.ApplyFilterData{}}, nil)

	g.step(t0.Add(5 * time.Second))
	if got := drainTriggers(q); len(got) != 0 {
		t.Errorf("next pressed before HoldFilter: %v", got)
	}
	g.step(t0.Add(6 * time.Second))
	got := drainTriggers(q)
	if len(got) != 1 || got[0].Name != control.NameNext {
		t.Errorf("triggers = %v, want next", got)
	}
}

func TestGenerator_WaitsOutCountdownAndEndScreen(t *testing.T) {
	g, q, store := newTestGenerator()
	for _, p := range []session.Phase{session.Countdown, session.EndScreen} {
		store.Update(&session.State{Phase: p}, nil)
		g.step(t0.Add(time.Hour))
		if got := drainTriggers(q); len(got) != 0 {
			t.Errorf("%v: triggers = %v, want none", p, got)
		}
	}
}
