package mock

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/foreach/photobooth/internal/config"
	"github.com/foreach/photobooth/internal/control"
	"github.com/foreach/photobooth/internal/filter"
	"github.com/foreach/photobooth/internal/session"
)

// pollInterval is how often the generator looks at the booth state.
const pollInterval = 250 * time.Millisecond

// look is a filter preset the generator dials in for a demo session.
type look struct {
	name   string
	params filter.Params
}

var looks = []look{
	{"neutral", filter.Params{Gain: 1, Exponent: 1}},
	{"bright", filter.Params{Gain: 1.4, Exponent: 0.8}},
	{"moody", filter.Params{Gain: 0.9, Exponent: 1.8}},
	{"washed", filter.Params{Gain: 1.2, Exponent: 0.5}},
	{"contrast", filter.Params{Gain: 1.1, Exponent: 2.4}},
}

// Generator plays an operator for demo mode: it starts a session every
// StartEvery while the booth is idle, picks a filter look, and presses next
// once the filter has been shown for HoldFilter. Triggers go through the
// same queue as remote ones.
type Generator struct {
	queue *control.Queue
	store *session.Store
	cfg   config.MockConfig
	rng   *rand.Rand
	log   *slog.Logger

	lastStart   time.Time
	lookSession string
}

func NewGenerator(queue *control.Queue, store *session.Store, cfg config.MockConfig, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		queue: queue,
		store: store,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		log:   log,
	}
}

// Start launches the generator loop. It returns immediately.
func (g *Generator) Start(ctx context.Context) {
	g.log.Info("mock generator started", "start_every", g.cfg.StartEvery.String(), "hold_filter", g.cfg.HoldFilter.String())
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.step(now)
		}
	}
}

func (g *Generator) step(now time.Time) {
	st := g.store.Get()
	switch st.Phase {
	case session.Idle:
		if !g.lastStart.IsZero() && now.Sub(g.lastStart) < g.cfg.StartEvery {
			return
		}
		count := 3 + g.rng.Intn(3)
		if g.queue.Push(control.Trigger{Name: control.NameStart, Args: []float64{float64(count)}}) {
			g.lastStart = now
			g.log.Debug("mock start", "countdown", count)
		}

	case session.Transition:
		if st.SessionID == g.lookSession {
			return
		}
		l := looks[g.rng.Intn(len(looks))]
		ok := g.queue.Push(control.Trigger{Name: control.NameGain, Args: []float64{l.params.Gain}})
		ok = ok && g.queue.Push(control.Trigger{Name: control.NameExponent, Args: []float64{l.params.Exponent}})
		if ok {
			g.lookSession = st.SessionID
			g.log.Debug("mock look", "look", l.name)
		}

	case session.ApplyFilter:
		if now.Sub(st.EnteredAt) >= g.cfg.HoldFilter {
			g.queue.Push(control.Trigger{Name: control.NameNext})
		}
	}
}
