package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/foreach/photobooth/internal/filter"
)

// Phase is one stage of a booth session.
type Phase int

const (
	Idle Phase = iota
	Countdown
	Transition
	ApplyFilter
	EndScreen
)

var phaseNames = [...]string{
	Idle:        "idle",
	Countdown:   "countdown",
	Transition:  "transition",
	ApplyFilter: "apply_filter",
	EndScreen:   "end_screen",
}

// Phases lists every phase in lifecycle order.
func Phases() []Phase {
	return []Phase{Idle, Countdown, Transition, ApplyFilter, EndScreen}
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// ParsePhase maps a phase name back to its Phase.
func ParsePhase(name string) (Phase, error) {
	for i, n := range phaseNames {
		if n == name {
			return Phase(i), nil
		}
	}
	return Idle, fmt.Errorf("unknown phase %q", name)
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParsePhase(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// CountdownNotStarted is the countdown number reported outside Countdown.
const CountdownNotStarted = -1

type CountdownData struct {
	From        int     `json:"from"`
	Number      int     `json:"number"`
	DisplaySize float64 `json:"displaySize"`
}

type TransitionData struct {
	Duration  time.Duration `json:"duration"`
	StartTime time.Time     `json:"startTime"`
	ZoomLevel float64       `json:"zoomLevel"`
	MaxZoom   float64       `json:"maxZoom"`
}

type ApplyFilterData struct {
	PixelsProcessed int64 `json:"pixelsProcessed"`
}

// State is a snapshot of the machine. Exactly one of the phase data
// pointers is set, matching Phase, or none in Idle and EndScreen.
type State struct {
	SessionID   string           `json:"sessionId,omitempty"`
	Phase       Phase            `json:"phase"`
	EnteredAt   time.Time        `json:"enteredAt"`
	Countdown   *CountdownData   `json:"countdown,omitempty"`
	Transition  *TransitionData  `json:"transition,omitempty"`
	ApplyFilter *ApplyFilterData `json:"applyFilter,omitempty"`
	Params      filter.Params    `json:"params"`
	Degraded    bool             `json:"degraded"`
	Tick        uint64           `json:"tick"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Clone returns a deep copy of the State, duplicating the phase data so the
// copy can be mutated independently of the original.
func (s *State) Clone() *State {
	c := *s
	if s.Countdown != nil {
		d := *s.Countdown
		c.Countdown = &d
	}
	if s.Transition != nil {
		d := *s.Transition
		c.Transition = &d
	}
	if s.ApplyFilter != nil {
		d := *s.ApplyFilter
		c.ApplyFilter = &d
	}
	return &c
}

// CountdownNumber returns the number on screen, or CountdownNotStarted.
func (s *State) CountdownNumber() int {
	if s.Countdown == nil {
		return CountdownNotStarted
	}
	return s.Countdown.Number
}

// ZoomLevel returns the transition zoom, 1 outside Transition.
func (s *State) ZoomLevel() float64 {
	if s.Transition != nil {
		return s.Transition.ZoomLevel
	}
	return 1
}

// PixelsProcessed returns the filter counter, 0 outside ApplyFilter.
func (s *State) PixelsProcessed() int64 {
	if s.ApplyFilter == nil {
		return 0
	}
	return s.ApplyFilter.PixelsProcessed
}

// Live reports whether the preview follows the camera.
func (s *State) Live() bool {
	return s.Phase == Idle || s.Phase == Countdown
}
