package session

import (
	"time"

	"github.com/charmbracelet/harmonica"
)

// PulseSettings shape the countdown number's pop animation.
type PulseSettings struct {
	Size      float64
	Frequency float64
	Damping   float64
}

// popScale is how far past its resting size the number jumps on a kick.
const popScale = 1.6

// pulse is a damped spring driving CountdownData.DisplaySize. Each kick
// throws the size to popScale×Size and lets it settle back.
type pulse struct {
	spring harmonica.Spring
	size   float64
	pos    float64
	vel    float64
}

func newPulse(ps PulseSettings, tick time.Duration) pulse {
	dt := tick.Seconds()
	if dt <= 0 {
		dt = harmonica.FPS(60)
	}
	return pulse{
		spring: harmonica.NewSpring(dt, ps.Frequency, ps.Damping),
		size:   ps.Size,
		pos:    ps.Size,
	}
}

func (p *pulse) kick() {
	p.pos = p.size * popScale
	p.vel = 0
}

// step advances the spring by one tick and returns the display size.
func (p *pulse) step() float64 {
	p.pos, p.vel = p.spring.Update(p.pos, p.vel, p.size)
	if p.pos < 0 {
		return 0
	}
	return p.pos
}
