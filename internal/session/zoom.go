package session

import (
	"fmt"
	"time"
)

// ZoomCurve maps normalized transition progress in [0,1] to [0,1]. Curves
// are monotone non-decreasing with curve(0)=0 and curve(1)=1.
type ZoomCurve func(t float64) float64

const (
	CurveLinear     = "linear"
	CurveSmoothstep = "smoothstep"
)

// Linear is the default curve.
func Linear(t float64) float64 { return clamp01(t) }

// Smoothstep eases in and out: 3t²−2t³.
func Smoothstep(t float64) float64 {
	t = clamp01(t)
	return t * t * (3 - 2*t)
}

// CurveByName resolves a configured curve name. Empty means linear.
func CurveByName(name string) (ZoomCurve, error) {
	switch name {
	case "", CurveLinear:
		return Linear, nil
	case CurveSmoothstep:
		return Smoothstep, nil
	}
	return nil, fmt.Errorf("unknown zoom curve %q", name)
}

// zoomAt returns the zoom level after elapsed of a transition lasting
// duration: 1 at the start, maxZoom at or after duration.
func zoomAt(curve ZoomCurve, elapsed, duration time.Duration, maxZoom float64) float64 {
	if duration <= 0 || elapsed >= duration {
		return maxZoom
	}
	if elapsed <= 0 {
		return 1
	}
	t := float64(elapsed) / float64(duration)
	z := 1 + (maxZoom-1)*curve(t)
	if z > maxZoom {
		return maxZoom
	}
	return z
}

func clamp01(t float64) float64 {
	switch {
	case t < 0:
		return 0
	case t > 1:
		return 1
	}
	return t
}
