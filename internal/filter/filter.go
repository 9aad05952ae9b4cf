// Package filter implements the booth's two-stage image filter: a
// pass-through render of the source frame followed by gain/exponent shaping.
//
// On the installation the same two stages run as GPU shaders; CPU is the
// reference implementation used when no GPU backend is wired and in tests.
// Anything satisfying Pipeline can be injected into the session machine.
package filter

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync/atomic"

	"github.com/foreach/photobooth/internal/frame"
)

// ErrInvalidParams is returned by Params.Validate.
var ErrInvalidParams = errors.New("filter: invalid params")

// Params are the shader's two scalar inputs.
type Params struct {
	Gain     float64 `json:"gain"`
	Exponent float64 `json:"exponent"`
}

// DefaultParams leave the image unchanged.
func DefaultParams() Params {
	return Params{Gain: 1, Exponent: 1}
}

// Validate rejects non-finite values, negative gain and non-positive
// exponents.
func (p Params) Validate() error {
	switch {
	case math.IsNaN(p.Gain) || math.IsInf(p.Gain, 0) || p.Gain < 0:
		return fmt.Errorf("%w: gain %v", ErrInvalidParams, p.Gain)
	case math.IsNaN(p.Exponent) || math.IsInf(p.Exponent, 0) || p.Exponent <= 0:
		return fmt.Errorf("%w: exponent %v", ErrInvalidParams, p.Exponent)
	}
	return nil
}

// Counter is the pixelsProcessed observability counter. Its owner resets
// it; pipelines only add to it.
type Counter struct {
	n atomic.Int64
}

func (c *Counter) Add(n int64) { c.n.Add(n) }

func (c *Counter) Value() int64 { return c.n.Load() }

func (c *Counter) Reset() { c.n.Store(0) }

// Pipeline applies the filter to src and returns a new frame. It must not
// modify src and keeps no state between calls besides adding the processed
// pixel count to c. A nil src yields nil and leaves c unchanged.
type Pipeline interface {
	Apply(src *frame.Frame, p Params, c *Counter) *frame.Frame
}

// CPU is the software Pipeline.
type CPU struct{}

// NewCPU returns the software pipeline.
func NewCPU() *CPU { return &CPU{} }

func (CPU) Apply(src *frame.Frame, p Params, c *Counter) *frame.Frame {
	if src == nil || src.Image == nil {
		return nil
	}

	// Stage 1: pass-through render into a fresh buffer.
	dst := &image.RGBA{
		Pix:    make([]uint8, len(src.Image.Pix)),
		Stride: src.Image.Stride,
		Rect:   src.Image.Rect,
	}
	copy(dst.Pix, src.Image.Pix)

	// Stage 2: gain/exponent shaping on colour channels, alpha untouched.
	lut := Curve(p)
	for i := 0; i+3 < len(dst.Pix); i += 4 {
		dst.Pix[i] = lut[dst.Pix[i]]
		dst.Pix[i+1] = lut[dst.Pix[i+1]]
		dst.Pix[i+2] = lut[dst.Pix[i+2]]
	}

	out := &frame.Frame{Image: dst, Timestamp: src.Timestamp, Seq: src.Seq}
	if c != nil {
		c.Add(int64(out.Pixels()))
	}
	return out
}

// Curve returns the 8-bit lookup table for out = gain * in^exponent on the
// unit interval, clamped to [0, 255].
func Curve(p Params) [256]uint8 {
	var lut [256]uint8
	for i := range lut {
		v := p.Gain * math.Pow(float64(i)/255, p.Exponent) * 255
		switch {
		case math.IsNaN(v) || v <= 0:
			lut[i] = 0
		case v >= 255:
			lut[i] = 255
		default:
			lut[i] = uint8(math.Round(v))
		}
	}
	return lut
}
