package frame

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"sync"
	"time"
)

// Camera produces frames. Implementations are called from a single
// goroutine at a time (the Source serialises access).
type Camera interface {
	Capture() (*Frame, error)
}

// FuncCamera adapts a function to Camera.
type FuncCamera func() (*Frame, error)

func (f FuncCamera) Capture() (*Frame, error) { return f() }

// StaticCamera returns the same still image on every capture. It backs
// installations without a working camera.
type StaticCamera struct {
	frame *Frame
}

// NewStaticCamera wraps an already decoded image.
func NewStaticCamera(img image.Image) *StaticCamera {
	return &StaticCamera{frame: &Frame{Image: ToRGBA(img), Timestamp: time.Now()}}
}

// LoadStaticCamera decodes a PNG or JPEG file.
func LoadStaticCamera(path string) (*StaticCamera, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open static image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode static image %s: %w", path, err)
	}
	return NewStaticCamera(img), nil
}

func (c *StaticCamera) Capture() (*Frame, error) {
	return c.frame, nil
}

// PatternCamera renders a moving colour test card. It stands in for a real
// camera in demo mode and in tests.
type PatternCamera struct {
	width, height int
	interval      time.Duration
	now           func() time.Time

	mu      sync.Mutex
	cached  *Frame
	failing bool
}

// NewPatternCamera returns a w×h test card that redraws at most 15 times a
// second; between redraws the same immutable frame is returned.
func NewPatternCamera(w, h int) *PatternCamera {
	return &PatternCamera{
		width:    w,
		height:   h,
		interval: time.Second / 15,
		now:      time.Now,
	}
}

// SetFailing makes subsequent captures fail, simulating an unplugged camera.
func (c *PatternCamera) SetFailing(failing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing = failing
}

func (c *PatternCamera) Capture() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failing {
		return nil, fmt.Errorf("pattern camera: simulated failure")
	}
	now := c.now()
	if c.cached != nil && now.Sub(c.cached.Timestamp) < c.interval {
		return c.cached, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	phase := float64(now.UnixMilli()%4000) / 4000 * 2 * math.Pi
	for y := 0; y < c.height; y++ {
		for x := 0; x < c.width; x++ {
			u := float64(x) / float64(c.width)
			v := float64(y) / float64(c.height)
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(127 + 127*math.Sin(phase+u*2*math.Pi)),
				G: uint8(255 * v),
				B: uint8(127 + 127*math.Cos(phase+v*2*math.Pi)),
				A: 255,
			})
		}
	}
	c.cached = &Frame{Image: img, Timestamp: now}
	return c.cached, nil
}
