// Package frame supplies camera frames to the booth.
//
// A Source wraps a Camera and adds the freeze contract: while frozen,
// CurrentFrame returns the image captured at Freeze time regardless of what
// the camera produces, until Unfreeze. When the camera fails, the Source
// falls back to the last good frame instead of blocking or returning
// nothing.
//
// Frames are immutable once captured. Consumers (filter pipeline, HTTP
// preview, the frozen slot) share them by pointer and must not write to
// Image.Pix.
package frame

import (
	"errors"
	"image"
	"image/draw"
	"time"
)

var (
	// ErrNoFrame means the camera failed and no earlier frame exists.
	ErrNoFrame = errors.New("frame: no frame available")
	// ErrStaleFrame means the camera failed and the last good frame was used.
	ErrStaleFrame = errors.New("frame: camera failed, using last frame")
)

// Frame is one captured image.
type Frame struct {
	Image *image.RGBA

	// Timestamp is the capture time reported by the camera.
	Timestamp time.Time

	// Seq is assigned by the Source on each successful capture.
	Seq uint64
}

// Pixels returns width*height, or 0 for a nil frame.
func (f *Frame) Pixels() int {
	if f == nil || f.Image == nil {
		return 0
	}
	b := f.Image.Bounds()
	return b.Dx() * b.Dy()
}

// ToRGBA converts any image to a tightly packed RGBA copy anchored at 0,0.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
