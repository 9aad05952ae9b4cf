package frame

import (
	"fmt"
	"sync"
)

// Source is the booth's Frame Source: live camera frames, or a frozen still.
// It is safe for concurrent use; the engine drives it while HTTP handlers may
// read Last for previews.
type Source struct {
	mu       sync.Mutex
	cam      Camera
	last     *Frame
	frozen   *Frame
	failures int
	seq      uint64
	onFail   func(error)
}

// NewSource wraps cam. onFail, if non-nil, is called for every failed
// capture (metrics, logging).
func NewSource(cam Camera, onFail func(error)) *Source {
	return &Source{cam: cam, onFail: onFail}
}

// CurrentFrame returns the frozen frame while frozen. Otherwise it captures a
// live frame; if the camera fails it returns the last good frame, which is
// nil only if nothing was ever captured.
func (s *Source) CurrentFrame() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen != nil {
		return s.frozen
	}
	f, err := s.captureLocked()
	if err != nil {
		return s.last
	}
	return f
}

// Freeze pins the current camera image. On camera failure it pins the last
// good frame and returns an error wrapping ErrStaleFrame; with no frame at
// all it returns ErrNoFrame and stays live. Calling Freeze while frozen
// re-captures.
func (s *Source) Freeze() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frozen = nil
	f, err := s.captureLocked()
	if err == nil {
		s.frozen = f
		return nil
	}
	if s.last == nil {
		return fmt.Errorf("%w: %v", ErrNoFrame, err)
	}
	s.frozen = s.last
	return fmt.Errorf("%w: %v", ErrStaleFrame, err)
}

// Unfreeze releases the frozen frame and resumes live capture.
func (s *Source) Unfreeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = nil
}

// Frozen reports whether a frame is pinned.
func (s *Source) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen != nil
}

// Last returns the most recent good frame without capturing.
func (s *Source) Last() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen != nil {
		return s.frozen
	}
	return s.last
}

// Failures returns the number of consecutive failed captures. It resets on
// the next successful capture.
func (s *Source) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

func (s *Source) captureLocked() (*Frame, error) {
	f, err := s.cam.Capture()
	if err == nil && (f == nil || f.Image == nil) {
		err = ErrNoFrame
	}
	if err != nil {
		s.failures++
		if s.onFail != nil {
			s.onFail(err)
		}
		return nil, err
	}
	s.failures = 0
	// Cameras may hand back the same immutable frame more than once; only
	// a new frame gets a sequence number.
	if f != s.last {
		s.seq++
		f.Seq = s.seq
		s.last = f
	}
	return f, nil
}
