package session

import (
	"sync"

	"github.com/foreach/photobooth/internal/frame"
)

// Store publishes the machine's latest snapshot and output frame to readers
// on other goroutines.
type Store struct {
	mu    sync.RWMutex
	state *State
	frame *frame.Frame
}

func NewStore() *Store {
	return &Store{
		state: &State{Phase: Idle},
	}
}

// Get returns a copy of the latest state.
func (s *Store) Get() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Frame returns the latest output frame. Frames are never mutated after
// publication, so the pointer is shared.
func (s *Store) Frame() *frame.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// Update stores a copy of state and the current output frame.
func (s *Store) Update(state *State, f *frame.Frame) {
	c := state.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = c
	s.frame = f
}
