package dispatch

import (
	"slices"
	"sync"
)

// Status is the shared view of the dispatch state. The loop writes it; the
// lifecycle controller and CLI read it from other goroutines.
type Status struct {
	mu       sync.Mutex
	ready    bool
	files    []string
	forwards int
	failures int
}

// Ready reports whether the initial forward has been attempted.
func (s *Status) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// ActiveFiles returns the paths that went into the last forward.
func (s *Status) ActiveFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.files)
}

// Forwards counts successful forwards.
func (s *Status) Forwards() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forwards
}

// Failures counts forwards the remote rejected.
func (s *Status) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

func (s *Status) markReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
}

func (s *Status) record(files []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failures++
		return
	}
	s.forwards++
	s.files = slices.Clone(files)
}
