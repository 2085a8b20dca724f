package session

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// scope collects release functions for resources acquired together and
// runs them in reverse order exactly once.
type scope struct {
	mu       sync.Mutex
	releases []release
	closed   bool
}

type release struct {
	name string
	fn   func() error
}

// Acquire registers fn to run on Release. On a released scope fn runs
// immediately.
func (s *scope) Acquire(name string, fn func() error) {
	s.mu.Lock()
	if !s.closed {
		s.releases = append(s.releases, release{name, fn})
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	if err := fn(); err != nil {
		log.Printf("Release %s: %v", name, err)
	}
}

// Release runs every release function, newest first. Later calls are no-ops.
func (s *scope) Release() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	rs := s.releases
	s.releases = nil
	s.mu.Unlock()

	var errList []error
	for i := len(rs) - 1; i >= 0; i-- {
		if err := rs[i].fn(); err != nil {
			errList = append(errList, fmt.Errorf("release %s: %w", rs[i].name, err))
		}
	}
	return errors.Join(errList...)
}
