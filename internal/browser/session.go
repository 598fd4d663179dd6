package browser

import (
	"context"
	"fmt"
	"sync"
)

// Session lazily launches its driver on first use and is owned by exactly
// one task run.
type Session struct {
	mu       sync.Mutex
	driver   Driver
	launched bool
	closed   bool
}

func NewSession(d Driver) *Session {
	return &Session{driver: d}
}

// Driver returns the launched driver. A failed launch is retried once; the
// second failure is returned wrapped in ErrNotInitialized.
func (s *Session) Driver(ctx context.Context) (Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%w: session closed", ErrNotInitialized)
	}
	if s.launched {
		return s.driver, nil
	}

	err := s.driver.Launch(ctx)
	if err != nil {
		_ = s.driver.Close()
		if err = s.driver.Launch(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotInitialized, err)
		}
	}
	s.launched = true
	return s.driver, nil
}

// Launched reports whether the browser has been started.
func (s *Session) Launched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launched
}

// Close releases the browser. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.launched {
		return nil
	}
	return s.driver.Close()
}
