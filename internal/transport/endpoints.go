package transport

import (
	"errors"
	"sync"
)

// Endpoints records the close functions of everything a participant created
// so that closing the participant closes them too.
type Endpoints struct {
	mu      sync.Mutex
	closers []func() error
	closed  bool
}

// Track registers fn, failing with ErrClosed once Close has run.
func (e *Endpoints) Track(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.closers = append(e.closers, fn)
	return nil
}

// Closed reports whether Close has been called.
func (e *Endpoints) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close runs every tracked function once, in creation order.
func (e *Endpoints) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	closers := e.closers
	e.closers = nil
	e.mu.Unlock()

	var errs []error
	for _, fn := range closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
