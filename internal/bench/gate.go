package bench

import (
	"context"
	"sync"

	"github.com/torosent/echobench/internal/logging"
)

// Gate counts "matched" notifications. Wait consumes one; "unmatched" never releases it.
type Gate struct {
	mu     sync.Mutex
	posts  int
	notify chan struct{}
}

func NewGate() *Gate {
	return &Gate{notify: make(chan struct{}, 1)}
}

// Signal posts one matched event.
func (g *Gate) Signal() {
	g.mu.Lock()
	g.posts++
	g.mu.Unlock()
	select {
	case g.notify <- struct{}{}:
	default:
	}
}

// Unmatch records a lost match. The count is left alone.
func (g *Gate) Unmatch() {
	logging.Debugf("endpoint unmatched")
}

// Wait blocks until a matched event is available and consumes it.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.posts > 0 {
			g.posts--
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		select {
		case <-g.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pending returns the number of unconsumed matched events.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.posts
}
