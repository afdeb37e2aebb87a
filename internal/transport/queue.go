package transport

import (
	"context"
	"sync"

	"github.com/ddirect/container/fifo"

	"github.com/torosent/echobench/internal/wire"
)

// Queue is the receive side of a subscriber. Adapters call Deliver from their
// read goroutine and Stop when that goroutine exits; everything else in the
// Subscriber interface is implemented here.
type Queue struct {
	mu       sync.Mutex
	items    fifo.Fifo[wire.Echo]
	signal   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	listener Listener
	err      error
}

func NewQueue(l Listener) *Queue {
	if l == nil {
		l = ListenerFuncs{}
	}
	return &Queue{
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		listener: l,
	}
}

// Deliver buffers msg and then notifies the listener on the caller's goroutine.
func (q *Queue) Deliver(sub Subscriber, msg wire.Echo) {
	select {
	case <-q.done:
		return
	default:
	}
	q.mu.Lock()
	q.items.Enqueue(msg)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
	q.listener.OnData(sub)
}

// Match forwards a match notification to the listener.
func (q *Queue) Match(status MatchStatus) {
	q.listener.OnMatch(status)
}

func (q *Queue) WaitForData(ctx context.Context) error {
	for {
		if q.Pending() > 0 {
			return nil
		}
		select {
		case <-q.signal:
		case <-q.done:
			if q.Pending() > 0 {
				return nil
			}
			return q.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *Queue) TakeNext() (wire.Echo, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Dequeue()
}

func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Stop ends delivery. err explains why; nil means an orderly close.
func (q *Queue) Stop(err error) {
	q.stopOnce.Do(func() {
		if err == nil {
			err = ErrClosed
		}
		q.mu.Lock()
		q.err = err
		q.mu.Unlock()
		close(q.done)
	})
}

// Err returns the reason delivery stopped, or nil while it is running.
func (q *Queue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}
