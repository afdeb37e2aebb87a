// Package relay is a topic router for the network transports. Publishers push
// data frames on a topic, every subscriber of that topic receives them, and
// subscribers are told with control frames whether a publisher is attached.
package relay

import (
	"errors"
	"fmt"
	"sync"

	"github.com/torosent/echobench/internal/clientmetrics"
	"github.com/torosent/echobench/internal/logging"
	"github.com/torosent/echobench/internal/wire"
)

// DefaultBacklog is the number of frames a subscriber may have queued before it is dropped.
const DefaultBacklog = 1024

var (
	ErrNotData     = errors.New("relay: publishers may only send data frames")
	ErrSlowReader  = errors.New("relay: subscriber backlog full")
	ErrHubShutdown = errors.New("relay: hub shut down")
)

// Hub routes frames between the publishers and subscribers of each topic.
type Hub struct {
	backlog int
	metrics *clientmetrics.ClientMetrics

	mu       sync.Mutex
	topics   map[string]*topic
	shutdown bool
}

type topic struct {
	publishers int
	subs       map[*Subscription]struct{}
}

// NewHub creates a hub. backlog <= 0 selects DefaultBacklog.
func NewHub(backlog int) *Hub {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Hub{
		backlog: backlog,
		metrics: clientmetrics.New(),
		topics:  make(map[string]*topic),
	}
}

// Metrics counts frames received from publishers and sent to subscribers.
func (h *Hub) Metrics() clientmetrics.Snapshot {
	return h.metrics.Snapshot()
}

func (h *Hub) topic(name string) *topic {
	t, ok := h.topics[name]
	if !ok {
		t = &topic{subs: make(map[*Subscription]struct{})}
		h.topics[name] = t
	}
	return t
}

// forget drops an idle topic. Callers hold h.mu.
func (h *Hub) forget(name string, t *topic) {
	if t.publishers == 0 && len(t.subs) == 0 {
		delete(h.topics, name)
	}
}

// Attach registers a publisher on name. Subscribers receive a matched frame when
// the first publisher arrives and an unmatched frame when the last one leaves
// through the returned release function.
func (h *Hub) Attach(name string) (release func(), err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		return nil, ErrHubShutdown
	}
	t := h.topic(name)
	t.publishers++
	if t.publishers == 1 {
		h.broadcast(t, wire.ControlFrame(wire.FrameMatched))
	}
	logging.Debugf("relay: publisher attached to %q (%d)", name, t.publishers)

	var once sync.Once
	return func() {
		once.Do(func() { h.detach(name) })
	}, nil
}

func (h *Hub) detach(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[name]
	if !ok || t.publishers == 0 {
		return
	}
	t.publishers--
	if t.publishers == 0 {
		h.broadcast(t, wire.ControlFrame(wire.FrameUnmatched))
	}
	logging.Debugf("relay: publisher left %q (%d)", name, t.publishers)
	h.forget(name, t)
}

// Publish forwards a data frame to every subscriber of name.
func (h *Hub) Publish(name string, frame []byte) error {
	kind, _, err := wire.ParseFrame(frame)
	if err != nil {
		h.metrics.IncrementErrors()
		return fmt.Errorf("relay: bad frame on %q: %w", name, err)
	}
	if kind != wire.FrameData {
		h.metrics.IncrementErrors()
		return fmt.Errorf("%w: got %s", ErrNotData, kind)
	}
	h.metrics.IncrementReceived(int64(len(frame)))

	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[name]; ok {
		h.broadcast(t, frame)
	}
	return nil
}

// Subscribe registers a subscriber on name. A matched frame is queued at once
// when a publisher is already attached.
func (h *Hub) Subscribe(name string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		return nil, ErrHubShutdown
	}
	s := &Subscription{
		hub:    h,
		topic:  name,
		frames: make(chan []byte, h.backlog),
		done:   make(chan struct{}),
	}
	t := h.topic(name)
	t.subs[s] = struct{}{}
	if t.publishers > 0 {
		s.offer(wire.ControlFrame(wire.FrameMatched))
	}
	return s, nil
}

// Shutdown ends every subscription and refuses new endpoints.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdown = true
	for name, t := range h.topics {
		for s := range t.subs {
			s.stop(ErrHubShutdown)
		}
		delete(h.topics, name)
	}
}

// broadcast queues frame on every subscriber of t. Callers hold h.mu, which
// keeps control and data frames in one order for all subscribers.
func (h *Hub) broadcast(t *topic, frame []byte) {
	for s := range t.subs {
		if !s.offer(frame) {
			logging.Warnf("relay: dropping slow subscriber on %q", s.topic)
			delete(t.subs, s)
			s.stop(ErrSlowReader)
			continue
		}
		h.metrics.IncrementSent(int64(len(frame)))
	}
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[s.topic]; ok {
		delete(t.subs, s)
		h.forget(s.topic, t)
	}
}

// Subscription is one subscriber's view of a topic. Frames are queued in
// arrival order; a subscription that falls DefaultBacklog frames behind is dropped.
type Subscription struct {
	hub    *Hub
	topic  string
	frames chan []byte
	done   chan struct{}
	once   sync.Once
	err    error
}

// Frames yields queued frames.
func (s *Subscription) Frames() <-chan []byte {
	return s.frames
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err explains why the subscription ended. It is only meaningful after Done is closed.
func (s *Subscription) Err() error {
	<-s.done
	return s.err
}

// Close detaches the subscription from its topic.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
	s.stop(nil)
}

func (s *Subscription) offer(frame []byte) bool {
	select {
	case s.frames <- frame:
		return true
	default:
		return false
	}
}

func (s *Subscription) stop(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}
