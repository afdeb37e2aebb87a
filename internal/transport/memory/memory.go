// Package memory is an in-process pub/sub transport. Every subscriber gets its
// own delivery goroutine so callbacks behave as they do on a network transport.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/torosent/echobench/internal/clientmetrics"
	"github.com/torosent/echobench/internal/transport"
	"github.com/torosent/echobench/internal/wire"
)

const inboxSize = 1024

// Interceptor may rewrite or drop (ok=false) a message before it is delivered.
type Interceptor func(topic string, msg wire.Echo) (wire.Echo, bool)

// Broker routes messages between publishers and subscribers by topic name.
type Broker struct {
	mu        sync.Mutex
	topics    map[string]*topicState
	intercept Interceptor
}

type topicState struct {
	publishers int
	subs       map[*subscriber]struct{}
}

func NewBroker() *Broker {
	return &Broker{topics: make(map[string]*topicState)}
}

// Intercept installs fn on every subsequent publish. Passing nil removes it.
func (b *Broker) Intercept(fn Interceptor) {
	b.mu.Lock()
	b.intercept = fn
	b.mu.Unlock()
}

// Disconnect stops every subscriber on topic as if its link had dropped.
func (b *Broker) Disconnect(topic string) {
	for _, s := range b.subscribers(topic) {
		s.stop(transport.ErrDisconnected)
	}
}

// Participant returns a new handle on the broker.
func (b *Broker) Participant() *Participant {
	return &Participant{broker: b, metrics: clientmetrics.New()}
}

func (b *Broker) topic(name string) *topicState {
	t, ok := b.topics[name]
	if !ok {
		t = &topicState{subs: make(map[*subscriber]struct{})}
		b.topics[name] = t
	}
	return t
}

func (b *Broker) subscribers(topic string) []*subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[topic]
	if !ok {
		return nil
	}
	out := make([]*subscriber, 0, len(t.subs))
	for s := range t.subs {
		out = append(out, s)
	}
	return out
}

func (b *Broker) addPublisher(topic string) {
	b.mu.Lock()
	b.topic(topic).publishers++
	b.mu.Unlock()
	for _, s := range b.subscribers(topic) {
		s.post(event{match: transport.Matched, control: true})
	}
}

func (b *Broker) removePublisher(topic string) {
	b.mu.Lock()
	b.topic(topic).publishers--
	b.mu.Unlock()
	for _, s := range b.subscribers(topic) {
		s.post(event{match: transport.Unmatched, control: true})
	}
}

func (b *Broker) addSubscriber(topic string, s *subscriber) (matched bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.topic(topic)
	t.subs[s] = struct{}{}
	return t.publishers > 0
}

func (b *Broker) removeSubscriber(topic string, s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[topic]; ok {
		delete(t.subs, s)
	}
}

func (b *Broker) publish(ctx context.Context, topic string, msg wire.Echo) error {
	b.mu.Lock()
	intercept := b.intercept
	b.mu.Unlock()
	if intercept != nil {
		var ok bool
		if msg, ok = intercept(topic, msg); !ok {
			return nil
		}
	}
	for _, s := range b.subscribers(topic) {
		if err := s.send(ctx, event{msg: msg.Clone()}); err != nil {
			return err
		}
	}
	return nil
}

// Participant owns the endpoints it created and closes them with itself.
type Participant struct {
	broker    *Broker
	metrics   *clientmetrics.ClientMetrics
	endpoints transport.Endpoints
}

// Metrics returns message counters for every endpoint of the participant.
func (p *Participant) Metrics() clientmetrics.Snapshot {
	return p.metrics.Snapshot()
}

func (p *Participant) NewPublisher(_ context.Context, topic string) (transport.Publisher, error) {
	pub := &publisher{participant: p, topic: topic}
	if err := p.endpoints.Track(pub.Close); err != nil {
		return nil, err
	}
	p.broker.addPublisher(topic)
	return pub, nil
}

func (p *Participant) NewSubscriber(_ context.Context, topic string, l transport.Listener) (transport.Subscriber, error) {
	s := &subscriber{
		Queue:       transport.NewQueue(l),
		participant: p,
		topic:       topic,
		inbox:       make(chan event, inboxSize),
	}
	if err := p.endpoints.Track(s.Close); err != nil {
		return nil, err
	}
	go s.deliver()
	if p.broker.addSubscriber(topic, s) {
		s.post(event{match: transport.Matched, control: true})
	}
	return s, nil
}

func (p *Participant) Close() error {
	return p.endpoints.Close()
}

type publisher struct {
	participant *Participant
	topic       string
	closed      atomic.Bool
}

func (p *publisher) Publish(ctx context.Context, msg wire.Echo) error {
	if p.closed.Load() {
		return transport.ErrClosed
	}
	if err := p.participant.broker.publish(ctx, p.topic, msg); err != nil {
		p.participant.metrics.IncrementErrors()
		return err
	}
	p.participant.metrics.IncrementSent(int64(msg.Size()))
	return nil
}

func (p *publisher) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		p.participant.broker.removePublisher(p.topic)
	}
	return nil
}

type event struct {
	msg     wire.Echo
	match   transport.MatchStatus
	control bool
}

type subscriber struct {
	*transport.Queue
	participant *Participant
	topic       string
	inbox       chan event
}

func (s *subscriber) post(ev event) {
	_ = s.send(context.Background(), ev)
}

func (s *subscriber) send(ctx context.Context, ev event) error {
	select {
	case s.inbox <- ev:
		return nil
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *subscriber) deliver() {
	for {
		select {
		case <-s.Done():
			return
		case ev := <-s.inbox:
			if ev.control {
				s.Match(ev.match)
				continue
			}
			s.participant.metrics.IncrementReceived(int64(ev.msg.Size()))
			s.Deliver(s, ev.msg)
		}
	}
}

func (s *subscriber) stop(err error) {
	s.participant.broker.removeSubscriber(s.topic, s)
	s.Stop(err)
}

func (s *subscriber) Close() error {
	s.stop(nil)
	return nil
}
