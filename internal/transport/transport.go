// Package transport defines the pub/sub contract the harness drives, plus the
// received-message queue shared by the adapters in its subpackages.
package transport

import (
	"context"
	"errors"

	"github.com/torosent/echobench/internal/wire"
)

var (
	ErrClosed       = errors.New("transport: closed")
	ErrDisconnected = errors.New("transport: disconnected")
)

const (
	// DefaultOutboundTopic carries requests from the harness to the responder.
	DefaultOutboundTopic = "LatencyUp"
	// DefaultInboundTopic carries echoes from the responder back to the harness.
	DefaultInboundTopic = "LatencyDown"
)

// MatchStatus is the state reported by a match notification.
type MatchStatus int

const (
	Unmatched MatchStatus = iota
	Matched
)

func (s MatchStatus) String() string {
	if s == Matched {
		return "matched"
	}
	return "unmatched"
}

// Listener receives asynchronous notifications for one subscriber. Calls are made
// from the transport's delivery goroutine, one at a time, in arrival order.
type Listener interface {
	OnMatch(status MatchStatus)
	OnData(sub Subscriber)
}

// Participant creates endpoints on one connection to the messaging system.
type Participant interface {
	NewPublisher(ctx context.Context, topic string) (Publisher, error)
	NewSubscriber(ctx context.Context, topic string, l Listener) (Subscriber, error)
	Close() error
}

// Publisher sends messages on one topic.
type Publisher interface {
	Publish(ctx context.Context, msg wire.Echo) error
	Close() error
}

// Subscriber buffers messages received on one topic until they are taken.
type Subscriber interface {
	// WaitForData blocks until at least one message is buffered.
	WaitForData(ctx context.Context) error
	// TakeNext removes and returns the oldest buffered message.
	TakeNext() (wire.Echo, bool)
	Pending() int
	// Done is closed when the subscription stops delivering.
	Done() <-chan struct{}
	Close() error
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are ignored.
type ListenerFuncs struct {
	Match func(MatchStatus)
	Data  func(Subscriber)
}

func (l ListenerFuncs) OnMatch(status MatchStatus) {
	if l.Match != nil {
		l.Match(status)
	}
}

func (l ListenerFuncs) OnData(sub Subscriber) {
	if l.Data != nil {
		l.Data(sub)
	}
}
