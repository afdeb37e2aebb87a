// Package responder implements the echo side of a benchmark: every message read
// from the request topic is published unchanged on the reply topic.
package responder

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/torosent/echobench/internal/logging"
	"github.com/torosent/echobench/internal/transport"
)

// Options configure a Responder.
type Options struct {
	Participant  transport.Participant
	RequestTopic string // default LatencyUp
	ReplyTopic   string // default LatencyDown
}

func (o *Options) normalize() {
	if o.RequestTopic == "" {
		o.RequestTopic = transport.DefaultOutboundTopic
	}
	if o.ReplyTopic == "" {
		o.ReplyTopic = transport.DefaultInboundTopic
	}
}

type Responder struct {
	opt    Options
	echoed atomic.Int64
	ready  chan struct{}
}

func New(opt Options) *Responder {
	opt.normalize()
	return &Responder{opt: opt, ready: make(chan struct{})}
}

// Ready is closed once both endpoints exist.
func (r *Responder) Ready() <-chan struct{} {
	return r.ready
}

// Echoed returns the number of messages sent back so far.
func (r *Responder) Echoed() int64 {
	return r.echoed.Load()
}

// Run echoes until ctx is cancelled, which is not an error.
func (r *Responder) Run(ctx context.Context) error {
	if r.opt.Participant == nil {
		return errors.New("responder: participant is required")
	}

	listener := transport.ListenerFuncs{
		Match: func(s transport.MatchStatus) {
			logging.Infof("responder request topic %q %s", r.opt.RequestTopic, s)
		},
	}
	sub, err := r.opt.Participant.NewSubscriber(ctx, r.opt.RequestTopic, listener)
	if err != nil {
		return fmt.Errorf("subscribe %q: %w", r.opt.RequestTopic, err)
	}
	defer sub.Close()

	pub, err := r.opt.Participant.NewPublisher(ctx, r.opt.ReplyTopic)
	if err != nil {
		return fmt.Errorf("publisher %q: %w", r.opt.ReplyTopic, err)
	}
	defer pub.Close()
	close(r.ready)

	for {
		if err := sub.WaitForData(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for request: %w", err)
		}
		for {
			msg, ok := sub.TakeNext()
			if !ok {
				break
			}
			if err := pub.Publish(ctx, msg); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("echo seq %d: %w", msg.Seq, err)
			}
			r.echoed.Add(1)
		}
	}
}
