package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/torosent/echobench/internal/transport"
	"github.com/torosent/echobench/internal/wire"
)

type recorder struct {
	mu      sync.Mutex
	matches []transport.MatchStatus
	data    chan wire.Echo
}

func newRecorder() *recorder {
	return &recorder{data: make(chan wire.Echo, 16)}
}

func (r *recorder) OnMatch(s transport.MatchStatus) {
	r.mu.Lock()
	r.matches = append(r.matches, s)
	r.mu.Unlock()
}

func (r *recorder) OnData(sub transport.Subscriber) {
	if msg, ok := sub.TakeNext(); ok {
		r.data <- msg
	}
}

func (r *recorder) matchLog() []transport.MatchStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transport.MatchStatus(nil), r.matches...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPublishSubscribeInOrder(t *testing.T) {
	ctx := context.Background()
	b := NewBroker()
	p := b.Participant()
	defer p.Close()

	rec := newRecorder()
	if _, err := p.NewSubscriber(ctx, "down", rec); err != nil {
		t.Fatalf("NewSubscriber: %v", err)
	}
	pub, err := p.NewPublisher(ctx, "down")
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	for i := uint32(1); i <= 5; i++ {
		if err := pub.Publish(ctx, wire.Echo{Seq: i, Payload: []byte{byte(i)}}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	for i := uint32(1); i <= 5; i++ {
		select {
		case msg := <-rec.data:
			if msg.Seq != i {
				t.Fatalf("expected seq %d, got %d", i, msg.Seq)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for seq %d", i)
		}
	}
	if s := p.Metrics(); s.MessagesSent != 5 || s.MessagesReceived != 5 {
		t.Fatalf("unexpected metrics %+v", s)
	}
}

func TestMatchNotifications(t *testing.T) {
	ctx := context.Background()
	b := NewBroker()
	p := b.Participant()
	defer p.Close()

	rec := newRecorder()
	if _, err := p.NewSubscriber(ctx, "t", rec); err != nil {
		t.Fatal(err)
	}
	pub, err := p.NewPublisher(ctx, "t")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(rec.matchLog()) == 1 })
	_ = pub.Close()
	waitFor(t, func() bool { return len(rec.matchLog()) == 2 })

	got := rec.matchLog()
	if got[0] != transport.Matched || got[1] != transport.Unmatched {
		t.Fatalf("unexpected match sequence %v", got)
	}
	if err := pub.Publish(ctx, wire.Echo{}); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("publish after close: %v", err)
	}
}

func TestSubscriberAfterPublisherIsMatched(t *testing.T) {
	ctx := context.Background()
	b := NewBroker()
	p := b.Participant()
	defer p.Close()

	if _, err := p.NewPublisher(ctx, "t"); err != nil {
		t.Fatal(err)
	}
	rec := newRecorder()
	if _, err := p.NewSubscriber(ctx, "t", rec); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(rec.matchLog()) == 1 })
}

func TestInterceptAndDisconnect(t *testing.T) {
	ctx := context.Background()
	b := NewBroker()
	p := b.Participant()
	defer p.Close()

	rec := newRecorder()
	sub, err := p.NewSubscriber(ctx, "t", rec)
	if err != nil {
		t.Fatal(err)
	}
	pub, _ := p.NewPublisher(ctx, "t")

	b.Intercept(func(_ string, msg wire.Echo) (wire.Echo, bool) {
		if msg.Seq == 2 {
			return msg, false
		}
		msg.Seq += 100
		return msg, true
	})
	_ = pub.Publish(ctx, wire.Echo{Seq: 1})
	_ = pub.Publish(ctx, wire.Echo{Seq: 2})
	_ = pub.Publish(ctx, wire.Echo{Seq: 3})

	for _, want := range []uint32{101, 103} {
		select {
		case msg := <-rec.data:
			if msg.Seq != want {
				t.Fatalf("expected %d, got %d", want, msg.Seq)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
	}

	b.Disconnect("t")
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscriber should stop on disconnect")
	}
	if err := sub.WaitForData(ctx); !errors.Is(err, transport.ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
}

func TestParticipantCloseRejectsNewEndpoints(t *testing.T) {
	p := NewBroker().Participant()
	_ = p.Close()
	if _, err := p.NewPublisher(context.Background(), "t"); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
