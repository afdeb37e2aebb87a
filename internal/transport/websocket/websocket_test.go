package websocket_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/echobench/internal/relay"
	"github.com/torosent/echobench/internal/transport"
	"github.com/torosent/echobench/internal/transport/websocket"
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

func (r *recorder) lastMatch() (transport.MatchStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.matches) == 0 {
		return 0, false
	}
	return r.matches[len(r.matches)-1], true
}

func waitForMatch(t *testing.T, r *recorder, want transport.MatchStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if got, ok := r.lastMatch(); ok && got == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("no %s notification before deadline", want)
		}
		time.Sleep(time.Millisecond)
	}
}

func startRelay(t *testing.T) (*relay.Hub, string) {
	t.Helper()
	hub := relay.NewHub(0)
	srv := httptest.NewServer(relay.NewWebSocketHandler(hub))
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"http://localhost:8080", "ws://", "ws:///", "wss://", " ws:// ", "ws://%zz", ""} {
		if _, err := websocket.New(websocket.Config{URL: raw}); err == nil {
			t.Errorf("New(%q) should fail", raw)
		}
	}
	for _, raw := range []string{"localhost:8080", "ws://localhost:8080/", "wss://relay.example/base/"} {
		if _, err := websocket.New(websocket.Config{URL: raw}); err != nil {
			t.Errorf("New(%q) error = %v", raw, err)
		}
	}
}

func TestRoundTripThroughRelay(t *testing.T) {
	_, url := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// A trailing slash on the base URL must not end up in the endpoint paths.
	p, err := websocket.New(websocket.Config{URL: url + "/"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Close()

	rec := newRecorder()
	sub, err := p.NewSubscriber(ctx, "down", rec)
	if err != nil {
		t.Fatalf("NewSubscriber() error = %v", err)
	}
	pub, err := p.NewPublisher(ctx, "down")
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	waitForMatch(t, rec, transport.Matched)

	for seq := uint32(1); seq <= 3; seq++ {
		msg := wire.NewEcho(128)
		msg.Seq = seq
		if err := pub.Publish(ctx, msg); err != nil {
			t.Fatalf("Publish(%d) error = %v", seq, err)
		}
	}
	for seq := uint32(1); seq <= 3; seq++ {
		select {
		case got := <-rec.data:
			want := wire.NewEcho(128)
			want.Seq = seq
			if !got.Equal(want) {
				t.Fatalf("message %d = seq %d, payload %d bytes", seq, got.Seq, len(got.Payload))
			}
		case <-ctx.Done():
			t.Fatalf("message %d not delivered", seq)
		}
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("publisher Close() error = %v", err)
	}
	waitForMatch(t, rec, transport.Unmatched)

	m := p.Metrics()
	if m.MessagesSent != 3 || m.MessagesReceived != 3 {
		t.Errorf("metrics = %+v, want 3 sent and 3 received", m)
	}
	if err := sub.Close(); err != nil {
		t.Errorf("subscriber Close() error = %v", err)
	}
	select {
	case <-sub.Done():
	default:
		t.Error("Done should be closed after Close")
	}
}

func TestSubscriberSeesRelayShutdown(t *testing.T) {
	hub, url := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := websocket.New(websocket.Config{URL: url})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Close()

	sub, err := p.NewSubscriber(ctx, "down", newRecorder())
	if err != nil {
		t.Fatalf("NewSubscriber() error = %v", err)
	}
	hub.Shutdown()

	if err := sub.WaitForData(ctx); !errors.Is(err, transport.ErrDisconnected) {
		t.Fatalf("WaitForData() = %v, want ErrDisconnected", err)
	}
	if p.Metrics().Disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", p.Metrics().Disconnects)
	}
}

func TestClosedParticipantRefusesEndpoints(t *testing.T) {
	_, url := startRelay(t)
	p, err := websocket.New(websocket.Config{URL: url})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_ = p.Close()
	if _, err := p.NewPublisher(context.Background(), "up"); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("NewPublisher() after Close = %v, want ErrClosed", err)
	}
}
