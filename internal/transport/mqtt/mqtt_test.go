package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/torosent/echobench/internal/transport"
	"github.com/torosent/echobench/internal/wire"
)

type doneToken struct {
	done chan struct{}
	err  error
}

func newToken(err error) *doneToken {
	t := &doneToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 0 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 0 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

// fakeBroker is a loopback paho.Client. Methods the transport does not use panic.
type fakeBroker struct {
	paho.Client

	mu           sync.Mutex
	connected    bool
	handlers     map[string]paho.MessageHandler
	subscribeErr error
	qos          []byte
	unsubscribed []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{connected: true, handlers: make(map[string]paho.MessageHandler)}
}

func (f *fakeBroker) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeBroker) Disconnect(uint) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeBroker) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	f.mu.Lock()
	f.qos = append(f.qos, qos)
	h := f.handlers[topic]
	f.mu.Unlock()
	if h != nil {
		h(f, message{topic: topic, payload: payload.([]byte)})
	}
	return newToken(nil)
}

func (f *fakeBroker) Subscribe(topic string, _ byte, h paho.MessageHandler) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return newToken(f.subscribeErr)
	}
	f.handlers[topic] = h
	return newToken(nil)
}

func (f *fakeBroker) Unsubscribe(topics ...string) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		delete(f.handlers, t)
		f.unsubscribed = append(f.unsubscribed, t)
	}
	return newToken(nil)
}

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

func testParticipant(qos byte) (*Participant, *fakeBroker) {
	broker := newFakeBroker()
	p := newParticipant(qos)
	p.client = broker
	return p, broker
}

func TestClientOptions(t *testing.T) {
	opts := ClientOptions(Config{Broker: "tcp://broker:1883", Username: "bench", Password: "secret"}, nil)
	r := paho.NewOptionsReader(opts)

	if len(r.Servers()) != 1 || r.Servers()[0].Host != "broker:1883" {
		t.Errorf("servers = %v", r.Servers())
	}
	if id := r.ClientID(); len(id) == 0 || len(id) > 23 {
		t.Errorf("client id %q must be 1..23 characters", id)
	}
	if !r.CleanSession() || r.AutoReconnect() {
		t.Error("sessions must be clean without auto reconnect")
	}
	if r.KeepAlive() != DefaultKeepAlive {
		t.Errorf("keep alive = %s, want %s", r.KeepAlive(), DefaultKeepAlive)
	}
	if r.Username() != "bench" || r.Password() != "secret" {
		t.Error("credentials not applied")
	}
}

func TestClientIDsAreUnique(t *testing.T) {
	if ClientID() == ClientID() {
		t.Fatal("client IDs must differ")
	}
}

func TestRoundTripAndMatch(t *testing.T) {
	ctx := context.Background()
	p, broker := testParticipant(1)
	defer p.Close()

	rec := newRecorder()
	sub, err := p.NewSubscriber(ctx, "LatencyDown", rec)
	if err != nil {
		t.Fatalf("NewSubscriber() error = %v", err)
	}
	waitFor(t, func() bool { return len(rec.matchLog()) == 1 })
	if rec.matchLog()[0] != transport.Matched {
		t.Fatalf("first notification = %s, want matched", rec.matchLog()[0])
	}

	pub, err := p.NewPublisher(ctx, "LatencyDown")
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	msg := wire.NewEcho(32)
	msg.Seq = 9
	if err := pub.Publish(ctx, msg); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	select {
	case got := <-rec.data:
		if !got.Equal(msg) {
			t.Fatalf("received %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	if broker.qos[0] != 1 {
		t.Errorf("published with qos %d, want 1", broker.qos[0])
	}

	m := p.Metrics()
	if m.MessagesSent != 1 || m.MessagesReceived != 1 || m.BytesSent != int64(msg.Size()) {
		t.Errorf("metrics = %+v", m)
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(broker.unsubscribed) != 1 || broker.unsubscribed[0] != "LatencyDown" {
		t.Errorf("unsubscribed = %v", broker.unsubscribed)
	}
}

func TestConnectionLostUnmatchesAndStops(t *testing.T) {
	ctx := context.Background()
	p, _ := testParticipant(0)
	defer p.Close()

	rec := newRecorder()
	sub, err := p.NewSubscriber(ctx, "down", rec)
	if err != nil {
		t.Fatalf("NewSubscriber() error = %v", err)
	}
	p.connectionLost(errors.New("EOF"))

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscriber should stop on connection loss")
	}
	if err := sub.WaitForData(ctx); !errors.Is(err, transport.ErrDisconnected) {
		t.Fatalf("WaitForData() = %v, want ErrDisconnected", err)
	}
	log := rec.matchLog()
	if len(log) != 2 || log[1] != transport.Unmatched {
		t.Fatalf("notifications = %v, want [matched unmatched]", log)
	}
	if p.Metrics().Disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", p.Metrics().Disconnects)
	}
}

func TestCorruptPayloadIsDropped(t *testing.T) {
	p, broker := testParticipant(0)
	defer p.Close()

	rec := newRecorder()
	if _, err := p.NewSubscriber(context.Background(), "down", rec); err != nil {
		t.Fatalf("NewSubscriber() error = %v", err)
	}
	broker.Publish("down", 0, false, []byte{1, 2, 3})

	if got := p.Metrics(); got.Errors != 1 || got.MessagesReceived != 0 {
		t.Errorf("metrics = %+v, want one error and nothing received", got)
	}
}

func TestSubscribeFailure(t *testing.T) {
	p, broker := testParticipant(0)
	defer p.Close()
	broker.subscribeErr = errors.New("not authorized")

	if _, err := p.NewSubscriber(context.Background(), "down", newRecorder()); err == nil {
		t.Fatal("NewSubscriber() should fail when SUBACK reports an error")
	}
	if len(p.subs) != 0 {
		t.Error("failed subscriber should be forgotten")
	}
}

func TestTopicValidation(t *testing.T) {
	p, _ := testParticipant(0)
	defer p.Close()
	for _, topic := range []string{"", "a/+/b", "a/#"} {
		if _, err := p.NewPublisher(context.Background(), topic); !errors.Is(err, ErrTopic) {
			t.Errorf("NewPublisher(%q) = %v, want ErrTopic", topic, err)
		}
	}
}

func TestConnectRejectsQoS(t *testing.T) {
	if _, err := Connect(context.Background(), Config{Broker: "tcp://127.0.0.1:1", QoS: 3}); err == nil {
		t.Fatal("qos 3 should be rejected")
	}
}
