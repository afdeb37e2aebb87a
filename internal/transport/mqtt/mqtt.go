// Package mqtt runs the benchmark over an MQTT 3.1.1 broker with the Eclipse
// Paho client. Echo messages travel as raw wire encodings; there is no relay
// framing. A subscriber counts as matched once the broker acknowledges its
// SUBSCRIBE and as unmatched when the connection drops.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/torosent/echobench/internal/clientmetrics"
	"github.com/torosent/echobench/internal/logging"
	"github.com/torosent/echobench/internal/transport"
	"github.com/torosent/echobench/internal/wire"
)

const (
	DefaultKeepAlive      = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	disconnectQuiesce     = 250 // milliseconds
	unsubscribeWait       = 5 * time.Second
	inboxSize             = 1024
)

var ErrTopic = errors.New("mqtt: invalid topic")

// Config configures the MQTT participant.
type Config struct {
	Broker         string // tcp://host:1883, ssl://..., ws://...
	ClientID       string // default echobench-<random>
	Username       string
	Password       string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
}

// ClientID returns a fresh client identifier short enough for every MQTT 3.1 broker.
func ClientID() string {
	return "echobench-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// ClientOptions builds the Paho options for cfg. Sessions are clean and
// reconnects are off so that a dropped link ends the benchmark.
func ClientOptions(cfg Config, onLost func(error)) *paho.ClientOptions {
	if cfg.ClientID == "" {
		cfg.ClientID = ClientID()
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(false)
	opts.SetOrderMatters(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if onLost != nil {
		opts.OnConnectionLost = func(_ paho.Client, err error) { onLost(err) }
	}
	return opts
}

// Participant shares one broker connection between its endpoints.
type Participant struct {
	client    paho.Client
	qos       byte
	metrics   *clientmetrics.ClientMetrics
	endpoints transport.Endpoints

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// Connect dials the broker and waits for CONNACK or ctx.
func Connect(ctx context.Context, cfg Config) (*Participant, error) {
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt: qos must be 0, 1 or 2, got %d", cfg.QoS)
	}
	p := newParticipant(cfg.QoS)
	client := paho.NewClient(ClientOptions(cfg, p.connectionLost))
	if err := wait(ctx, client.Connect()); err != nil {
		p.metrics.IncrementErrors()
		return nil, fmt.Errorf("mqtt: connect %s: %w", cfg.Broker, err)
	}
	p.client = client
	p.metrics.MarkConnected()
	logging.Debugf("mqtt: connected to %s", cfg.Broker)
	return p, nil
}

func newParticipant(qos byte) *Participant {
	return &Participant{
		qos:     qos,
		metrics: clientmetrics.New(),
		subs:    make(map[*subscriber]struct{}),
	}
}

func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func checkTopic(topic string) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", ErrTopic, topic)
	}
	return nil
}

// Metrics returns counters for the connection.
func (p *Participant) Metrics() clientmetrics.Snapshot {
	return p.metrics.Snapshot()
}

func (p *Participant) NewPublisher(_ context.Context, topic string) (transport.Publisher, error) {
	if err := checkTopic(topic); err != nil {
		return nil, err
	}
	pub := &publisher{participant: p, topic: topic}
	if err := p.endpoints.Track(pub.Close); err != nil {
		return nil, err
	}
	return pub, nil
}

func (p *Participant) NewSubscriber(ctx context.Context, topic string, l transport.Listener) (transport.Subscriber, error) {
	if err := checkTopic(topic); err != nil {
		return nil, err
	}
	s := &subscriber{
		Queue:       transport.NewQueue(l),
		participant: p,
		topic:       topic,
		inbox:       make(chan event, inboxSize),
	}
	if err := p.endpoints.Track(s.Close); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.subs[s] = struct{}{}
	p.mu.Unlock()
	go s.deliver()

	if err := wait(ctx, p.client.Subscribe(topic, p.qos, s.onMessage)); err != nil {
		p.metrics.IncrementErrors()
		s.stop(err)
		return nil, fmt.Errorf("mqtt: subscribe %q: %w", topic, err)
	}
	s.post(event{match: transport.Matched, control: true})
	return s, nil
}

// connectionLost runs on Paho's goroutine when the link drops.
func (p *Participant) connectionLost(err error) {
	p.metrics.MarkDisconnected()
	logging.Warnf("mqtt: connection lost: %v", err)

	p.mu.Lock()
	subs := make([]*subscriber, 0, len(p.subs))
	for s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.Unlock()
	for _, s := range subs {
		s.post(event{lost: fmt.Errorf("%w: %v", transport.ErrDisconnected, err)})
	}
}

// Close unsubscribes every subscriber and disconnects.
func (p *Participant) Close() error {
	err := p.endpoints.Close()
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesce)
	}
	return err
}

type publisher struct {
	participant *Participant
	topic       string
	mu          sync.Mutex
	closed      bool
}

func (p *publisher) Publish(ctx context.Context, msg wire.Echo) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}

	buf, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	m := p.participant.metrics
	if err := wait(ctx, p.participant.client.Publish(p.topic, p.participant.qos, false, buf)); err != nil {
		m.IncrementErrors()
		return fmt.Errorf("mqtt: publish %q: %w", p.topic, err)
	}
	m.IncrementSent(int64(len(buf)))
	return nil
}

func (p *publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

type event struct {
	msg     wire.Echo
	match   transport.MatchStatus
	control bool
	lost    error
}

type subscriber struct {
	*transport.Queue
	participant *Participant
	topic       string
	inbox       chan event
}

// onMessage runs on Paho's router goroutine.
func (s *subscriber) onMessage(_ paho.Client, m paho.Message) {
	msg, err := wire.Decode(m.Payload())
	if err != nil {
		s.participant.metrics.IncrementErrors()
		logging.Warnf("mqtt: dropping message on %q: %v", s.topic, err)
		return
	}
	s.participant.metrics.IncrementReceived(int64(len(m.Payload())))
	s.post(event{msg: msg})
}

func (s *subscriber) post(ev event) {
	select {
	case s.inbox <- ev:
	case <-s.Done():
	}
}

// deliver is the subscriber's delivery goroutine.
func (s *subscriber) deliver() {
	for {
		select {
		case <-s.Done():
			return
		case ev := <-s.inbox:
			switch {
			case ev.lost != nil:
				s.Match(transport.Unmatched)
				s.stop(ev.lost)
				return
			case ev.control:
				s.Match(ev.match)
			default:
				s.Deliver(s, ev.msg)
			}
		}
	}
}

func (s *subscriber) stop(err error) {
	s.participant.mu.Lock()
	delete(s.participant.subs, s)
	s.participant.mu.Unlock()
	s.Stop(err)
}

func (s *subscriber) Close() error {
	select {
	case <-s.Done():
		return nil
	default:
	}
	var err error
	if c := s.participant.client; c != nil && c.IsConnected() {
		ctx, cancel := context.WithTimeout(context.Background(), unsubscribeWait)
		err = wait(ctx, c.Unsubscribe(s.topic))
		cancel()
	}
	s.stop(nil)
	return err
}
