// Package websocket connects to an echobench relay over WebSocket. Each
// publisher and subscriber owns one connection carrying binary relay frames.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/torosent/echobench/internal/clientmetrics"
	"github.com/torosent/echobench/internal/logging"
	"github.com/torosent/echobench/internal/tracing"
	"github.com/torosent/echobench/internal/transport"
	"github.com/torosent/echobench/internal/wire"
)

const closeWait = 5 * time.Second

// Config configures the WebSocket participant.
type Config struct {
	URL              string // relay base URL, e.g. ws://localhost:8080
	Headers          http.Header
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
	Propagate        bool // inject trace context into handshake headers
}

// Participant dials one connection per endpoint.
type Participant struct {
	base      string
	cfg       Config
	dialer    *websocket.Dialer
	metrics   *clientmetrics.ClientMetrics
	endpoints transport.Endpoints
}

// New validates the relay URL. No connection is made until an endpoint is created.
func New(cfg Config) (*Participant, error) {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = wire.MaxPayload + 64
	}

	raw := strings.TrimSpace(cfg.URL)
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("websocket: relay url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("websocket: relay url scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("websocket: relay url %q has no host", cfg.URL)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = strings.TrimRight(u.RawPath, "/")
	base := u.String()

	return &Participant{
		base: base,
		cfg:  cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
		metrics: clientmetrics.New(),
	}, nil
}

// Metrics returns counters across every connection of the participant.
func (p *Participant) Metrics() clientmetrics.Snapshot {
	return p.metrics.Snapshot()
}

func (p *Participant) dial(ctx context.Context, role, topic string) (*websocket.Conn, error) {
	headers := p.cfg.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	if p.cfg.Propagate {
		tracing.InjectHTTPHeaders(ctx, headers)
	}

	target := p.base + "/" + role + "/" + url.PathEscape(topic)
	conn, resp, err := p.dialer.DialContext(ctx, target, headers)
	if err != nil {
		p.metrics.IncrementErrors()
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s failed with status %d: %w", target, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial %s failed: %w", target, err)
	}
	conn.SetReadLimit(p.cfg.MaxMessageSize)
	p.metrics.MarkConnected()
	logging.Debugf("websocket: connected %s", target)
	return conn, nil
}

func (p *Participant) NewPublisher(ctx context.Context, topic string) (transport.Publisher, error) {
	if p.endpoints.Closed() {
		return nil, transport.ErrClosed
	}
	conn, err := p.dial(ctx, "pub", topic)
	if err != nil {
		return nil, err
	}
	pub := &publisher{conn: conn, metrics: p.metrics}
	if err := p.endpoints.Track(pub.Close); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return pub, nil
}

func (p *Participant) NewSubscriber(ctx context.Context, topic string, l transport.Listener) (transport.Subscriber, error) {
	if p.endpoints.Closed() {
		return nil, transport.ErrClosed
	}
	conn, err := p.dial(ctx, "sub", topic)
	if err != nil {
		return nil, err
	}
	s := &subscriber{
		Queue:   transport.NewQueue(l),
		conn:    conn,
		topic:   topic,
		metrics: p.metrics,
	}
	if err := p.endpoints.Track(s.Close); err != nil {
		_ = conn.Close()
		return nil, err
	}
	go s.readLoop()
	return s, nil
}

func (p *Participant) Close() error {
	return p.endpoints.Close()
}

type publisher struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	metrics *clientmetrics.ClientMetrics
	closed  bool
}

func (p *publisher) Publish(ctx context.Context, msg wire.Echo) error {
	frame, err := wire.DataFrame(msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return transport.ErrClosed
	}
	deadline, _ := ctx.Deadline()
	_ = p.conn.SetWriteDeadline(deadline)
	if err := p.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		p.metrics.IncrementErrors()
		return fmt.Errorf("write message: %w", err)
	}
	p.metrics.IncrementSent(int64(len(frame)))
	return nil
}

func (p *publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return closeConn(p.conn)
}

type subscriber struct {
	*transport.Queue
	conn    *websocket.Conn
	topic   string
	metrics *clientmetrics.ClientMetrics
	closing atomic.Bool
}

// readLoop is the subscriber's delivery goroutine.
func (s *subscriber) readLoop() {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(err)
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		kind, msg, err := wire.ParseFrame(data)
		if err != nil {
			s.metrics.IncrementErrors()
			logging.Warnf("websocket: dropping frame on %q: %v", s.topic, err)
			continue
		}
		switch kind {
		case wire.FrameMatched:
			s.Match(transport.Matched)
		case wire.FrameUnmatched:
			s.Match(transport.Unmatched)
		case wire.FrameData:
			s.metrics.IncrementReceived(int64(len(data)))
			s.Deliver(s, msg)
		}
	}
}

func (s *subscriber) finish(err error) {
	if s.closing.Load() {
		s.Stop(nil)
		return
	}
	s.metrics.MarkDisconnected()
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		logging.Warnf("websocket: relay closed subscription on %q: %s", s.topic, ce.Text)
	} else {
		logging.Warnf("websocket: subscription on %q lost: %v", s.topic, err)
	}
	s.Stop(fmt.Errorf("%w: %v", transport.ErrDisconnected, err))
}

func (s *subscriber) Close() error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	err := closeConn(s.conn)
	<-s.Done()
	return err
}

func closeConn(conn *websocket.Conn) error {
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeWait),
	)
	if closeErr := conn.Close(); err == nil {
		err = closeErr
	}
	if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
