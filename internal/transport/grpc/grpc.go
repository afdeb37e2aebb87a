// Package grpc connects to an echobench relay over gRPC streams. A publisher
// is one Publish client stream and a subscriber one Subscribe server stream;
// both carry relay frames in wrapperspb.BytesValue messages.
package grpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/torosent/echobench/internal/clientmetrics"
	"github.com/torosent/echobench/internal/logging"
	"github.com/torosent/echobench/internal/relay"
	"github.com/torosent/echobench/internal/tracing"
	"github.com/torosent/echobench/internal/transport"
	"github.com/torosent/echobench/internal/wire"
)

const closeWait = 5 * time.Second

var (
	publishDesc   = grpc.StreamDesc{StreamName: "Publish", ClientStreams: true}
	subscribeDesc = grpc.StreamDesc{StreamName: "Subscribe", ServerStreams: true}
)

// Config holds configuration for the gRPC participant.
type Config struct {
	Target    string
	UseTLS    bool
	Insecure  bool // with UseTLS, skip certificate verification
	Propagate bool // inject trace context into stream metadata
	Options   []grpc.DialOption
}

// Participant shares one client connection between its streams.
type Participant struct {
	conn      *grpc.ClientConn
	metrics   *clientmetrics.ClientMetrics
	propagate bool
	endpoints transport.Endpoints
}

// Dial creates the client connection. grpc.NewClient does not connect until the first stream.
func Dial(cfg Config) (*Participant, error) {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(transportCredentials(cfg))}
	opts = append(opts, cfg.Options...)
	conn, err := grpc.NewClient(cfg.Target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc: new client for %s: %w", cfg.Target, err)
	}
	m := clientmetrics.New()
	m.MarkConnected()
	return &Participant{conn: conn, metrics: m, propagate: cfg.Propagate}, nil
}

func transportCredentials(cfg Config) credentials.TransportCredentials {
	if !cfg.UseTLS {
		return insecure.NewCredentials()
	}
	if cfg.Insecure {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true})
	}
	return credentials.NewClientTLSFromCert(nil, "")
}

// Metrics returns counters across every stream of the participant.
func (p *Participant) Metrics() clientmetrics.Snapshot {
	return p.metrics.Snapshot()
}

// openStream starts a stream that outlives ctx, which only bounds setup.
// setup runs before the server's header is awaited.
func (p *Participant) openStream(ctx context.Context, desc *grpc.StreamDesc, method, topic string, setup func(grpc.ClientStream) error) (grpc.ClientStream, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	md := metadata.Pairs(relay.TopicMetadataKey, topic)
	if p.propagate {
		tracing.InjectGRPCMetadata(ctx, md)
	}
	sctx, cancel := context.WithCancel(metadata.NewOutgoingContext(context.Background(), md))
	stop := context.AfterFunc(ctx, cancel)

	stream, err := p.conn.NewStream(sctx, desc, method)
	if err == nil && setup != nil {
		err = setup(stream)
	}
	if err == nil {
		_, err = stream.Header()
	}
	if !stop() {
		cancel()
		return nil, nil, ctx.Err()
	}
	if err != nil {
		cancel()
		p.metrics.IncrementErrors()
		return nil, nil, fmt.Errorf("grpc: open %s for %q: %w", method, topic, err)
	}
	return stream, cancel, nil
}

func (p *Participant) NewPublisher(ctx context.Context, topic string) (transport.Publisher, error) {
	if p.endpoints.Closed() {
		return nil, transport.ErrClosed
	}
	stream, cancel, err := p.openStream(ctx, &publishDesc, relay.PublishMethod, topic, nil)
	if err != nil {
		return nil, err
	}
	pub := &publisher{stream: stream, cancel: cancel, metrics: p.metrics}
	if err := p.endpoints.Track(pub.Close); err != nil {
		cancel()
		return nil, err
	}
	return pub, nil
}

func (p *Participant) NewSubscriber(ctx context.Context, topic string, l transport.Listener) (transport.Subscriber, error) {
	if p.endpoints.Closed() {
		return nil, transport.ErrClosed
	}
	stream, cancel, err := p.openStream(ctx, &subscribeDesc, relay.SubscribeMethod, topic, func(cs grpc.ClientStream) error {
		if err := cs.SendMsg(&emptypb.Empty{}); err != nil {
			return err
		}
		return cs.CloseSend()
	})
	if err != nil {
		return nil, err
	}
	s := &subscriber{
		Queue:   transport.NewQueue(l),
		stream:  stream,
		cancel:  cancel,
		topic:   topic,
		metrics: p.metrics,
	}
	if err := p.endpoints.Track(s.Close); err != nil {
		cancel()
		return nil, err
	}
	go s.recvLoop()
	return s, nil
}

// Close closes every stream and then the connection.
func (p *Participant) Close() error {
	err := p.endpoints.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil && status.Code(cerr) != codes.Canceled {
			err = cerr
		}
		p.conn = nil
	}
	return err
}

type publisher struct {
	mu      sync.Mutex
	stream  grpc.ClientStream
	cancel  context.CancelFunc
	metrics *clientmetrics.ClientMetrics
	closed  bool
}

func (p *publisher) Publish(ctx context.Context, msg wire.Echo) error {
	frame, err := wire.DataFrame(msg)
	if err != nil {
		return err
	}
	req := wrapperspb.Bytes(frame)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.stream.SendMsg(req); err != nil {
		p.metrics.IncrementErrors()
		return fmt.Errorf("grpc publish: %w", err)
	}
	p.metrics.IncrementSent(int64(proto.Size(req)))
	return nil
}

// Close half-closes the stream and waits briefly for the relay's acknowledgement.
func (p *publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	timer := time.AfterFunc(closeWait, p.cancel)
	defer timer.Stop()
	defer p.cancel()

	if err := p.stream.CloseSend(); err != nil {
		return err
	}
	var ack emptypb.Empty
	if err := p.stream.RecvMsg(&ack); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("grpc publish close: %w", err)
	}
	return nil
}

type subscriber struct {
	*transport.Queue
	stream  grpc.ClientStream
	cancel  context.CancelFunc
	topic   string
	metrics *clientmetrics.ClientMetrics
	closing atomic.Bool
}

// recvLoop is the subscriber's delivery goroutine.
func (s *subscriber) recvLoop() {
	for {
		var frame wrapperspb.BytesValue
		if err := s.stream.RecvMsg(&frame); err != nil {
			s.finish(err)
			return
		}

		kind, msg, err := wire.ParseFrame(frame.GetValue())
		if err != nil {
			s.metrics.IncrementErrors()
			logging.Warnf("grpc: dropping frame on %q: %v", s.topic, err)
			continue
		}
		switch kind {
		case wire.FrameMatched:
			s.Match(transport.Matched)
		case wire.FrameUnmatched:
			s.Match(transport.Unmatched)
		case wire.FrameData:
			s.metrics.IncrementReceived(int64(proto.Size(&frame)))
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
	logging.Warnf("grpc: subscription on %q lost: %v", s.topic, status.Convert(err).Message())
	s.Stop(fmt.Errorf("%w: %v", transport.ErrDisconnected, err))
}

func (s *subscriber) Close() error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	<-s.Done()
	return nil
}
