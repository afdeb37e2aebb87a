package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/torosent/echobench/internal/clientmetrics"
	"github.com/torosent/echobench/internal/config"
	"github.com/torosent/echobench/internal/logging"
	"github.com/torosent/echobench/internal/responder"
	"github.com/torosent/echobench/internal/transport"
	grpctransport "github.com/torosent/echobench/internal/transport/grpc"
	"github.com/torosent/echobench/internal/transport/memory"
	"github.com/torosent/echobench/internal/transport/mqtt"
	"github.com/torosent/echobench/internal/transport/websocket"
)

// metered is implemented by every participant that counts its traffic.
type metered interface {
	Metrics() clientmetrics.Snapshot
}

// dial connects to the messaging system named by cfg.Transport.
func dial(ctx context.Context, cfg *config.Config, propagate bool) (transport.Participant, error) {
	switch cfg.Transport {
	case config.TransportWebSocket:
		return websocket.New(websocket.Config{
			URL:              cfg.Endpoint,
			HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
			Propagate:        propagate,
		})
	case config.TransportGRPC:
		return grpctransport.Dial(grpctransport.Config{
			Target:    cfg.Endpoint,
			UseTLS:    cfg.GRPC.TLS,
			Insecure:  cfg.GRPC.Insecure,
			Propagate: propagate,
		})
	case config.TransportMQTT:
		return mqtt.Connect(ctx, mqtt.Config{
			Broker:    cfg.Endpoint,
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			QoS:       byte(cfg.MQTT.QoS),
			KeepAlive: cfg.MQTT.KeepAlive,
		})
	case config.TransportMemory:
		return nil, errors.New("the memory transport has no network endpoint")
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

// openSuite returns the participant the harness drives. The memory transport
// gets an in-process responder on a second participant of the same broker.
func openSuite(ctx context.Context, cfg *config.Config, propagate bool) (transport.Participant, func(), error) {
	if cfg.Transport != config.TransportMemory {
		p, err := dial(ctx, cfg, propagate)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	}

	broker := memory.NewBroker()
	echoSide := broker.Participant()
	r := responder.New(responder.Options{
		Participant:  echoSide,
		RequestTopic: cfg.OutboundTopic,
		ReplyTopic:   cfg.InboundTopic,
	})
	rctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(rctx) }()

	select {
	case <-r.Ready():
	case err := <-done:
		stop()
		return nil, nil, fmt.Errorf("in-process responder: %w", err)
	case <-ctx.Done():
		stop()
		return nil, nil, ctx.Err()
	}

	benchSide := broker.Participant()
	cleanup := func() {
		_ = benchSide.Close()
		stop()
		if err := <-done; err != nil {
			logging.Warnf("in-process responder: %v", err)
		}
		_ = echoSide.Close()
		logging.Debugf("in-process responder echoed %d messages", r.Echoed())
	}
	return benchSide, cleanup, nil
}
