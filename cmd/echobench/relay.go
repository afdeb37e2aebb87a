package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"

	"github.com/torosent/echobench/internal/config"
	"github.com/torosent/echobench/internal/logging"
	"github.com/torosent/echobench/internal/relay"
	"github.com/torosent/echobench/internal/tracing"
)

func runRelay(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateRelay(); err != nil {
		return err
	}
	// The relay only reads the trace context clients send; it exports nothing.
	tracing.EnablePropagation()
	var wsLis, grpcLis net.Listener
	var err error
	if cfg.Relay.Listen != "" {
		if wsLis, err = net.Listen("tcp", cfg.Relay.Listen); err != nil {
			return fmt.Errorf("relay websocket listen: %w", err)
		}
	}
	if cfg.Relay.GRPCListen != "" {
		if grpcLis, err = net.Listen("tcp", cfg.Relay.GRPCListen); err != nil {
			if wsLis != nil {
				_ = wsLis.Close()
			}
			return fmt.Errorf("relay grpc listen: %w", err)
		}
	}
	return serveRelay(ctx, relay.NewHub(0), wsLis, grpcLis)
}

// serveRelay serves hub on the listeners that are not nil until ctx ends or a server fails.
func serveRelay(ctx context.Context, hub *relay.Hub, wsLis, grpcLis net.Listener) error {
	errCh := make(chan error, 2)

	var httpSrv *http.Server
	if wsLis != nil {
		httpSrv = &http.Server{
			Handler:           relay.NewWebSocketHandler(hub),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := httpSrv.Serve(wsLis); !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("relay websocket server: %w", err)
			}
		}()
		logging.Infof("relay serving websocket on %s", wsLis.Addr())
	}

	var grpcSrv *grpc.Server
	if grpcLis != nil {
		grpcSrv = grpc.NewServer()
		relay.RegisterGRPC(grpcSrv, hub)
		go func() {
			if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("relay grpc server: %w", err)
			}
		}()
		logging.Infof("relay serving grpc on %s", grpcLis.Addr())
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	hub.Shutdown()
	if httpSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if serr := httpSrv.Shutdown(sctx); serr != nil {
			logging.Warnf("relay websocket shutdown: %v", serr)
		}
		cancel()
	}
	if grpcSrv != nil {
		grpcSrv.Stop()
	}

	m := hub.Metrics()
	logging.Infof("relay received %d frames (%d bytes) and sent %d frames (%d bytes)",
		m.MessagesReceived, m.BytesReceived, m.MessagesSent, m.BytesSent)
	return err
}
