package relay

import (
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/torosent/echobench/internal/logging"
	"github.com/torosent/echobench/internal/tracing"
)

const (
	ServiceName     = "echobench.Relay"
	PublishMethod   = "/" + ServiceName + "/Publish"
	SubscribeMethod = "/" + ServiceName + "/Subscribe"
	// TopicMetadataKey carries the topic name of a Publish or Subscribe stream.
	TopicMetadataKey = "x-echobench-topic"
)

// Server is the handler type of the relay service.
//
// Publish is a client stream of wrapperspb.BytesValue relay frames answered
// with emptypb.Empty. Subscribe takes one emptypb.Empty and streams
// wrapperspb.BytesValue relay frames back.
type Server interface {
	Publish(stream grpc.ServerStream) error
	Subscribe(stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Publish",
			Handler:       func(srv any, stream grpc.ServerStream) error { return srv.(Server).Publish(stream) },
			ClientStreams: true,
		},
		{
			StreamName:    "Subscribe",
			Handler:       func(srv any, stream grpc.ServerStream) error { return srv.(Server).Subscribe(stream) },
			ServerStreams: true,
		},
	},
	Metadata: "echobench/relay",
}

// RegisterGRPC serves hub as the echobench.Relay service on s.
func RegisterGRPC(s grpc.ServiceRegistrar, hub *Hub) {
	s.RegisterService(&serviceDesc, &grpcServer{hub: hub})
}

type grpcServer struct {
	hub *Hub
}

func streamTopic(stream grpc.ServerStream) (string, error) {
	md, _ := metadata.FromIncomingContext(stream.Context())
	vals := md.Get(TopicMetadataKey)
	if len(vals) == 0 || vals[0] == "" {
		return "", status.Errorf(codes.InvalidArgument, "missing %s metadata", TopicMetadataKey)
	}
	return vals[0], nil
}

func (g *grpcServer) Publish(stream grpc.ServerStream) error {
	name, err := streamTopic(stream)
	if err != nil {
		return err
	}
	release, err := g.hub.Attach(name)
	if err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}
	defer release()
	if md, ok := metadata.FromIncomingContext(stream.Context()); ok {
		logRemoteTrace(tracing.ExtractGRPCMetadata(stream.Context(), md), "grpc publisher", name)
	}
	if err := stream.SendHeader(metadata.MD{}); err != nil {
		return err
	}

	for {
		var frame wrapperspb.BytesValue
		if err := stream.RecvMsg(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return stream.SendMsg(&emptypb.Empty{})
			}
			logging.Debugf("relay: grpc publisher on %q: %v", name, err)
			return err
		}
		if err := g.hub.Publish(name, frame.GetValue()); err != nil {
			return status.Error(codes.InvalidArgument, err.Error())
		}
	}
}

func (g *grpcServer) Subscribe(stream grpc.ServerStream) error {
	name, err := streamTopic(stream)
	if err != nil {
		return err
	}
	var req emptypb.Empty
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}
	if md, ok := metadata.FromIncomingContext(stream.Context()); ok {
		logRemoteTrace(tracing.ExtractGRPCMetadata(stream.Context(), md), "grpc subscriber", name)
	}

	sub, err := g.hub.Subscribe(name)
	if err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}
	defer sub.Close()
	if err := stream.SendHeader(metadata.MD{}); err != nil {
		return err
	}

	for {
		select {
		case frame := <-sub.Frames():
			if err := stream.SendMsg(wrapperspb.Bytes(frame)); err != nil {
				return err
			}
		case <-sub.Done():
			if errors.Is(sub.Err(), ErrSlowReader) {
				return status.Error(codes.ResourceExhausted, sub.Err().Error())
			}
			return status.Error(codes.Unavailable, "relay closed")
		case <-stream.Context().Done():
			return nil
		}
	}
}
