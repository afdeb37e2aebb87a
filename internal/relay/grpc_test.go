package relay

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/torosent/echobench/internal/wire"
)

func dialRelay(t *testing.T, hub *Hub) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterGRPC(srv, hub)
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
	})
	return conn
}

func TestGRPCRequiresTopic(t *testing.T) {
	conn := dialRelay(t, NewHub(0))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stream, err := conn.NewStream(ctx, &grpc.StreamDesc{ClientStreams: true}, PublishMethod)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	_ = stream.CloseSend()
	err = stream.RecvMsg(&emptypb.Empty{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("RecvMsg() = %v, want InvalidArgument", err)
	}
}

func TestGRPCPublishAndSubscribe(t *testing.T) {
	hub := NewHub(0)
	conn := dialRelay(t, hub)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, TopicMetadataKey, "down")

	sub, err := conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, SubscribeMethod)
	if err != nil {
		t.Fatalf("Subscribe stream: %v", err)
	}
	if err := sub.SendMsg(&emptypb.Empty{}); err != nil {
		t.Fatalf("SendMsg: %v", err)
	}
	_ = sub.CloseSend()
	if _, err := sub.Header(); err != nil {
		t.Fatalf("Header: %v", err)
	}

	pub, err := conn.NewStream(ctx, &grpc.StreamDesc{ClientStreams: true}, PublishMethod)
	if err != nil {
		t.Fatalf("Publish stream: %v", err)
	}
	msg := wire.NewEcho(16)
	msg.Seq = 4
	frame, _ := wire.DataFrame(msg)
	if err := pub.SendMsg(wrapperspb.Bytes(frame)); err != nil {
		t.Fatalf("SendMsg: %v", err)
	}

	var got wrapperspb.BytesValue
	if err := sub.RecvMsg(&got); err != nil {
		t.Fatalf("RecvMsg: %v", err)
	}
	if kind, _, _ := wire.ParseFrame(got.GetValue()); kind != wire.FrameMatched {
		t.Fatalf("first frame = %s, want matched", kind)
	}
	if err := sub.RecvMsg(&got); err != nil {
		t.Fatalf("RecvMsg: %v", err)
	}
	kind, echo, err := wire.ParseFrame(got.GetValue())
	if err != nil || kind != wire.FrameData || !echo.Equal(msg) {
		t.Fatalf("second frame = %s %+v (%v)", kind, echo, err)
	}

	_ = pub.CloseSend()
	if err := pub.RecvMsg(&emptypb.Empty{}); err != nil {
		t.Fatalf("publish ack: %v", err)
	}
	if err := sub.RecvMsg(&got); err != nil {
		t.Fatalf("RecvMsg: %v", err)
	}
	if kind, _, _ := wire.ParseFrame(got.GetValue()); kind != wire.FrameUnmatched {
		t.Fatalf("frame after publisher left = %s, want unmatched", kind)
	}
}
