package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/echobench/internal/logging"
	"github.com/torosent/echobench/internal/tracing"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewWebSocketHandler serves /pub/{topic} and /sub/{topic}. Every WebSocket
// message is one binary relay frame.
func NewWebSocketHandler(hub *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /pub/{topic}", func(w http.ResponseWriter, r *http.Request) {
		servePublisher(hub, w, r)
	})
	mux.HandleFunc("GET /sub/{topic}", func(w http.ResponseWriter, r *http.Request) {
		serveSubscriber(hub, w, r)
	})
	return mux
}

func servePublisher(hub *Hub, w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("topic")
	release, err := hub.Attach(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer release()
	logRemoteTrace(tracing.ExtractHTTPHeaders(r.Context(), r.Header), "websocket publisher", name)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnf("relay: websocket upgrade for publisher on %q: %v", name, err)
		return
	}
	defer conn.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debugf("relay: publisher on %q: %v", name, err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if err := hub.Publish(name, data); err != nil {
			logging.Warnf("relay: %v", err)
			closeWith(conn, websocket.CloseUnsupportedData, err.Error())
			return
		}
	}
}

func serveSubscriber(hub *Hub, w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("topic")
	// Subscribe before the handshake completes so a dialer that returns is already attached.
	sub, err := hub.Subscribe(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnf("relay: websocket upgrade for subscriber on %q: %v", name, err)
		return
	}
	defer conn.Close()
	logRemoteTrace(tracing.ExtractHTTPHeaders(r.Context(), r.Header), "websocket subscriber", name)

	// Subscribers never send; reading only notices when the peer goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case frame := <-sub.Frames():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				logging.Debugf("relay: subscriber on %q: %v", name, err)
				return
			}
		case <-sub.Done():
			reason := "relay closed"
			if err := sub.Err(); err != nil {
				reason = err.Error()
			}
			code := websocket.CloseGoingAway
			if errors.Is(sub.Err(), ErrSlowReader) {
				code = websocket.ClosePolicyViolation
			}
			closeWith(conn, code, reason)
			return
		case <-gone:
			return
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))
}

// logRemoteTrace notes the trace a client joined with, when it sent one.
func logRemoteTrace(ctx context.Context, kind, name string) {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logging.WithField("topic", name).Debugf("relay: %s in trace %s", kind, sc.TraceID())
	}
}
