// Package clientmetrics counts traffic on a transport connection.
package clientmetrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// ClientMetrics tracks message and connection statistics for one transport participant.
type ClientMetrics struct {
	messagesSent atomic.Int64
	messagesRecv atomic.Int64
	bytesSent    atomic.Int64
	bytesRecv    atomic.Int64
	errors       atomic.Int64
	disconnects  atomic.Int64

	mu          sync.Mutex
	connectTime time.Time
}

func New() *ClientMetrics {
	return &ClientMetrics{}
}

// MarkConnected records the connection time.
func (m *ClientMetrics) MarkConnected() {
	m.mu.Lock()
	m.connectTime = time.Now()
	m.mu.Unlock()
}

// MarkDisconnected clears the connection time and counts the drop.
func (m *ClientMetrics) MarkDisconnected() {
	m.mu.Lock()
	m.connectTime = time.Time{}
	m.mu.Unlock()
	m.disconnects.Add(1)
}

func (m *ClientMetrics) IncrementSent(bytes int64) {
	m.messagesSent.Add(1)
	m.bytesSent.Add(bytes)
}

func (m *ClientMetrics) IncrementReceived(bytes int64) {
	m.messagesRecv.Add(1)
	m.bytesRecv.Add(bytes)
}

func (m *ClientMetrics) IncrementErrors() {
	m.errors.Add(1)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	ConnectionDuration time.Duration `json:"connection_duration_ns"`
	MessagesSent       int64         `json:"messages_sent"`
	MessagesReceived   int64         `json:"messages_received"`
	BytesSent          int64         `json:"bytes_sent"`
	BytesReceived      int64         `json:"bytes_received"`
	Errors             int64         `json:"errors"`
	Disconnects        int64         `json:"disconnects"`
}

func (m *ClientMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	var connected time.Duration
	if !m.connectTime.IsZero() {
		connected = time.Since(m.connectTime)
	}
	m.mu.Unlock()

	return Snapshot{
		ConnectionDuration: connected,
		MessagesSent:       m.messagesSent.Load(),
		MessagesReceived:   m.messagesRecv.Load(),
		BytesSent:          m.bytesSent.Load(),
		BytesReceived:      m.bytesRecv.Load(),
		Errors:             m.errors.Load(),
		Disconnects:        m.disconnects.Load(),
	}
}

// Add returns the element-wise sum of two snapshots. Connection durations keep the longer one.
func (s Snapshot) Add(o Snapshot) Snapshot {
	return Snapshot{
		ConnectionDuration: max(s.ConnectionDuration, o.ConnectionDuration),
		MessagesSent:       s.MessagesSent + o.MessagesSent,
		MessagesReceived:   s.MessagesReceived + o.MessagesReceived,
		BytesSent:          s.BytesSent + o.BytesSent,
		BytesReceived:      s.BytesReceived + o.BytesReceived,
		Errors:             s.Errors + o.Errors,
		Disconnects:        s.Disconnects + o.Disconnects,
	}
}
