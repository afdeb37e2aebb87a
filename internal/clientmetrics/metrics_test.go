package clientmetrics

import (
	"testing"
	"time"
)

func TestCounters(t *testing.T) {
	m := New()
	if m.Snapshot().ConnectionDuration != 0 {
		t.Fatal("duration should be zero before connect")
	}
	m.MarkConnected()
	m.IncrementSent(10)
	m.IncrementSent(20)
	m.IncrementReceived(30)
	m.IncrementErrors()
	time.Sleep(time.Millisecond)

	s := m.Snapshot()
	if s.MessagesSent != 2 || s.BytesSent != 30 {
		t.Errorf("sent counters wrong: %+v", s)
	}
	if s.MessagesReceived != 1 || s.BytesReceived != 30 {
		t.Errorf("received counters wrong: %+v", s)
	}
	if s.Errors != 1 {
		t.Errorf("expected 1 error, got %d", s.Errors)
	}
	if s.ConnectionDuration <= 0 {
		t.Errorf("expected positive connection duration")
	}

	m.MarkDisconnected()
	s = m.Snapshot()
	if s.ConnectionDuration != 0 || s.Disconnects != 1 {
		t.Errorf("disconnect not recorded: %+v", s)
	}
}

func TestSnapshotAdd(t *testing.T) {
	a := Snapshot{MessagesSent: 1, BytesSent: 8, ConnectionDuration: time.Second}
	b := Snapshot{MessagesSent: 2, BytesSent: 16, ConnectionDuration: 2 * time.Second, Errors: 1}
	got := a.Add(b)
	if got.MessagesSent != 3 || got.BytesSent != 24 || got.Errors != 1 || got.ConnectionDuration != 2*time.Second {
		t.Fatalf("unexpected sum %+v", got)
	}
}
