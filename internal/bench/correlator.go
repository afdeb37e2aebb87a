package bench

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/torosent/echobench/internal/clock"
	"github.com/torosent/echobench/internal/logging"
	"github.com/torosent/echobench/internal/transport"
	"github.com/torosent/echobench/internal/wire"
)

// outcome is what the correlator hands back to the driver for one armed message.
type outcome struct {
	rtt time.Duration
	err error
}

// runState is the sample sequence of one run. Only the correlator appends to it,
// and every append happens before the matching outcome is sent.
type runState struct {
	firstSeq uint32
	samples  []uint64
	results  chan outcome
}

func newRunState(samples int, firstSeq uint32) *runState {
	return &runState{
		firstSeq: firstSeq,
		samples:  make([]uint64, 0, samples),
		results:  make(chan outcome, 1),
	}
}

// stale reports whether seq was sent before this run started. Sequence numbers
// are compared in serial arithmetic so that wrap-around stays ordered.
func (r *runState) stale(seq uint32) bool {
	return int32(seq-r.firstSeq) < 0
}

func (r *runState) report(o outcome) {
	select {
	case r.results <- o:
	default:
	}
}

// Correlator is the inbound subscriber's listener: it stamps arrivals, checks the
// echo against the message in flight and records the compensated round trip.
type Correlator struct {
	clock    clock.Source
	overhead int64
	gate     *Gate

	run      atomic.Pointer[runState]
	expected atomic.Pointer[wire.Echo]
	sentAt   atomic.Int64
	strays   atomic.Int64
}

func newCorrelator(src clock.Source, overhead time.Duration, gate *Gate) *Correlator {
	return &Correlator{clock: src, overhead: int64(overhead), gate: gate}
}

func (c *Correlator) OnMatch(status transport.MatchStatus) {
	if status == transport.Matched {
		c.gate.Signal()
		return
	}
	c.gate.Unmatch()
}

func (c *Correlator) OnData(sub transport.Subscriber) {
	msg, ok := sub.TakeNext()
	if !ok {
		return
	}
	t2 := c.clock.Now()

	run := c.run.Load()
	want := c.expected.Load()
	if run == nil || want == nil || run.stale(msg.Seq) || !c.expected.CompareAndSwap(want, nil) {
		c.strays.Add(1)
		logging.Debugf("discarding echo seq %d with no request of this run in flight", msg.Seq)
		return
	}

	delta := t2 - c.sentAt.Load() - c.overhead
	switch {
	case !msg.Equal(*want):
		run.report(outcome{err: fmt.Errorf("%w: got seq %d (%d bytes), sent seq %d (%d bytes)",
			ErrContentMismatch, msg.Seq, len(msg.Payload), want.Seq, len(want.Payload))})
	case delta < 0:
		run.report(outcome{err: fmt.Errorf("%w: %dns after removing %dns overhead", ErrMeasurementCorruption, delta, c.overhead)})
	default:
		run.samples = append(run.samples, uint64(delta))
		run.report(outcome{rtt: time.Duration(delta)})
	}
}

// Strays returns how many echoes arrived with nothing in flight.
func (c *Correlator) Strays() int64 {
	return c.strays.Load()
}

func (c *Correlator) attach(run *runState) {
	c.expected.Store(nil)
	c.run.Store(run)
}

func (c *Correlator) detach() {
	c.run.Store(nil)
	c.expected.Store(nil)
}

// arm registers msg as the message in flight and returns its send timestamp.
// The timestamp is taken last so that nothing but the publish call is measured.
func (c *Correlator) arm(msg *wire.Echo) int64 {
	c.expected.Store(msg)
	t1 := c.clock.Now()
	c.sentAt.Store(t1)
	return t1
}
