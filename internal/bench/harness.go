package bench

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/echobench/internal/clock"
	"github.com/torosent/echobench/internal/logging"
	"github.com/torosent/echobench/internal/metrics"
	"github.com/torosent/echobench/internal/tracing"
	"github.com/torosent/echobench/internal/transport"
	"github.com/torosent/echobench/internal/wire"
)

const (
	DefaultMatchTimeout = 30 * time.Second
	DefaultReplyTimeout = 5 * time.Second
)

// Pacer delays the next send. Implementations come from the runner's arrival models.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Options configure a Harness.
type Options struct {
	Participant      transport.Participant // required
	OutboundTopic    string                // requests, default LatencyUp
	InboundTopic     string                // echoes, default LatencyDown
	Clock            clock.Source          // default monotonic
	CalibrationReads int                   // default 400
	MatchTimeout     time.Duration         // bound on the wait for a matched endpoint
	ReplyTimeout     time.Duration         // bound on each echo
	Pacer            Pacer                 // optional spacing between sends
	Collector        *metrics.Collector    // optional live view
	Tracer           trace.Tracer          // optional, one span per run
}

func (o *Options) normalize() {
	if o.OutboundTopic == "" {
		o.OutboundTopic = transport.DefaultOutboundTopic
	}
	if o.InboundTopic == "" {
		o.InboundTopic = transport.DefaultInboundTopic
	}
	if o.Clock == nil {
		o.Clock = clock.NewMonotonic()
	}
	if o.CalibrationReads <= 0 {
		o.CalibrationReads = clock.DefaultCalibrationReads
	}
	if o.MatchTimeout <= 0 {
		o.MatchTimeout = DefaultMatchTimeout
	}
	if o.ReplyTimeout <= 0 {
		o.ReplyTimeout = DefaultReplyTimeout
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("echobench")
	}
}

// Harness measures round trips over one publisher/subscriber pair. Runs are
// serialized; the clock overhead is measured once in New.
type Harness struct {
	opt      Options
	overhead time.Duration
	gate     *Gate
	corr     *Correlator
	pub      transport.Publisher
	sub      transport.Subscriber
	history  metrics.History
	details  []metrics.Distribution

	mu      sync.Mutex
	matched bool
	seq     uint32

	detailsMu sync.Mutex
}

// New calibrates the clock and creates the endpoints. A calibration failure is fatal.
func New(ctx context.Context, opt Options) (*Harness, error) {
	opt.normalize()
	if opt.Participant == nil {
		return nil, errors.New("bench: participant is required")
	}

	overhead, err := clock.Calibrate(opt.Clock, opt.CalibrationReads)
	if err != nil {
		return nil, err
	}
	logging.Debugf("clock overhead %s over %d reads", overhead, opt.CalibrationReads)

	h := &Harness{
		opt:      opt,
		overhead: overhead,
		gate:     NewGate(),
	}
	h.corr = newCorrelator(opt.Clock, overhead, h.gate)

	if h.sub, err = opt.Participant.NewSubscriber(ctx, opt.InboundTopic, h.corr); err != nil {
		return nil, fmt.Errorf("subscribe %q: %w", opt.InboundTopic, err)
	}
	if h.pub, err = opt.Participant.NewPublisher(ctx, opt.OutboundTopic); err != nil {
		_ = h.sub.Close()
		return nil, fmt.Errorf("publisher %q: %w", opt.OutboundTopic, err)
	}
	return h, nil
}

// Overhead is the per-read clock cost subtracted from every round trip.
func (h *Harness) Overhead() time.Duration {
	return h.overhead
}

// History returns every successful run in execution order.
func (h *Harness) History() []metrics.TimeStats {
	return h.history.Entries()
}

// Distributions returns the floating-point extras of every successful run, in the order of History.
func (h *Harness) Distributions() []metrics.Distribution {
	h.detailsMu.Lock()
	defer h.detailsMu.Unlock()
	return append([]metrics.Distribution(nil), h.details...)
}

// Strays counts echoes that arrived with no request in flight.
func (h *Harness) Strays() int64 {
	return h.corr.Strays()
}

// Rearm makes the next run wait for a fresh matched notification.
func (h *Harness) Rearm() {
	h.mu.Lock()
	h.matched = false
	h.mu.Unlock()
}

// Close releases the harness endpoints. The participant stays open.
func (h *Harness) Close() error {
	return errors.Join(h.pub.Close(), h.sub.Close())
}

// Run performs samples round trips with a payload of size bytes and returns
// their statistics. A run that does not complete every sample fails.
func (h *Harness) Run(ctx context.Context, size, samples int) (ts metrics.TimeStats, err error) {
	if !h.mu.TryLock() {
		return metrics.TimeStats{}, &RunError{PayloadSize: size, Err: ErrRunInProgress}
	}
	defer h.mu.Unlock()

	if samples < 1 {
		return metrics.TimeStats{}, &RunError{PayloadSize: size, Err: fmt.Errorf("%w: sample count must be positive, got %d", ErrIncompleteRun, samples)}
	}
	if size < 0 || size > wire.MaxPayload {
		return metrics.TimeStats{}, &RunError{PayloadSize: size, Err: fmt.Errorf("%w: payload size must be in [0, %d], got %d", ErrIncompleteRun, wire.MaxPayload, size)}
	}

	ctx, span := tracing.StartRunSpan(ctx, h.opt.Tracer, size, samples, h.overhead)
	defer func() {
		var attrs []attribute.KeyValue
		if err == nil {
			attrs = tracing.StatsAttributes(ts)
		}
		tracing.EndSpan(span, err, attrs...)
	}()

	if c := h.opt.Collector; c != nil {
		c.BeginRun(size, samples)
		defer func() {
			if err != nil {
				c.RecordFailure(Kind(err))
			}
			c.EndRun()
		}()
	}

	if err := h.awaitMatch(ctx); err != nil {
		return metrics.TimeStats{}, &RunError{PayloadSize: size, Err: err}
	}

	if n := h.drain(); n > 0 {
		logging.Debugf("discarded %d late echoes before %dB run", n, size)
	}
	run := newRunState(samples, h.seq+1)
	h.corr.attach(run)
	defer h.corr.detach()

	if err := h.loop(ctx, run, size, samples); err != nil {
		return metrics.TimeStats{}, err
	}

	if n := h.drain(); n > 0 {
		logging.Debugf("discarded %d residual echoes after %dB run", n, size)
	}
	if len(run.samples) != samples {
		return metrics.TimeStats{}, &RunError{PayloadSize: size, Err: fmt.Errorf("%w: recorded %d of %d", ErrIncompleteRun, len(run.samples), samples)}
	}

	ts, err = metrics.Analyze(size, run.samples)
	if err != nil {
		return metrics.TimeStats{}, &RunError{PayloadSize: size, Err: err}
	}
	d, derr := metrics.Describe(run.samples)
	if derr != nil {
		logging.Debugf("describe %dB run: %v", size, derr)
	}
	d.Size = ts.Size
	h.detailsMu.Lock()
	h.details = append(h.details, d)
	h.detailsMu.Unlock()
	h.history.Append(ts)
	return ts, nil
}

func (h *Harness) awaitMatch(ctx context.Context) error {
	if h.matched {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, h.opt.MatchTimeout)
	defer cancel()
	if err := h.gate.Wait(wctx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrIncompleteRun, ctx.Err())
		}
		return fmt.Errorf("%w after %s", ErrMatchTimeout, h.opt.MatchTimeout)
	}
	h.matched = true
	return nil
}

func (h *Harness) loop(ctx context.Context, run *runState, size, samples int) error {
	base := wire.NewEcho(size)
	timer := time.NewTimer(h.opt.ReplyTimeout)
	defer timer.Stop()

	fail := func(i int, err error) error {
		return &RunError{PayloadSize: size, Sample: i, Err: err}
	}

	for i := 1; i <= samples; i++ {
		if err := ctx.Err(); err != nil {
			return fail(i, fmt.Errorf("%w: %v", ErrIncompleteRun, err))
		}
		if h.opt.Pacer != nil {
			if err := h.opt.Pacer.Wait(ctx); err != nil {
				return fail(i, fmt.Errorf("%w: %v", ErrIncompleteRun, err))
			}
		}

		h.seq++
		msg := base
		msg.Seq = h.seq

		timer.Reset(h.opt.ReplyTimeout)
		h.corr.arm(&msg)
		if err := h.pub.Publish(ctx, msg); err != nil {
			return fail(i, fmt.Errorf("%w: publish: %v", ErrIncompleteRun, err))
		}

		out, err := h.await(ctx, run, timer)
		if err != nil {
			return fail(i, err)
		}
		if out.err != nil {
			return fail(i, out.err)
		}
		if c := h.opt.Collector; c != nil {
			c.Record(out.rtt)
		}
	}
	return nil
}

// await blocks until the correlator reports on the message in flight. An outcome
// that is already available wins over a disconnect or cancellation.
func (h *Harness) await(ctx context.Context, run *runState, timer *time.Timer) (outcome, error) {
	var reason error
	select {
	case out := <-run.results:
		return out, nil
	case <-timer.C:
		return outcome{}, fmt.Errorf("%w: no echo within %s", ErrIncompleteRun, h.opt.ReplyTimeout)
	case <-h.sub.Done():
		reason = errors.New("subscriber stopped")
	case <-ctx.Done():
		reason = ctx.Err()
	}
	select {
	case out := <-run.results:
		return out, nil
	default:
		return outcome{}, fmt.Errorf("%w: %v", ErrIncompleteRun, reason)
	}
}

func (h *Harness) drain() int {
	n := 0
	for {
		if _, ok := h.sub.TakeNext(); !ok {
			return n
		}
		n++
	}
}
