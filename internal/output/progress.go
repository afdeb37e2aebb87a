package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/echobench/internal/metrics"
)

// ProgressReporter prints a one-line summary of the run in flight at a fixed interval.
type ProgressReporter struct {
	collector *metrics.Collector
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(collector *metrics.Collector, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return
	}
	go p.run()
}

// Stop halts progress updates and prints the final line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, "\r"+ProgressLine(p.collector.Snapshot()))
		case <-p.done:
			fmt.Fprintln(p.writer, "\r"+ProgressLine(p.collector.Snapshot()))
			return
		}
	}
}

// ProgressLine formats a collector snapshot for a terminal status line.
func ProgressLine(s metrics.Snapshot) string {
	line := fmt.Sprintf("Run %d | %dB %d/%d | Samples: %d | Failed runs: %d | %.0f/s",
		s.Runs, s.PayloadSize, s.Completed, s.Target, s.TotalSamples, s.Failures, s.SamplesPerSec)
	if s.Completed > 0 {
		line += fmt.Sprintf(" | P50 %s P99 %s", s.P50, s.P99)
	}
	return line
}
