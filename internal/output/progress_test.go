package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/echobench/internal/metrics"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressLine(t *testing.T) {
	collector := metrics.NewCollector()
	collector.BeginRun(256, 100)
	for i := 0; i < 40; i++ {
		collector.Record(30 * time.Microsecond)
	}

	line := ProgressLine(collector.Snapshot())
	for _, want := range []string{"Run 0", "256B 40/100", "Samples: 40", "Failed runs: 0", "P50", "P99"} {
		if !strings.Contains(line, want) {
			t.Errorf("progress line %q missing %q", line, want)
		}
	}
}

func TestProgressLineBeforeFirstSample(t *testing.T) {
	line := ProgressLine(metrics.Snapshot{PayloadSize: 16, Target: 10})
	if strings.Contains(line, "P50") {
		t.Errorf("no percentiles expected before the first sample: %q", line)
	}
}

func TestProgressReporterBasic(t *testing.T) {
	collector := metrics.NewCollector()
	collector.BeginRun(16, 5)
	collector.Record(time.Millisecond)

	var out lockedBuffer
	reporter := NewProgressReporter(collector, 10*time.Millisecond, &out)
	reporter.Start()
	reporter.Start()
	time.Sleep(50 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	got := out.String()
	if !strings.Contains(got, "16B 1/5") {
		t.Fatalf("expected progress output, got %q", got)
	}
	if !strings.HasSuffix(got, "\n") {
		t.Errorf("Stop should finish the line, got %q", got)
	}
}

func TestProgressReporterNilWriter(t *testing.T) {
	reporter := NewProgressReporter(metrics.NewCollector(), time.Millisecond, nil)
	reporter.Start()
	time.Sleep(5 * time.Millisecond)
	reporter.Stop()
}
