package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const recentWindow = 120

// Collector tracks the run in flight for live display. It is safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	hist      *hdrhistogram.Histogram
	size      int
	target    int
	completed int
	runs      int
	samples   int64
	failures  int64
	errors    map[string]int64
	recent    []float64
	start     time.Time
	runStart  time.Time
}

// Snapshot is a point-in-time view of the Collector.
type Snapshot struct {
	PayloadSize   int
	Target        int
	Completed     int
	Runs          int
	TotalSamples  int64
	Failures      int64
	Min           time.Duration
	Max           time.Duration
	Mean          time.Duration
	P50           time.Duration
	P90           time.Duration
	P99           time.Duration
	Recent        []float64 // microseconds, oldest first
	Errors        map[string]int64
	Elapsed       time.Duration
	RunElapsed    time.Duration
	SamplesPerSec float64
}

func NewCollector() *Collector {
	// Track round trips from 1ns up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, int64(60*time.Second), 3)
	now := time.Now()
	return &Collector{
		hist:     h,
		errors:   make(map[string]int64),
		start:    now,
		runStart: now,
	}
}

// BeginRun resets the per-run histogram for a new payload size.
func (c *Collector) BeginRun(size, samples int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hist.Reset()
	c.size = size
	c.target = samples
	c.completed = 0
	c.recent = c.recent[:0]
	c.runStart = time.Now()
}

// EndRun counts a finished run, successful or not.
func (c *Collector) EndRun() {
	c.mu.Lock()
	c.runs++
	c.mu.Unlock()
}

// Record adds one compensated round trip.
func (c *Collector) Record(rtt time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := int64(rtt)
	if v < c.hist.LowestTrackableValue() {
		v = c.hist.LowestTrackableValue()
	}
	if v > c.hist.HighestTrackableValue() {
		v = c.hist.HighestTrackableValue()
	}
	_ = c.hist.RecordValue(v)
	c.completed++
	c.samples++

	if len(c.recent) == recentWindow {
		copy(c.recent, c.recent[1:])
		c.recent = c.recent[:recentWindow-1]
	}
	c.recent = append(c.recent, float64(rtt)/float64(time.Microsecond))
}

// RecordFailure counts a failed run under kind.
func (c *Collector) RecordFailure(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	c.errors[kind]++
}

func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		PayloadSize:  c.size,
		Target:       c.target,
		Completed:    c.completed,
		Runs:         c.runs,
		TotalSamples: c.samples,
		Failures:     c.failures,
		Recent:       append([]float64(nil), c.recent...),
		Elapsed:      time.Since(c.start),
		RunElapsed:   time.Since(c.runStart),
	}
	if c.hist.TotalCount() > 0 {
		s.Min = time.Duration(c.hist.Min())
		s.Max = time.Duration(c.hist.Max())
		s.Mean = time.Duration(c.hist.Mean())
		s.P50 = time.Duration(c.hist.ValueAtQuantile(50))
		s.P90 = time.Duration(c.hist.ValueAtQuantile(90))
		s.P99 = time.Duration(c.hist.ValueAtQuantile(99))
	}
	if secs := s.RunElapsed.Seconds(); secs > 0 {
		s.SamplesPerSec = float64(c.completed) / secs
	}
	if len(c.errors) > 0 {
		s.Errors = make(map[string]int64, len(c.errors))
		for k, v := range c.errors {
			s.Errors[k] = v
		}
	}
	return s
}
