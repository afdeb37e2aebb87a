package runner

import (
	"context"
	"time"

	"github.com/torosent/echobench/internal/metrics"
)

// DefaultSizes is the payload suite used when none is configured.
var DefaultSizes = []int{16, 32, 64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384}

const DefaultSamples = 10000

// Benchmark performs one run of samples round trips with a payload of size bytes.
type Benchmark interface {
	Run(ctx context.Context, size, samples int) (metrics.TimeStats, error)
}

// Options configure the Runner.
type Options struct {
	Sizes     []int           // payload sizes in run order
	Samples   int             // round trips per size
	Duration  time.Duration   // overall time limit (0 means no cap)
	FailFast  bool            // stop at the first failed size
	Benchmark Benchmark       // required
	OnRun     func(RunResult) // optional, called after every size
}

func (o *Options) normalize() {
	if len(o.Sizes) == 0 {
		o.Sizes = append([]int(nil), DefaultSizes...)
	}
	if o.Samples <= 0 {
		o.Samples = DefaultSamples
	}
	if o.Duration < 0 {
		o.Duration = 0
	}
}
