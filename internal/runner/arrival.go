package runner

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ArrivalModel selects how sends are spaced when a rate is configured.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// Pacer delays the next send.
type Pacer interface {
	Wait(ctx context.Context) error
}

// PacerOptions configure NewPacer.
type PacerOptions struct {
	RatePerSecond  float64
	Model          ArrivalModel
	RandomSeed     int64
	PoissonSampler func() float64                  // optional injection for tests
	LimiterFactory func(rps float64) *rate.Limiter // optional injection for tests
}

// NewPacer returns nil when no rate is set, meaning sends go out back to back.
func NewPacer(opt PacerOptions) Pacer {
	if opt.RatePerSecond <= 0 {
		return nil
	}

	switch opt.Model {
	case ArrivalModelPoisson:
		sampler := opt.PoissonSampler
		if sampler == nil {
			sampler = rand.New(rand.NewSource(opt.RandomSeed)).ExpFloat64
		}
		ctrl := &poissonArrival{sample: sampler}
		ctrl.SetRate(opt.RatePerSecond)
		return ctrl
	default:
		factory := opt.LimiterFactory
		if factory == nil {
			factory = func(rps float64) *rate.Limiter {
				// One token at a time: only one message is ever in flight.
				return rate.NewLimiter(rate.Limit(rps), 1)
			}
		}
		return &uniformArrival{limiter: factory(opt.RatePerSecond)}
	}
}

// uniformArrival delegates pacing to a rate.Limiter (uniform spacing).
type uniformArrival struct {
	limiter *rate.Limiter
}

func (u *uniformArrival) Wait(ctx context.Context) error {
	if u == nil || u.limiter == nil {
		return nil
	}
	return u.limiter.Wait(ctx)
}

// poissonArrival samples exponential inter-arrival times to approximate a Poisson process.
type poissonArrival struct {
	mu     sync.Mutex
	rate   float64
	sample func() float64
}

func (p *poissonArrival) Wait(ctx context.Context) error {
	delay := p.nextDelay()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *poissonArrival) SetRate(rps float64) {
	if p == nil {
		return
	}
	if rps < 0 {
		rps = 0
	}
	p.mu.Lock()
	p.rate = rps
	p.mu.Unlock()
}

func (p *poissonArrival) nextDelay() time.Duration {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rate <= 0 || p.sample == nil {
		return 0
	}

	value := p.sample()
	delay := float64(time.Second) * value / p.rate
	if delay > math.MaxInt64 {
		delay = math.MaxInt64
	}
	return time.Duration(delay)
}
