package runner

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestNewPacerDisabledWithoutRate(t *testing.T) {
	if p := NewPacer(PacerOptions{}); p != nil {
		t.Fatalf("expected nil pacer, got %T", p)
	}
}

func TestNewPacerSelectsModel(t *testing.T) {
	if _, ok := NewPacer(PacerOptions{RatePerSecond: 10}).(*uniformArrival); !ok {
		t.Fatal("default model should be uniform")
	}
	if _, ok := NewPacer(PacerOptions{RatePerSecond: 10, Model: ArrivalModelPoisson}).(*poissonArrival); !ok {
		t.Fatal("expected poisson pacer")
	}
}

func TestUniformPacerSpacesSends(t *testing.T) {
	p := NewPacer(PacerOptions{
		RatePerSecond:  100,
		LimiterFactory: func(rps float64) *rate.Limiter { return rate.NewLimiter(rate.Limit(rps), 1) },
	})
	start := time.Now()
	for i := 0; i < 6; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	// first token is immediate, the next five are 10ms apart
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("pacing too fast: %s", elapsed)
	}
}

func TestPoissonArrivalNextDelayUsesSampler(t *testing.T) {
	ctrl := &poissonArrival{sample: func() float64 { return 1 }}
	ctrl.SetRate(200)
	delay := ctrl.nextDelay()
	expected := time.Second / 200
	if delay != expected {
		t.Fatalf("expected delay %s, got %s", expected, delay)
	}
}

func TestPoissonArrivalWaitCancelledContext(t *testing.T) {
	ctrl := &poissonArrival{sample: func() float64 { return 1 }}
	ctrl.SetRate(0.000001)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ctrl.Wait(ctx); err == nil {
		t.Fatalf("expected context error when cancelled")
	}
}
