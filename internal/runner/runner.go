package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/torosent/echobench/internal/bench"
	"github.com/torosent/echobench/internal/metrics"
)

// RunResult is the outcome of one payload size.
type RunResult struct {
	Size     int
	Stats    metrics.TimeStats
	Err      error
	Duration time.Duration
}

// Result captures the suite summary. Runs are in execution order.
type Result struct {
	Runs     []RunResult
	Skipped  []int // sizes never started
	Stopped  error // why the suite ended early, nil if every size ran
	Duration time.Duration
}

// Stats returns the TimeStats of the successful runs.
func (r Result) Stats() []metrics.TimeStats {
	out := make([]metrics.TimeStats, 0, len(r.Runs))
	for _, run := range r.Runs {
		if run.Err == nil {
			out = append(out, run.Stats)
		}
	}
	return out
}

// Failures returns the runs that failed.
func (r Result) Failures() []RunResult {
	var out []RunResult
	for _, run := range r.Runs {
		if run.Err != nil {
			out = append(out, run)
		}
	}
	return out
}

// OK reports whether every configured size ran and succeeded.
func (r Result) OK() bool {
	return r.Stopped == nil && len(r.Skipped) == 0 && len(r.Failures()) == 0
}

// Runner executes the payload suite sequentially.
type Runner struct {
	opt Options
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt}
}

func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	var res Result

	if r.opt.Duration > 0 {
		deadlineCtx, cancel := context.WithTimeout(ctx, r.opt.Duration)
		ctx = deadlineCtx
		defer cancel()
	}

	for i, size := range r.opt.Sizes {
		if err := ctx.Err(); err != nil {
			res.Stopped = err
			res.Skipped = append(res.Skipped, r.opt.Sizes[i:]...)
			break
		}
		if r.opt.Benchmark == nil {
			res.Stopped = errors.New("runner: no benchmark configured")
			res.Skipped = append(res.Skipped, r.opt.Sizes[i:]...)
			break
		}

		runStart := time.Now()
		ts, err := r.opt.Benchmark.Run(ctx, size, r.opt.Samples)
		run := RunResult{Size: size, Stats: ts, Err: err, Duration: time.Since(runStart)}
		res.Runs = append(res.Runs, run)
		if r.opt.OnRun != nil {
			r.opt.OnRun(run)
		}

		if err != nil && (r.opt.FailFast || fatal(err)) {
			res.Stopped = fmt.Errorf("stopped after %dB run: %w", size, err)
			res.Skipped = append(res.Skipped, r.opt.Sizes[i+1:]...)
			break
		}
	}

	res.Duration = time.Since(start)
	return res
}

// fatal errors make every later size fail the same way.
func fatal(err error) bool {
	return errors.Is(err, bench.ErrMatchTimeout) || errors.Is(err, bench.ErrCalibration)
}
