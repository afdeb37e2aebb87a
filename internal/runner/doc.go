// Package runner drives a benchmark over a suite of payload sizes.
//
// The runner calls [Benchmark.Run] once per payload size, in order, and
// collects every outcome:
//
//	r := runner.New(runner.Options{
//		Sizes:     []int{16, 1024, 16384},
//		Samples:   10000,
//		Benchmark: harness,
//	})
//	result := r.Run(ctx)
//
// # Stop conditions
//
// The suite stops early when the context is cancelled, when the optional
// [Options.Duration] cap expires, when a run fails with a match timeout or a
// calibration failure, or on any failure when [Options.FailFast] is set.
// Otherwise a failed size is recorded and the next size starts. Failed runs
// are never retried.
//
// # Pacing
//
// [NewPacer] spaces sends inside a run:
//   - [ArrivalModelUniform]: fixed intervals via a token bucket
//   - [ArrivalModelPoisson]: exponential gaps around the target rate
//
// # Middleware
//
// [WithLogging] wraps a Benchmark to log failed runs.
package runner
