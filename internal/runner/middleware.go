package runner

import (
	"context"

	"github.com/torosent/echobench/internal/bench"
	"github.com/torosent/echobench/internal/logging"
	"github.com/torosent/echobench/internal/metrics"
)

// FailureLogger logs failed runs.
type FailureLogger interface {
	LogFailure(size int, err error)
}

// FailureLoggerFunc adapts a function to a FailureLogger.
type FailureLoggerFunc func(size int, err error)

func (f FailureLoggerFunc) LogFailure(size int, err error) { f(size, err) }

// LogrusFailureLogger writes failures to the shared logger with their kind.
var LogrusFailureLogger = FailureLoggerFunc(func(size int, err error) {
	logging.WithField("bytes", size).WithField("kind", bench.Kind(err)).Errorf("run failed: %v", err)
})

// loggingBenchmark wraps a Benchmark with failure logging.
type loggingBenchmark struct {
	inner  Benchmark
	logger FailureLogger
}

// WithLogging wraps a Benchmark to log failures.
func WithLogging(b Benchmark, logger FailureLogger) Benchmark {
	if logger == nil {
		return b
	}
	return &loggingBenchmark{inner: b, logger: logger}
}

func (l *loggingBenchmark) Run(ctx context.Context, size, samples int) (metrics.TimeStats, error) {
	ts, err := l.inner.Run(ctx, size, samples)
	if err != nil {
		l.logger.LogFailure(size, err)
	}
	return ts, err
}
