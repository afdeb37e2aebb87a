// Package metrics turns round-trip samples into statistics.
//
// [Analyze] reduces the completed sample sequence of one run into a [TimeStats]
// record using integer arithmetic throughout:
//
//	ts, err := metrics.Analyze(1024, samples)
//	if errors.Is(err, metrics.ErrAnalysisRange) {
//		// too few samples for the percentile rule
//	}
//
// Percentiles use a fixed index rule on the sorted samples with x = N*p,
// k = floor(x) and f = x - k. The median takes the average of s[k] and s[k+1]
// when f is zero and s[k+1] otherwise; p90, p99 and p99.99 take the average of
// s[k-1] and s[k] when f is zero and s[k] otherwise. Any index outside the
// sample range rejects the run rather than being clamped.
//
// [History] keeps every TimeStats in the order runs completed.
//
// [Collector] is the live view of the run in flight. It feeds progress output
// and the dashboard from an HDR histogram and never influences TimeStats.
//
// [Describe] adds floating-point extras (confidence interval of the mean and an
// interpolated p95) for reports.
package metrics
