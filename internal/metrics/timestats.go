package metrics

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"slices"
)

// ErrAnalysisRange reports that a percentile index fell outside the sample range.
var ErrAnalysisRange = errors.New("percentile index out of range")

// TimeStats summarizes one run. Every duration is in nanoseconds.
type TimeStats struct {
	Size  uint64 `json:"bytes" yaml:"bytes"`
	Mean  uint64 `json:"mean_ns" yaml:"mean_ns"`
	Stdev uint64 `json:"stdev_ns" yaml:"stdev_ns"`
	Min   uint64 `json:"min_ns" yaml:"min_ns"`
	Max   uint64 `json:"max_ns" yaml:"max_ns"`
	P50   uint64 `json:"p50_ns" yaml:"p50_ns"`
	P90   uint64 `json:"p90_ns" yaml:"p90_ns"`
	P99   uint64 `json:"p99_ns" yaml:"p99_ns"`
	P9999 uint64 `json:"p9999_ns" yaml:"p9999_ns"`
}

type percentileRule int

const (
	ruleMedian percentileRule = iota
	ruleTail
)

// Analyze computes the TimeStats of a completed run. samples is not modified.
func Analyze(size int, samples []uint64) (TimeStats, error) {
	if len(samples) == 0 {
		return TimeStats{}, fmt.Errorf("%w: no samples", ErrAnalysisRange)
	}

	ts := TimeStats{Size: uint64(size)}
	ts.Min, ts.Max, ts.Mean, ts.Stdev = moments(samples)

	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	targets := []struct {
		p    float64
		rule percentileRule
		dst  *uint64
	}{
		{0.5, ruleMedian, &ts.P50},
		{0.9, ruleTail, &ts.P90},
		{0.99, ruleTail, &ts.P99},
		{0.9999, ruleTail, &ts.P9999},
	}
	for _, target := range targets {
		v, err := percentile(sorted, target.p, target.rule)
		if err != nil {
			return TimeStats{}, err
		}
		*target.dst = v
	}
	return ts, nil
}

// moments returns min, max, the truncated mean and the truncated population
// standard deviation floor(sqrt(floor(sum((x-mean)^2) / N))).
func moments(samples []uint64) (lo, hi, mean, stdev uint64) {
	var sum, n, t big.Int
	n.SetInt64(int64(len(samples)))

	lo, hi = samples[0], samples[0]
	for _, x := range samples {
		lo = min(lo, x)
		hi = max(hi, x)
		sum.Add(&sum, t.SetUint64(x))
	}
	mean = sum.Div(&sum, &n).Uint64()

	var sumSq, m big.Int
	m.SetUint64(mean)
	for _, x := range samples {
		t.SetUint64(x)
		t.Sub(&t, &m)
		sumSq.Add(&sumSq, t.Mul(&t, &t))
	}
	stdev = sumSq.Div(&sumSq, &n).Sqrt(&sumSq).Uint64()
	return lo, hi, mean, stdev
}

func percentile(sorted []uint64, p float64, rule percentileRule) (uint64, error) {
	n := len(sorted)
	x := float64(n) * p
	k := int(math.Floor(x))
	exact := x == float64(k)

	var a, b int
	switch {
	case rule == ruleMedian && exact:
		a, b = k, k+1
	case rule == ruleMedian:
		a, b = k+1, k+1
	case exact:
		a, b = k-1, k
	default:
		a, b = k, k
	}
	if a < 0 || b >= n {
		return 0, fmt.Errorf("%w: p%g needs samples [%d..%d] of %d", ErrAnalysisRange, p*100, a, b, n)
	}
	if a == b {
		return sorted[a], nil
	}
	return midpoint(sorted[a], sorted[b]), nil
}

// midpoint is floor((a+b)/2) without overflow.
func midpoint(a, b uint64) uint64 {
	return a/2 + b/2 + (a & b & 1)
}
