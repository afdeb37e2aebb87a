package metrics

import (
	"errors"

	moremath "github.com/aclements/go-moremath/stats"
	"github.com/montanaflynn/stats"
	"golang.org/x/exp/constraints"
)

var errNoSamples = errors.New("metrics: no samples")

// Distribution carries floating-point descriptions of a run that TimeStats cannot hold.
type Distribution struct {
	Size           uint64  `json:"bytes" yaml:"bytes"`
	Samples        int     `json:"samples" yaml:"samples"`
	MeanNs         float64 `json:"mean_ns" yaml:"mean_ns"`
	StdevNs        float64 `json:"stdev_ns" yaml:"stdev_ns"`
	MeanCI95LowNs  float64 `json:"mean_ci95_low_ns" yaml:"mean_ci95_low_ns"`
	MeanCI95HighNs float64 `json:"mean_ci95_high_ns" yaml:"mean_ci95_high_ns"`
	P95Ns          float64 `json:"p95_ns" yaml:"p95_ns"`
}

// Describe computes the exact mean and deviation, a 95% confidence interval of
// the mean, and an interpolated p95. The interval needs at least two samples.
func Describe[T constraints.Integer](samples []T) (Distribution, error) {
	vals := toFloats(samples)
	d := Distribution{Samples: len(vals)}
	if len(vals) == 0 {
		return d, errNoSamples
	}

	var err error
	if d.MeanNs, err = stats.Mean(vals); err != nil {
		return d, err
	}
	if d.StdevNs, err = stats.StandardDeviationPopulation(vals); err != nil {
		return d, err
	}
	if d.P95Ns, err = stats.Percentile(vals, 95); err != nil {
		return d, err
	}
	if len(vals) >= 2 {
		_, d.MeanCI95LowNs, d.MeanCI95HighNs = moremath.MeanCI(vals, 0.95)
	}
	return d, nil
}

func toFloats[T constraints.Integer](xs []T) stats.Float64Data {
	out := make(stats.Float64Data, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}
