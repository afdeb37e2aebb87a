// Package threshold checks benchmark results against assertions such as "rtt:p99 < 250".
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/torosent/echobench/internal/metrics"
)

const (
	MetricRTT  = "rtt"
	MetricRuns = "runs"
)

var (
	rttAggregates  = []string{"min", "max", "mean", "stdev", "p50", "p90", "p99", "p9999"}
	runsAggregates = []string{"completed", "failed"}
	operators      = []string{"<", "<=", ">", ">=", "=="}
	thresholdRE    = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // "rtt" or "runs"
	Aggregate string  // e.g. "p99", "mean", "failed"
	Operator  string  // e.g. "<", "<=", ">", ">=", "=="
	Value     float64 // microseconds for rtt, a count for runs
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold. PayloadSize is set for rtt thresholds.
type Result struct {
	Threshold   Threshold
	PayloadSize uint64
	Actual      float64
	Pass        bool
	Message     string
}

// Suite is the input thresholds are evaluated against.
type Suite struct {
	Runs   []metrics.TimeStats
	Failed int
}

// Evaluator evaluates thresholds against benchmark results.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks rtt thresholds once per completed run and runs thresholds once per suite.
func (e *Evaluator) Evaluate(suite Suite) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	var results []Result
	for _, t := range e.thresholds {
		switch t.Metric {
		case MetricRTT:
			for _, ts := range suite.Runs {
				actual, err := rttValue(t.Aggregate, ts)
				r := e.evaluateOne(t, actual, err)
				r.PayloadSize = ts.Size
				if err == nil {
					r.Message = fmt.Sprintf("%s [%d bytes]", r.Message, ts.Size)
				}
				results = append(results, r)
			}
		case MetricRuns:
			actual, err := runsValue(t.Aggregate, suite)
			results = append(results, e.evaluateOne(t, actual, err))
		default:
			results = append(results, e.evaluateOne(t, 0, fmt.Errorf("unknown metric: %s", t.Metric)))
		}
	}
	return results
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOne(t Threshold, actual float64, err error) Result {
	if err != nil {
		return Result{
			Threshold: t,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "rtt:p99 < 250"      (round-trip percentile in microseconds, checked per payload size)
// - "rtt:mean <= 80.5"   (mean round trip in microseconds)
// - "rtt:stdev < 40"     (population standard deviation in microseconds)
// - "runs:failed == 0"   (number of failed runs in the suite)
// - "runs:completed >= 11"
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdRE.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'rtt:p99 < 250')", s)
	}
	metric, aggregate, operator, valueStr := matches[1], matches[2], matches[3], matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	var aggregates []string
	switch metric {
	case MetricRTT:
		aggregates = rttAggregates
	case MetricRuns:
		aggregates = runsAggregates
	default:
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: rtt, runs)", metric)
	}
	if !slices.Contains(aggregates, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(aggregates, ", "))
	}
	if !slices.Contains(operators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: %s)", operator, strings.Join(operators, ", "))
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}

	return result, nil
}

func rttValue(aggregate string, ts metrics.TimeStats) (float64, error) {
	var ns uint64
	switch aggregate {
	case "min":
		ns = ts.Min
	case "max":
		ns = ts.Max
	case "mean":
		ns = ts.Mean
	case "stdev":
		ns = ts.Stdev
	case "p50":
		ns = ts.P50
	case "p90":
		ns = ts.P90
	case "p99":
		ns = ts.P99
	case "p9999":
		ns = ts.P9999
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for rtt", aggregate)
	}
	return float64(ns) / 1e3, nil
}

func runsValue(aggregate string, suite Suite) (float64, error) {
	switch aggregate {
	case "completed":
		return float64(len(suite.Runs)), nil
	case "failed":
		return float64(suite.Failed), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for runs (use 'completed' or 'failed')", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
