// Package baseline compares a suite against the runs of an earlier report.
//
// A baseline is either a JSON report written with --output json (runs live
// under "runs") or a history file with one JSON object per line (the run lives
// under "stats"). Later entries for a payload size replace earlier ones.
package baseline

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/torosent/echobench/internal/metrics"
)

// DefaultPath locates the runs array in a JSON report.
const DefaultPath = "runs"

var ErrNoRuns = errors.New("baseline: no runs found")

// Baseline holds the reference TimeStats keyed by payload size.
type Baseline struct {
	Source string
	runs   map[uint64]metrics.TimeStats
}

// Delta is the change of one payload size against the baseline. Changes are percentages; positive is slower.
type Delta struct {
	Size         uint64  `json:"bytes" yaml:"bytes"`
	BaselineMean uint64  `json:"baseline_mean_ns" yaml:"baseline_mean_ns"`
	CurrentMean  uint64  `json:"current_mean_ns" yaml:"current_mean_ns"`
	MeanChange   float64 `json:"mean_change_pct" yaml:"mean_change_pct"`
	BaselineP99  uint64  `json:"baseline_p99_ns" yaml:"baseline_p99_ns"`
	CurrentP99   uint64  `json:"current_p99_ns" yaml:"current_p99_ns"`
	P99Change    float64 `json:"p99_change_pct" yaml:"p99_change_pct"`
	Regressed    bool    `json:"regressed" yaml:"regressed"`
}

// Load reads a baseline file.
func Load(path string) (Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Baseline{}, fmt.Errorf("baseline: %w", err)
	}
	b, err := Parse(data, DefaultPath)
	if err != nil {
		return Baseline{}, fmt.Errorf("%s: %w", path, err)
	}
	b.Source = path
	return b, nil
}

// Parse reads runs from the array at path ("runs", "$.runs", "$" for a bare array).
// When there is no such array data is read as JSON lines.
func Parse(data []byte, path string) (Baseline, error) {
	b := Baseline{runs: map[uint64]metrics.TimeStats{}}

	if runs := gjson.GetBytes(data, normalizePath(path)); gjson.ValidBytes(data) && runs.IsArray() {
		runs.ForEach(func(_, run gjson.Result) bool {
			b.add(run)
			return true
		})
	} else {
		gjson.ForEachLine(string(data), func(line gjson.Result) bool {
			if stats := line.Get("stats"); stats.IsObject() {
				b.add(stats)
			}
			return true
		})
	}

	if len(b.runs) == 0 {
		return Baseline{}, fmt.Errorf("%w at %q", ErrNoRuns, path)
	}
	return b, nil
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	switch {
	case path == "" || path == "$":
		return "@this"
	case strings.HasPrefix(path, "$."):
		return path[2:]
	default:
		return path
	}
}

func (b *Baseline) add(run gjson.Result) {
	size := run.Get("bytes")
	if !size.Exists() {
		return
	}
	b.runs[size.Uint()] = metrics.TimeStats{
		Size:  size.Uint(),
		Mean:  run.Get("mean_ns").Uint(),
		Stdev: run.Get("stdev_ns").Uint(),
		Min:   run.Get("min_ns").Uint(),
		Max:   run.Get("max_ns").Uint(),
		P50:   run.Get("p50_ns").Uint(),
		P90:   run.Get("p90_ns").Uint(),
		P99:   run.Get("p99_ns").Uint(),
		P9999: run.Get("p9999_ns").Uint(),
	}
}

// Len is the number of payload sizes in the baseline.
func (b Baseline) Len() int {
	return len(b.runs)
}

// Lookup returns the baseline run for size.
func (b Baseline) Lookup(size uint64) (metrics.TimeStats, bool) {
	ts, ok := b.runs[size]
	return ts, ok
}

// Compare reports a Delta for every current run whose size is in the baseline, ordered by size.
// With maxRegression > 0 a delta is Regressed when mean or p99 grew by more than that percentage.
func (b Baseline) Compare(current []metrics.TimeStats, maxRegression float64) []Delta {
	var deltas []Delta
	for _, ts := range current {
		ref, ok := b.runs[ts.Size]
		if !ok {
			continue
		}
		d := Delta{
			Size:         ts.Size,
			BaselineMean: ref.Mean,
			CurrentMean:  ts.Mean,
			MeanChange:   change(ref.Mean, ts.Mean),
			BaselineP99:  ref.P99,
			CurrentP99:   ts.P99,
			P99Change:    change(ref.P99, ts.P99),
		}
		if maxRegression > 0 {
			d.Regressed = d.MeanChange > maxRegression || d.P99Change > maxRegression
		}
		deltas = append(deltas, d)
	}
	sort.SliceStable(deltas, func(i, j int) bool { return deltas[i].Size < deltas[j].Size })
	return deltas
}

// Regressions counts the deltas marked Regressed.
func Regressions(deltas []Delta) int {
	n := 0
	for _, d := range deltas {
		if d.Regressed {
			n++
		}
	}
	return n
}

func change(before, after uint64) float64 {
	// A zero baseline has no meaningful ratio.
	if before == 0 {
		return 0
	}
	return (float64(after) - float64(before)) * 100 / float64(before)
}
