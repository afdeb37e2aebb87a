package baseline_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/torosent/echobench/internal/baseline"
	"github.com/torosent/echobench/internal/metrics"
)

const report = `{
  "transport": "memory",
  "runs": [
    {"bytes": 16, "mean_ns": 10000, "stdev_ns": 100, "min_ns": 9000, "max_ns": 20000, "p50_ns": 9900, "p90_ns": 11000, "p99_ns": 15000, "p9999_ns": 19000},
    {"bytes": 1024, "mean_ns": 20000, "p99_ns": 40000}
  ]
}`

func TestParseReport(t *testing.T) {
	b, err := baseline.Parse([]byte(report), baseline.DefaultPath)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
	ts, ok := b.Lookup(16)
	if !ok {
		t.Fatal("size 16 missing")
	}
	want := metrics.TimeStats{Size: 16, Mean: 10000, Stdev: 100, Min: 9000, Max: 20000, P50: 9900, P90: 11000, P99: 15000, P9999: 19000}
	if ts != want {
		t.Errorf("Lookup(16) = %+v, want %+v", ts, want)
	}
}

func TestParseJSONPathForms(t *testing.T) {
	doc := `{"result": {"runs": [{"bytes": 8, "mean_ns": 5}]}}`
	for _, path := range []string{"result.runs", "$.result.runs"} {
		b, err := baseline.Parse([]byte(doc), path)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", path, err)
		}
		if _, ok := b.Lookup(8); !ok {
			t.Errorf("Parse(%q) lost size 8", path)
		}
	}

	b, err := baseline.Parse([]byte(`[{"bytes": 4, "mean_ns": 1}]`), "$")
	if err != nil || b.Len() != 1 {
		t.Fatalf("bare array: %v, len %d", err, b.Len())
	}
}

func TestParseHistoryLinesLatestWins(t *testing.T) {
	lines := `{"run_id": "a", "stats": {"bytes": 64, "mean_ns": 100, "p99_ns": 300}}
{"run_id": "b", "stats": {"bytes": 128, "mean_ns": 200, "p99_ns": 400}}
{"run_id": "c", "stats": {"bytes": 64, "mean_ns": 150, "p99_ns": 350}}
`
	b, err := baseline.Parse([]byte(lines), baseline.DefaultPath)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	ts, _ := b.Lookup(64)
	if ts.Mean != 150 || ts.P99 != 350 {
		t.Errorf("Lookup(64) = %+v, want the last line", ts)
	}
	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2", b.Len())
	}
}

func TestParseRejectsDocumentsWithoutRuns(t *testing.T) {
	for _, doc := range []string{`{"runs": []}`, `{"other": 1}`, `not json`, ``} {
		if _, err := baseline.Parse([]byte(doc), baseline.DefaultPath); !errors.Is(err, baseline.ErrNoRuns) {
			t.Errorf("Parse(%q) error = %v, want ErrNoRuns", doc, err)
		}
	}
}

func TestCompare(t *testing.T) {
	b, err := baseline.Parse([]byte(report), baseline.DefaultPath)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	current := []metrics.TimeStats{
		{Size: 1024, Mean: 21000, P99: 50000},
		{Size: 16, Mean: 9000, P99: 15000},
		{Size: 4096, Mean: 1, P99: 1},
	}

	deltas := b.Compare(current, 10)
	if len(deltas) != 2 {
		t.Fatalf("Compare() returned %d deltas, want 2 (4096 has no baseline)", len(deltas))
	}
	if deltas[0].Size != 16 || deltas[1].Size != 1024 {
		t.Fatalf("deltas not ordered by size: %+v", deltas)
	}
	if deltas[0].MeanChange != -10 || deltas[0].P99Change != 0 || deltas[0].Regressed {
		t.Errorf("size 16 delta = %+v", deltas[0])
	}
	if deltas[1].MeanChange != 5 || deltas[1].P99Change != 25 || !deltas[1].Regressed {
		t.Errorf("size 1024 delta = %+v", deltas[1])
	}
	if n := baseline.Regressions(deltas); n != 1 {
		t.Errorf("Regressions() = %d, want 1", n)
	}

	if baseline.Regressions(b.Compare(current, 0)) != 0 {
		t.Error("a zero limit should never mark regressions")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prev.json")
	if err := os.WriteFile(path, []byte(report), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	b, err := baseline.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if b.Source != path || b.Len() != 2 {
		t.Errorf("Load() = source %q len %d", b.Source, b.Len())
	}
	if _, err := baseline.Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}
