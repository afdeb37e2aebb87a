package output_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/echobench/internal/baseline"
	"github.com/torosent/echobench/internal/metrics"
	"github.com/torosent/echobench/internal/output"
)

func TestHistoryEntries(t *testing.T) {
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.FixedZone("x", 3600))
	runs := []metrics.TimeStats{{Size: 16, Mean: 5}, {Size: 32, Mean: 6}}

	entries := output.HistoryEntries("suite", "mqtt", 100, runs, at)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].RunID == entries[1].RunID {
		t.Error("every run needs its own ID")
	}
	for i, e := range entries {
		if _, err := ulid.ParseStrict(e.RunID); err != nil {
			t.Errorf("entry %d: run ID %q is not a ULID: %v", i, e.RunID, err)
		}
		if e.SuiteID != "suite" || e.Transport != "mqtt" || e.Samples != 100 {
			t.Errorf("entry %d = %+v", i, e)
		}
		if e.Time.Location() != time.UTC {
			t.Errorf("entry %d time not UTC: %s", i, e.Time)
		}
		if e.Stats != runs[i] {
			t.Errorf("entry %d stats = %+v", i, e.Stats)
		}
	}
}

func TestAppendHistoryConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			runs := []metrics.TimeStats{{Size: uint64(w), Mean: 1}, {Size: uint64(w + 100), Mean: 2}}
			if err := output.AppendHistory(path, output.HistoryEntries(output.NewRunID(), "memory", 10, runs, time.Now())); err != nil {
				t.Errorf("AppendHistory() error = %v", err)
			}
		}(w)
	}
	wg.Wait()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e output.HistoryEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line %d is not JSON: %v", lines+1, err)
		}
		lines++
	}
	if lines != 8 {
		t.Fatalf("got %d lines, want 8", lines)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	b, err := baseline.Parse(data, baseline.DefaultPath)
	if err != nil {
		t.Fatalf("history file should be usable as a baseline: %v", err)
	}
	if b.Len() != 8 {
		t.Errorf("baseline sizes = %d, want 8", b.Len())
	}
}

func TestAppendHistoryNoEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	if err := output.AppendHistory(path, nil); err != nil {
		t.Fatalf("AppendHistory(nil) error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("no file expected, stat err = %v", err)
	}
}
