package output

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"

	"github.com/torosent/echobench/internal/metrics"
)

// HistoryEntry is one line of the history file.
type HistoryEntry struct {
	RunID     string            `json:"run_id"`
	SuiteID   string            `json:"suite_id"`
	Time      time.Time         `json:"time"`
	Transport string            `json:"transport"`
	Samples   int               `json:"samples"`
	Stats     metrics.TimeStats `json:"stats"`
}

// NewRunID returns a lexically sortable run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

// HistoryEntries gives every run of a suite its own ID under the shared suiteID.
func HistoryEntries(suiteID, transport string, samples int, runs []metrics.TimeStats, at time.Time) []HistoryEntry {
	entries := make([]HistoryEntry, len(runs))
	for i, ts := range runs {
		entries[i] = HistoryEntry{
			RunID:     NewRunID(),
			SuiteID:   suiteID,
			Time:      at.UTC(),
			Transport: transport,
			Samples:   samples,
			Stats:     ts,
		}
	}
	return entries
}

// AppendHistory appends entries as JSON lines to path. Concurrent writers
// are serialized through an exclusive lock on path + ".lock".
func AppendHistory(path string, entries []HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock history file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}

	enc := json.NewEncoder(f)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			_ = f.Close()
			return fmt.Errorf("write history entry: %w", err)
		}
	}
	return f.Close()
}
