package metrics

import (
	"slices"
	"sync"
)

// History is the append-only record of completed runs, in completion order.
type History struct {
	mu      sync.RWMutex
	entries []TimeStats
}

func (h *History) Append(ts TimeStats) {
	h.mu.Lock()
	h.entries = append(h.entries, ts)
	h.mu.Unlock()
}

// Entries returns a copy of the recorded runs.
func (h *History) Entries() []TimeStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.entries)
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
