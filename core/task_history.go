package core

import (
	"sync"
	"time"
)

const defaultTaskHistoryCapacity = 100

// History is an Observer that keeps the most recent finished units in a ring
// buffer. It is safe for concurrent use.
type History struct {
	mu      sync.Mutex
	items   []UnitRecord
	head    int
	count   int
	started map[string]time.Time
	now     func() time.Time
}

var _ Observer = (*History)(nil)

// NewHistory keeps up to capacity records; capacity < 1 selects the default.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = defaultTaskHistoryCapacity
	}
	return &History{
		items:   make([]UnitRecord, capacity),
		started: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (h *History) OnSubmitted(UnitInfo) {}

func (h *History) OnStarted(u UnitInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started[u.ID] = h.now()
}

func (h *History) OnCompleted(u UnitInfo, err error, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	finishedAt := h.now()
	startedAt, ok := h.started[u.ID]
	if !ok {
		startedAt = finishedAt.Add(-d)
	}
	delete(h.started, u.ID)
	h.addLocked(UnitRecord{
		Unit:       u,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Duration:   d,
		Failed:     err != nil,
	})
}

func (h *History) OnAborted(u UnitInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	delete(h.started, u.ID)
	h.addLocked(UnitRecord{Unit: u, StartedAt: now, FinishedAt: now, Aborted: true})
}

func (h *History) addLocked(record UnitRecord) {
	h.items[h.head] = record
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

// Recent returns up to limit records, newest first. limit <= 0 means all.
func (h *History) Recent(limit int) []UnitRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}

	if limit <= 0 || limit > h.count {
		limit = h.count
	}

	out := make([]UnitRecord, 0, limit)
	for i := range limit {
		idx := (h.head - 1 - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}

// Last returns the newest record.
func (h *History) Last() (UnitRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return UnitRecord{}, false
	}

	idx := (h.head - 1 + len(h.items)) % len(h.items)
	return h.items[idx], true
}
