package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// TestHistory_RecentOrderAndLimit verifies the ring buffer
// Given: A history with capacity 3
// When: Five units complete
// Then: Only the three newest are kept, newest first
func TestHistory_RecentOrderAndLimit(t *testing.T) {
	// Arrange
	h := NewHistory(3)

	// Act
	for i := range 5 {
		u := UnitInfo{ID: fmt.Sprintf("u%d", i), Source: "s", Category: "c"}
		h.OnStarted(u)
		h.OnCompleted(u, nil, time.Millisecond)
	}

	// Assert
	records := h.Recent(0)
	if len(records) != 3 {
		t.Fatalf("len(Recent(0)) = %d, want 3", len(records))
	}
	for i, want := range []string{"u4", "u3", "u2"} {
		if records[i].Unit.ID != want {
			t.Errorf("Recent(0)[%d].Unit.ID = %s, want %s", i, records[i].Unit.ID, want)
		}
	}
	if got := h.Recent(1); len(got) != 1 || got[0].Unit.ID != "u4" {
		t.Errorf("Recent(1) = %+v", got)
	}
}

// TestHistory_FailedAndAborted verifies record flags and timestamps
func TestHistory_FailedAndAborted(t *testing.T) {
	h := NewHistory(0)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	h.now = func() time.Time { return now }

	failed := UnitInfo{ID: "f"}
	h.OnStarted(failed)
	now = base.Add(time.Second)
	h.OnCompleted(failed, errors.New("x"), time.Second)

	aborted := UnitInfo{ID: "a"}
	h.OnSubmitted(aborted)
	h.OnAborted(aborted)

	last, ok := h.Last()
	if !ok || !last.Aborted || last.Unit.ID != "a" {
		t.Errorf("Last() = %+v, %v", last, ok)
	}
	first := h.Recent(2)[1]
	if !first.Failed || !first.StartedAt.Equal(base) || !first.FinishedAt.Equal(base.Add(time.Second)) {
		t.Errorf("failed record = %+v", first)
	}
}

func TestHistory_Empty(t *testing.T) {
	h := NewHistory(4)
	if h.Recent(0) != nil {
		t.Error("Recent on empty history should be nil")
	}
	if _, ok := h.Last(); ok {
		t.Error("Last on empty history should report false")
	}
}

// TestIDGenerators verifies both id generators
func TestIDGenerators(t *testing.T) {
	seq := NewSequenceGenerator()
	if got := seq.NewID("q"); got != "q-1" {
		t.Errorf("NewID(q) = %s, want q-1", got)
	}
	if got := seq.NewID(""); got != "2" {
		t.Errorf("NewID() = %s, want 2", got)
	}
	if got := NewSequenceGenerator().NewID("q"); got != "q-1" {
		t.Errorf("separate generators should not share counters, got %s", got)
	}

	gen := NewUUIDGenerator()
	a, b := gen.NewID("unit"), gen.NewID("unit")
	if a == b || !strings.HasPrefix(a, "unit-") {
		t.Errorf("UUID ids = %s, %s", a, b)
	}
}
