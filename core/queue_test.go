package core

import (
	"testing"
)

// TestFIFOQueue_FIFO verifies first-in-first-out behavior
// Given: A FIFO queue with 3 items pushed in order
// When: Items are popped from the queue
// Then: Items come out in insertion order
func TestFIFOQueue_FIFO(t *testing.T) {
	// Arrange
	q := NewFIFOQueue[string]()

	// Act
	q.Push("a")
	q.Push("b")
	q.Push("c")

	// Assert
	for i, want := range []string{"a", "b", "c"} {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("Step %d: queue is empty, want %q", i, want)
		}
		if got != want {
			t.Errorf("Step %d: Pop() = %q, want %q", i, got, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on empty queue = true, want false")
	}
}

// TestFIFOQueue_Drain verifies that Drain empties the queue in order
func TestFIFOQueue_Drain(t *testing.T) {
	q := NewFIFOQueue[int]()
	for i := range 5 {
		q.Push(i)
	}

	got := q.Drain()

	if len(got) != 5 {
		t.Fatalf("Drain() returned %d items, want 5", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Errorf("Drain()[%d] = %d, want %d", i, v, i)
		}
	}
	if !q.IsEmpty() {
		t.Errorf("queue not empty after Drain, Len() = %d", q.Len())
	}
	if q.Drain() != nil {
		t.Error("Drain() on empty queue should return nil")
	}
}

// TestFIFOQueue_Compact verifies memory compaction after a burst
// Given: A queue that grew well past compactMinCap
// When: Most items are popped
// Then: The backing array shrinks and the remaining items keep their order
func TestFIFOQueue_Compact(t *testing.T) {
	// Arrange
	q := NewFIFOQueue[int]()
	for i := range 1000 {
		q.Push(i)
	}
	q.mu.Lock()
	grown := cap(q.items)
	q.mu.Unlock()

	// Act
	for range 990 {
		q.Pop()
	}

	// Assert
	q.mu.Lock()
	shrunk := cap(q.items)
	q.mu.Unlock()
	if shrunk >= grown {
		t.Errorf("cap after pops = %d, want < %d", shrunk, grown)
	}
	if q.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", q.Len())
	}
	first, _ := q.Pop()
	if first != 990 {
		t.Errorf("Pop() after compaction = %d, want 990", first)
	}
}

// TestFIFOQueue_Clear verifies that Clear drops every item
func TestFIFOQueue_Clear(t *testing.T) {
	q := NewFIFOQueue[int]()
	q.Push(1)
	q.Push(2)

	q.Clear()

	if !q.IsEmpty() {
		t.Errorf("IsEmpty() = false after Clear, Len() = %d", q.Len())
	}
	q.Push(3)
	if v, _ := q.Pop(); v != 3 {
		t.Errorf("Pop() after Clear = %d, want 3", v)
	}
}
