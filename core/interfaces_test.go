package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Test PanicHandler
// =============================================================================

// TestPanicHandler is a mock panic handler for testing
type TestPanicHandler struct {
	mu    sync.Mutex
	calls []PanicCall
}

type PanicCall struct {
	Source    string
	WorkerID  int
	PanicInfo any
}

func NewTestPanicHandler() *TestPanicHandler {
	return &TestPanicHandler{}
}

func (h *TestPanicHandler) HandlePanic(ctx context.Context, source string, workerID int, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, PanicCall{Source: source, WorkerID: workerID, PanicInfo: panicInfo})
}

func (h *TestPanicHandler) GetCalls() []PanicCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]PanicCall(nil), h.calls...)
}

func TestDefaultPanicHandler(t *testing.T) {
	// Given: A DefaultPanicHandler without a logger
	handler := &DefaultPanicHandler{Logger: NewNoOpLogger()}

	// When: HandlePanic is called
	handler.HandlePanic(context.Background(), "test-pool", 42, "test panic", []byte("stack trace"))

	// Then: No panic should occur (handler should not crash)
}

// =============================================================================
// Test Metrics
// =============================================================================

// TestMetrics is a mock metrics collector for testing
type TestMetrics struct {
	mu         sync.Mutex
	durations  []DurationMetric
	panics     []PanicMetric
	failures   []string
	depths     []int
	rejections []string
}

type DurationMetric struct {
	Source   string
	Category string
	Duration time.Duration
}

type PanicMetric struct {
	Source    string
	PanicInfo any
}

func NewTestMetrics() *TestMetrics {
	return &TestMetrics{}
}

func (m *TestMetrics) RecordTaskDuration(source string, category string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations = append(m.durations, DurationMetric{Source: source, Category: category, Duration: duration})
}

func (m *TestMetrics) RecordTaskPanic(source string, panicInfo any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics = append(m.panics, PanicMetric{Source: source, PanicInfo: panicInfo})
}

func (m *TestMetrics) RecordTaskFailure(source string, category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, source+"/"+category)
}

func (m *TestMetrics) RecordQueueDepth(source string, category string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depths = append(m.depths, depth)
}

func (m *TestMetrics) RecordTaskRejected(source string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections = append(m.rejections, reason)
}

func (m *TestMetrics) GetTaskPanics() []PanicMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PanicMetric(nil), m.panics...)
}

func (m *TestMetrics) GetTaskRejections() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.rejections...)
}

func TestNilMetrics(t *testing.T) {
	// Given: A NilMetrics
	metrics := &NilMetrics{}

	// When: All methods are called
	metrics.RecordTaskDuration("test", "cat", time.Second)
	metrics.RecordTaskPanic("test", "panic")
	metrics.RecordTaskFailure("test", "cat")
	metrics.RecordQueueDepth("test", "cat", 10)
	metrics.RecordTaskRejected("test", "shutdown")

	// Then: No panic should occur (all methods are no-ops)
}

// =============================================================================
// Test Observer
// =============================================================================

type countingObserver struct {
	mu        sync.Mutex
	submitted int
	started   int
	completed int
	aborted   int
	lastErr   error
}

func (o *countingObserver) OnSubmitted(UnitInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.submitted++
}

func (o *countingObserver) OnStarted(UnitInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *countingObserver) OnCompleted(_ UnitInfo, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed++
	o.lastErr = err
}

func (o *countingObserver) OnAborted(UnitInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.aborted++
}

// TestObservers_FanOut verifies that every observer receives every callback
// Given: Two counting observers and a nil entry
// When: Observers combines them and each callback fires once
// Then: Both observers see every callback and nil is skipped
func TestObservers_FanOut(t *testing.T) {
	a, b := &countingObserver{}, &countingObserver{}
	o := Observers(a, nil, b)
	u := UnitInfo{ID: "u1", Source: "s", Category: "c"}
	boom := errors.New("boom")

	o.OnSubmitted(u)
	o.OnStarted(u)
	o.OnCompleted(u, boom, time.Millisecond)
	o.OnAborted(u)

	for name, c := range map[string]*countingObserver{"a": a, "b": b} {
		if c.submitted != 1 || c.started != 1 || c.completed != 1 || c.aborted != 1 {
			t.Errorf("%s: counts = %+v, want one of each", name, c)
		}
		if !errors.Is(c.lastErr, boom) {
			t.Errorf("%s: lastErr = %v, want boom", name, c.lastErr)
		}
	}
}

func TestObservers_Collapse(t *testing.T) {
	if _, ok := Observers().(NopObserver); !ok {
		t.Error("Observers() should return NopObserver")
	}
	a := &countingObserver{}
	if got := Observers(nil, a); got != Observer(a) {
		t.Errorf("Observers(nil, a) = %T, want the single observer", got)
	}
}
