package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/eligu/se-uom-vcs-sub001/core"
	"github.com/eligu/se-uom-vcs-sub001/scheduler"
)

func newRecorder(t *testing.T) (*SpanObserver, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewSpanObserver(tp), sr
}

func attr(s sdktrace.ReadOnlySpan, key string) (string, bool) {
	for _, kv := range s.Attributes() {
		if string(kv.Key) == key {
			return kv.Value.Emit(), true
		}
	}
	return "", false
}

// TestSpanObserver_CompletedUnit verifies span shape for a finished unit
// Given: A span observer over an in-memory recorder
// When: A unit is submitted, started and completes with an error
// Then: One ended span carries the unit attributes, a started event and error status
func TestSpanObserver_CompletedUnit(t *testing.T) {
	// Arrange
	obs, sr := newRecorder(t)
	u := core.UnitInfo{ID: "u1", Source: "sched", Category: "io"}

	// Act
	obs.OnSubmitted(u)
	obs.OnStarted(u)
	obs.OnCompleted(u, errors.New("disk full"), 5*time.Millisecond)

	// Assert
	spans := sr.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "sched/io", s.Name())
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "disk full", s.Status().Description)
	id, ok := attr(s, "engine.unit_id")
	assert.True(t, ok)
	assert.Equal(t, "u1", id)
	var names []string
	for _, e := range s.Events() {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "started")
	assert.Contains(t, names, "exception")
	assert.Zero(t, obs.Open())
}

func TestSpanObserver_AbortedUnit(t *testing.T) {
	obs, sr := newRecorder(t)
	u := core.UnitInfo{ID: "u2", Source: "q"}

	obs.OnSubmitted(u)
	assert.Equal(t, 1, obs.Open())
	obs.OnAborted(u)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "q", spans[0].Name())
	aborted, ok := attr(spans[0], "engine.aborted")
	assert.True(t, ok)
	assert.Equal(t, "true", aborted)
	assert.Empty(t, spans[0].Events())
	assert.Zero(t, obs.Open())
}

func TestSpanObserver_StartWithoutSubmit(t *testing.T) {
	obs, sr := newRecorder(t)
	u := core.UnitInfo{ID: "u3", Source: "q", Category: "m"}

	obs.OnStarted(u)
	obs.OnCompleted(u, nil, time.Millisecond)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
}

// TestSpanObserver_WithScheduler verifies one span per scheduled unit
// Given: A bounded scheduler whose observer is the span observer
// When: Four units run and the scheduler shuts down
// Then: Four spans end and none stay open
func TestSpanObserver_WithScheduler(t *testing.T) {
	// Arrange
	obs, sr := newRecorder(t)
	pool, err := core.NewGoroutineThreadPoolWithConfig("pool", 2, &core.PoolConfig{Logger: core.NewNoOpLogger()})
	require.NoError(t, err)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)
	cpu := core.MustTaskType("cpu", 2)
	sched, err := scheduler.NewBoundedScheduler(pool, []core.TaskType{cpu}, &scheduler.Config{
		ID:       "sched",
		Logger:   core.NewNoOpLogger(),
		Observer: obs,
	})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Act
	for range 4 {
		require.NoError(t, sched.Schedule(ctx, func(context.Context) error { return nil }, cpu))
	}
	require.NoError(t, sched.Shutdown(ctx))

	// Assert
	spans := sr.Ended()
	assert.Len(t, spans, 4)
	for _, s := range spans {
		assert.Equal(t, "sched/cpu", s.Name())
	}
	assert.Zero(t, obs.Open())
}
