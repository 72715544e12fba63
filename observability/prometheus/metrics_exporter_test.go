package prometheus

import (
	"context"
	"errors"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/eligu/se-uom-vcs-sub001/core"
	"github.com/eligu/se-uom-vcs-sub001/processor"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter(reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration("sched-a", "io", 250*time.Millisecond)
	exporter.RecordTaskPanic("sched-a", "panic")
	exporter.RecordTaskFailure("sched-a", "io")
	exporter.RecordQueueDepth("sched-a", "io", 7)
	exporter.RecordTaskRejected("sched-a", "shutdown")

	if got := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("sched-a")); got != 1 {
		t.Fatalf("panic total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.taskFailureTotal.WithLabelValues("sched-a", "io")); got != 1 {
		t.Fatalf("failure total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("sched-a", "io")); got != 7 {
		t.Fatalf("queue depth = %v, want 7", got)
	}
	if got := testutil.ToFloat64(exporter.taskRejectedTotal.WithLabelValues("sched-a", "shutdown")); got != 1 {
		t.Fatalf("rejected total = %v, want 1", got)
	}

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("sched-a", "io"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_EmptyLabelsAndNamespace(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter(reg, ExporterOptions{Namespace: "custom"})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskRejected("", "")

	if got := testutil.ToFloat64(exporter.taskRejectedTotal.WithLabelValues("unknown", "unknown")); got != 1 {
		t.Fatalf("rejected total = %v, want 1", got)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "custom_task_rejected_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("custom namespace not applied")
	}
}

// TestMetricsExporter_ObserverLifecycle verifies the lifecycle gauges
// Given: An exporter used as an observer
// When: Two units start, one completes and another is aborted
// Then: In-flight, submitted and aborted reflect those events
func TestMetricsExporter_ObserverLifecycle(t *testing.T) {
	// Arrange
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter(reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}
	a := core.UnitInfo{ID: "a", Source: "q", Category: "m1"}
	b := core.UnitInfo{ID: "b", Source: "q", Category: "m1"}
	c := core.UnitInfo{ID: "c", Source: "q", Category: "m1"}

	// Act
	for _, u := range []core.UnitInfo{a, b, c} {
		exporter.OnSubmitted(u)
	}
	exporter.OnStarted(a)
	exporter.OnStarted(b)
	exporter.OnCompleted(a, errors.New("x"), time.Millisecond)
	exporter.OnAborted(c)

	// Assert
	if got := testutil.ToFloat64(exporter.unitsInFlight.WithLabelValues("q", "m1")); got != 1 {
		t.Fatalf("in flight = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.unitsSubmitted.WithLabelValues("q", "m1")); got != 3 {
		t.Fatalf("submitted = %v, want 3", got)
	}
	if got := testutil.ToFloat64(exporter.unitsAborted.WithLabelValues("q", "m1")); got != 1 {
		t.Fatalf("aborted = %v, want 1", got)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter(reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter(reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskPanic("sched-a", nil)
	second.RecordTaskPanic("sched-a", nil)

	if got := testutil.ToFloat64(first.taskPanicTotal.WithLabelValues("sched-a")); got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

func TestMetricsExporter_NilReceiver(t *testing.T) {
	var exporter *MetricsExporter
	exporter.RecordTaskDuration("s", "c", time.Second)
	exporter.RecordTaskFailure("s", "c")
	exporter.OnStarted(core.UnitInfo{})
	exporter.OnAborted(core.UnitInfo{})
}

// TestMetricsExporter_WithSerialQueue verifies wiring into a processor queue
// Given: A serial queue whose Metrics and Observer are the exporter
// When: Two members receive one entity and one of them fails
// Then: Durations are recorded for both and the failure is counted once
func TestMetricsExporter_WithSerialQueue(t *testing.T) {
	// Arrange
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter(reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}
	q, err := processor.NewSerialQueue[int]("orders", &processor.Config{
		Logger:   core.NewNoOpLogger(),
		Metrics:  exporter,
		Observer: exporter,
	})
	if err != nil {
		t.Fatalf("NewSerialQueue failed: %v", err)
	}
	ctx := context.Background()
	ok := processor.NewFunc("ok", func(context.Context, int) (bool, error) { return true, nil })
	bad := processor.NewFunc("bad", func(context.Context, int) (bool, error) { return false, errors.New("bad") })
	if err := q.Add(ctx, ok); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := q.Add(ctx, bad); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := q.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Act
	if _, err := q.Process(ctx, 1); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	stopErr := q.Stop(ctx)

	// Assert
	if !errors.Is(stopErr, core.ErrProcessingFailure) {
		t.Fatalf("Stop error = %v, want ErrProcessingFailure", stopErr)
	}
	if got := testutil.ToFloat64(exporter.taskFailureTotal.WithLabelValues("orders", "bad")); got != 1 {
		t.Fatalf("failure total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.unitsInFlight.WithLabelValues("orders", "ok")); got != 0 {
		t.Fatalf("in flight = %v, want 0", got)
	}
	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("orders", "ok"))
	if err != nil || histCount != 1 {
		t.Fatalf("duration sample count = %d, %v", histCount, err)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
