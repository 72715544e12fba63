// Package prometheus exports engine metrics, unit lifecycle events and
// periodic Stats() snapshots as Prometheus collectors.
package prometheus

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/eligu/se-uom-vcs-sub001/core"
)

const defaultNamespace = "engine"

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	// Namespace prefixes every metric name. Defaults to "engine".
	Namespace       string
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics and core.Observer to Prometheus
// collectors. Pass it as both Metrics and Observer of a scheduler or queue.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskPanicTotal      *prom.CounterVec
	taskFailureTotal    *prom.CounterVec
	taskRejectedTotal   *prom.CounterVec
	queueDepth          *prom.GaugeVec

	unitsSubmitted *prom.CounterVec
	unitsAborted   *prom.CounterVec
	unitsInFlight  *prom.GaugeVec
}

var (
	_ core.Metrics  = (*MetricsExporter)(nil)
	_ core.Observer = (*MetricsExporter)(nil)
)

// NewMetricsExporter creates and registers the collectors on reg
// (prom.DefaultRegisterer when nil). Registering twice on the same registry
// reuses the existing collectors.
func NewMetricsExporter(reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	namespace := normalizeLabel(opts.Namespace, defaultNamespace)
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Unit execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"source", "category"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of unit panics.",
	}, []string{"source"})
	failureVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_failure_total",
		Help:      "Total number of units that failed with an error or panic.",
	}, []string{"source", "category"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of rejected units.",
	}, []string{"source", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current number of pending units.",
	}, []string{"source", "category"})
	submittedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "units_submitted_total",
		Help:      "Total number of accepted units.",
	}, []string{"source", "category"})
	abortedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "units_aborted_total",
		Help:      "Total number of accepted units discarded before running.",
	}, []string{"source", "category"})
	inFlightVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "units_in_flight",
		Help:      "Units whose body is currently running.",
	}, []string{"source", "category"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if failureVec, err = registerCollector(reg, failureVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if submittedVec, err = registerCollector(reg, submittedVec); err != nil {
		return nil, err
	}
	if abortedVec, err = registerCollector(reg, abortedVec); err != nil {
		return nil, err
	}
	if inFlightVec, err = registerCollector(reg, inFlightVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskPanicTotal:      panicVec,
		taskFailureTotal:    failureVec,
		taskRejectedTotal:   rejectedVec,
		queueDepth:          queueDepthVec,
		unitsSubmitted:      submittedVec,
		unitsAborted:        abortedVec,
		unitsInFlight:       inFlightVec,
	}, nil
}

// RecordTaskDuration records unit execution duration.
func (m *MetricsExporter) RecordTaskDuration(source string, category string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(source, "unknown"), normalizeLabel(category, "unknown")).Observe(duration.Seconds())
}

// RecordTaskPanic records unit panic events.
func (m *MetricsExporter) RecordTaskPanic(source string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(source, "unknown")).Inc()
}

// RecordTaskFailure records units that failed.
func (m *MetricsExporter) RecordTaskFailure(source string, category string) {
	if m == nil {
		return
	}
	m.taskFailureTotal.WithLabelValues(normalizeLabel(source, "unknown"), normalizeLabel(category, "unknown")).Inc()
}

// RecordQueueDepth records the pending count of one category.
func (m *MetricsExporter) RecordQueueDepth(source string, category string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(source, "unknown"), normalizeLabel(category, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records unit rejection events.
func (m *MetricsExporter) RecordTaskRejected(source string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(source, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

func (m *MetricsExporter) OnSubmitted(u core.UnitInfo) {
	if m == nil {
		return
	}
	m.unitsSubmitted.WithLabelValues(unitLabels(u)...).Inc()
}

func (m *MetricsExporter) OnStarted(u core.UnitInfo) {
	if m == nil {
		return
	}
	m.unitsInFlight.WithLabelValues(unitLabels(u)...).Inc()
}

func (m *MetricsExporter) OnCompleted(u core.UnitInfo, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.unitsInFlight.WithLabelValues(unitLabels(u)...).Dec()
}

func (m *MetricsExporter) OnAborted(u core.UnitInfo) {
	if m == nil {
		return
	}
	m.unitsAborted.WithLabelValues(unitLabels(u)...).Inc()
}

func unitLabels(u core.UnitInfo) []string {
	return []string{normalizeLabel(u.Source, "unknown"), normalizeLabel(u.Category, "unknown")}
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
