// Package tracing records one OpenTelemetry span per unit of work. The span
// opens when the unit is accepted and ends when its body returns or the unit
// is discarded, so queue wait shows up as the gap before the "started" event.
package tracing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eligu/se-uom-vcs-sub001/core"
)

const tracerName = "github.com/eligu/se-uom-vcs-sub001"

const (
	attrSource   = attribute.Key("engine.source")
	attrCategory = attribute.Key("engine.category")
	attrUnit     = attribute.Key("engine.unit_id")
	attrAborted  = attribute.Key("engine.aborted")
	attrDuration = attribute.Key("engine.run_duration_ms")
)

// SpanObserver is a core.Observer that keeps the open span of every unit
// between its callbacks.
type SpanObserver struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span // GUARDED_BY(mu)
}

var _ core.Observer = (*SpanObserver)(nil)

// NewSpanObserver returns an observer using tp, or the global provider when
// tp is nil.
func NewSpanObserver(tp trace.TracerProvider) *SpanObserver {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &SpanObserver{
		tracer: tp.Tracer(tracerName),
		spans:  make(map[string]trace.Span),
	}
}

func spanName(u core.UnitInfo) string {
	if u.Category == "" {
		return u.Source
	}
	return u.Source + "/" + u.Category
}

func (o *SpanObserver) open(u core.UnitInfo) trace.Span {
	_, span := o.tracer.Start(context.Background(), spanName(u),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attrSource.String(u.Source),
			attrCategory.String(u.Category),
			attrUnit.String(u.ID),
		))
	return span
}

// take removes and returns the open span of u, opening one if u was never
// submitted through this observer.
func (o *SpanObserver) take(u core.UnitInfo) trace.Span {
	o.mu.Lock()
	span, ok := o.spans[u.ID]
	delete(o.spans, u.ID)
	o.mu.Unlock()
	if !ok {
		span = o.open(u)
	}
	return span
}

func (o *SpanObserver) OnSubmitted(u core.UnitInfo) {
	span := o.open(u)
	o.mu.Lock()
	o.spans[u.ID] = span
	o.mu.Unlock()
}

func (o *SpanObserver) OnStarted(u core.UnitInfo) {
	o.mu.Lock()
	span, ok := o.spans[u.ID]
	if !ok {
		span = o.open(u)
		o.spans[u.ID] = span
	}
	o.mu.Unlock()
	span.AddEvent("started")
}

func (o *SpanObserver) OnCompleted(u core.UnitInfo, err error, d time.Duration) {
	span := o.take(u)
	span.SetAttributes(attrDuration.Int64(d.Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (o *SpanObserver) OnAborted(u core.UnitInfo) {
	span := o.take(u)
	span.SetAttributes(attrAborted.Bool(true))
	span.SetStatus(codes.Error, "aborted before running")
	span.End()
}

// Open returns the number of units whose span has not ended.
func (o *SpanObserver) Open() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.spans)
}
