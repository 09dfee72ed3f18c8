package nodenet

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/nvandessel/nodenet/internal/nodenet"

// instruments holds the step metrics and tracer.
type instruments struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
	steps    metric.Int64Counter
	failures metric.Int64Counter
}

func newInstruments(mp metric.MeterProvider, tp trace.TracerProvider) (*instruments, error) {
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	meter := mp.Meter(instrumentationName)

	inst := &instruments{tracer: tp.Tracer(instrumentationName)}
	var err error
	inst.duration, err = meter.Float64Histogram(
		"nodenet.step.duration",
		metric.WithDescription("Duration of a nodenet step in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create step duration histogram: %w", err)
	}
	inst.steps, err = meter.Int64Counter(
		"nodenet.steps",
		metric.WithDescription("Number of completed nodenet steps"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create step counter: %w", err)
	}
	inst.failures, err = meter.Int64Counter(
		"nodenet.step.failures",
		metric.WithDescription("Number of steps aborted by a node function failure"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create step failure counter: %w", err)
	}
	return inst, nil
}

// startStep opens the step span. The returned func ends it and records metrics.
func (i *instruments) startStep(ctx context.Context, nodenetUID string) func(step, nodes int, err error) {
	start := time.Now()
	ctx, span := i.tracer.Start(ctx, "nodenet.step")
	return func(step, nodes int, err error) {
		defer span.End()
		attrs := metric.WithAttributes(attribute.String("nodenet.uid", nodenetUID))
		span.SetAttributes(
			attribute.String("nodenet.uid", nodenetUID),
			attribute.Int("nodenet.step", step),
			attribute.Int("nodenet.nodes", nodes),
		)
		i.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			i.failures.Add(ctx, 1, attrs)
			return
		}
		span.SetStatus(codes.Ok, "")
		i.steps.Add(ctx, 1, attrs)
	}
}
