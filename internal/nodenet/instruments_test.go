package nodenet

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/nvandessel/nodenet/internal/nodetype"
)

func newTracedNet(t *testing.T, lib *FunctionLibrary) (*Nodenet, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	n, err := New(Options{Logger: discardLogger(), Functions: lib, TracerProvider: tp})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return n, rec
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestInstruments_StepSpan(t *testing.T) {
	n, rec := newTracedNet(t, nil)
	addNode(t, n, "a", nodetype.Concept, "")

	step(t, n)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "nodenet.step" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("span status = %v, want Ok", span.Status())
	}
	if v, ok := spanAttr(span, "nodenet.step"); !ok || v.AsInt64() != 1 {
		t.Errorf("nodenet.step attribute = %v (present %v), want 1", v.AsInt64(), ok)
	}
	if v, ok := spanAttr(span, "nodenet.uid"); !ok || v.AsString() != n.UID() {
		t.Errorf("nodenet.uid attribute = %q", v.AsString())
	}
}

func TestInstruments_FailedStep(t *testing.T) {
	lib := NewFunctionLibrary()
	boom := errors.New("boom")
	if err := lib.Register("fail", func(*NetAPI, *Node, SheafID, map[string]any) error { return boom }); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	n, rec := newTracedNet(t, lib)
	if err := n.RegisterNativeModule(nodetype.Definition{Name: "Failing", NodeFunctionName: "fail"}); err != nil {
		t.Fatalf("RegisterNativeModule() error = %v", err)
	}
	addNode(t, n, "f", "Failing", "")

	if err := n.Step(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Step() error = %v, want boom", err)
	}

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if got := spans[0].Status().Code; got != codes.Error {
		t.Errorf("span status = %v, want Error", got)
	}
	if len(spans[0].Events()) == 0 {
		t.Error("error was not recorded on the span")
	}
}
