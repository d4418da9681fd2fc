package observability

import (
	"context"
	"errors"
	"testing"
)

func TestTracerStartEndRecordsSpan(t *testing.T) {
	tr := NewTracer(10)
	ctx := context.Background()

	span := tr.StartSpan(ctx, "consensus-round")
	tr.EndSpan(span, nil)

	spans := tr.Spans(0)
	if len(spans) != 1 {
		t.Fatalf("Spans() returned %d, want 1", len(spans))
	}
	if spans[0].Operation != "consensus-round" {
		t.Errorf("Operation = %q, want %q", spans[0].Operation, "consensus-round")
	}
	if spans[0].Err != nil {
		t.Errorf("Err = %v, want nil", spans[0].Err)
	}
}

func TestTracerRecordsError(t *testing.T) {
	tr := NewTracer(10)
	span := tr.StartSpan(context.Background(), "bootstrap")
	tr.EndSpan(span, errors.New("no seeds reachable"))

	spans := tr.Spans(1)
	if spans[0].Err == nil {
		t.Error("expected recorded error")
	}
}

func TestTracerRingBufferEviction(t *testing.T) {
	tr := NewTracer(2)
	for i := 0; i < 5; i++ {
		span := tr.StartSpan(context.Background(), "op")
		tr.EndSpan(span, nil)
	}
	if got := len(tr.Spans(0)); got != 2 {
		t.Errorf("ring buffer size = %d, want 2", got)
	}
}

func TestTraceIDPropagation(t *testing.T) {
	ctx := WithTraceID(context.Background(), "fixed-trace-id")
	tr := NewTracer(10)
	span := tr.StartSpan(ctx, "op")
	if span.TraceID != "fixed-trace-id" {
		t.Errorf("TraceID = %q, want %q", span.TraceID, "fixed-trace-id")
	}
}

func TestNewTraceIDIsUnique(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()
	if a == b {
		t.Error("NewTraceID() returned the same value twice")
	}
}
