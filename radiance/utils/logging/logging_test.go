package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogDurationCarriesTraceID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := TimerLogger
	TimerLogger = zap.New(core)
	defer func() { TimerLogger = prev }()

	ctx := context.WithValue(context.Background(), TraceIDKey, "trace-123")
	LogDuration(ctx, "test_op")()

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one timer entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["trace_id"] != "trace-123" {
		t.Errorf("expected trace_id field, got %v", fields)
	}
	if fields["func"] != "test_op" {
		t.Errorf("expected func field, got %v", fields)
	}
}

func TestLogDurationIgnoresStringKeyedValue(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := TimerLogger
	TimerLogger = zap.New(core)
	defer func() { TimerLogger = prev }()

	// A plain string key is a different context key than TraceIDKey.
	ctx := context.WithValue(context.Background(), "trace_id", "stray")
	LogDuration(ctx, "test_op")()

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one timer entry, got %d", len(entries))
	}
	if _, ok := entries[0].ContextMap()["trace_id"]; ok {
		t.Error("string-keyed value must not leak into the trace_id field")
	}
}
