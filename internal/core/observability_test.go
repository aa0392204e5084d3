package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if rec.Name() == "" {
		t.Fatalf("expected generated name")
	}
	ctx := context.Background()
	rec.Observe(ctx, "create_owner", true, 5*time.Millisecond)
	rec.Observe(ctx, "create_owner", false, 3*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	snap := rec.Snapshot()
	if snap.Results["create_owner"]["success"] != 1 || snap.Results["create_owner"]["error"] != 1 {
		t.Fatalf("unexpected counters: %+v", snap.Results)
	}
	if snap.DurationsMS["create_owner"] < 8 {
		t.Fatalf("durations not accumulated: %+v", snap.DurationsMS)
	}
}

func TestJSONTraceTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "approve_activation")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "deny_activation")
	span.End(errors.New("boom"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Status != "success" || entries[1].Status != "error" || entries[1].Error != "boom" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if !strings.Contains(buf.String(), "approve_activation") {
		t.Fatalf("span not encoded to writer")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	rec.Observe(context.Background(), "check_in", true, 2*time.Millisecond)
	rec.Observe(context.Background(), "check_in", false, time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	if !names["legacycore_service_operation_duration_seconds"] || !names["legacycore_service_operation_results_total"] {
		t.Fatalf("collectors missing: %v", names)
	}

	// Double registration fails.
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestServiceInstrumentation(t *testing.T) {
	now := time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC)
	metrics := NewExpvarMetricsRecorder("")
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	svc := NewInMemoryService(DefaultRulesEngine(),
		WithClock(func() time.Time { return now }),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
	)
	ctx := context.Background()

	if _, _, err := svc.CreateOwner(ctx, OwnerAccount{Email: "ada@example.com"}); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	if _, _, err := svc.UpdateOwner(ctx, "missing", func(*OwnerAccount) error { return nil }); err == nil {
		t.Fatalf("expected error")
	}

	snap := metrics.Snapshot()
	if snap.Results["create_owner"]["success"] != 1 || snap.Results["update_owner"]["error"] != 1 {
		t.Fatalf("metrics not recorded: %+v", snap.Results)
	}
	var sawFailure bool
	for _, entry := range tracer.Entries() {
		if entry.Operation == "update_owner" && entry.Status == "error" {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Fatalf("trace span for failed operation missing")
	}
}
