package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/geocoder89/scribe/internal/actorctx"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestLogger_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "dev")

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	log.InfoContext(ctx, "hello")
	span.End()

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}

	if rec["trace_id"] != span.SpanContext().TraceID().String() {
		t.Fatalf("trace_id missing or wrong: %v", rec)
	}
	if rec["service"] != ServiceName {
		t.Fatalf("service attr missing: %v", rec)
	}
}

func TestLogger_AddsActor(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "prod")

	ctx := actorctx.WithUserID(context.Background(), "user-1")
	log.InfoContext(ctx, "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}
	if rec["actor_id"] != "user-1" {
		t.Fatalf("actor_id missing: %v", rec)
	}
}

func TestObserveDB_ClassifiesErrors(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	_ = p.ObserveDB("users.insert", func() error {
		return &pgconn.PgError{Code: "23505"}
	})
	_ = p.ObserveDB("users.insert", func() error { return nil })

	if got := testutil.ToFloat64(p.DbErrorsTotal.WithLabelValues("users.insert", "unique_violation")); got != 1 {
		t.Fatalf("expected one unique_violation, got %v", got)
	}

	var nilProm *Prom
	want := errors.New("boom")
	if err := nilProm.ObserveDB("x", func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("nil Prom must pass the error through, got %v", err)
	}
}

func TestSweepStats(t *testing.T) {
	s := NewSweepStats()
	now := time.Now()

	s.ObserveRun(now, 20*time.Millisecond, 3, nil)
	s.ObserveRun(now, 5*time.Millisecond, 0, errors.New("db down"))

	snap := s.Snapshot()
	if snap.Runs != 2 || snap.Failures != 1 || snap.Deleted != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.MaxDuration != 20*time.Millisecond {
		t.Fatalf("unexpected max duration: %v", snap.MaxDuration)
	}
}
