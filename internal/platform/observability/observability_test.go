package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestDisabledRecordsNothing(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), Config{Enabled: false}, slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	defer shutdown(context.Background())

	_, end := StartSpan(context.Background(), "apiclient", "GET /datasets/")
	end(nil)
	RecordMetric(context.Background(), "apiclient.requests", 1, nil)

	if len(Snapshot()) != 0 {
		t.Fatalf("expected no counters, got %v", Snapshot())
	}
	if strings.Contains(buf.String(), "obs span") {
		t.Fatalf("span logged while disabled: %s", buf.String())
	}
}

func TestSpansAndCounters(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	shutdown, err := Setup(context.Background(), Config{Enabled: true}, logger)
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}

	_, end := StartSpan(context.Background(), "apiclient", "refresh")
	end(errors.New("refresh rejected"))

	RecordMetric(context.Background(), "apiclient.requests", 1, map[string]string{"status": "200", "attempt": "original"})
	RecordMetric(context.Background(), "apiclient.requests", 1, map[string]string{"attempt": "original", "status": "200"})
	RecordMetric(context.Background(), "apiclient.refreshes", 1, nil)

	snap := Snapshot()
	if got := snap["apiclient.requests{attempt=original,status=200}"]; got != 2 {
		t.Fatalf("requests counter = %v, want 2 (%v)", got, snap)
	}
	if got := snap["apiclient.refreshes"]; got != 1 {
		t.Fatalf("refreshes counter = %v, want 1", got)
	}

	out := buf.String()
	if !strings.Contains(out, `"refresh rejected"`) || !strings.Contains(out, `"level":"ERROR"`) {
		t.Fatalf("failed span not logged at error level: %s", out)
	}

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "[observability] counters") {
		t.Fatalf("counters not flushed on shutdown: %s", buf.String())
	}
	if Enabled() {
		t.Fatalf("observability still enabled after shutdown")
	}
}
