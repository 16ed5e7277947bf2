package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/Brightspace/test-reporting-action/adapter"
)

func testEvent() *adapter.SubmissionEvent {
	return &adapter.SubmissionEvent{
		ContractVersion: "1.2.0",
		EventType:       adapter.EventType,
		Outcome:         adapter.OutcomeAccepted,
		DeliveryKey:     adapter.DeliveryKey("5b4f8d4e-2b43-4f1c-9a43-5c8b7c3d2e10", 1, adapter.OutcomeAccepted),
		ReportID:        "5b4f8d4e-2b43-4f1c-9a43-5c8b7c3d2e10",
		ReportVersion:   2,
		OriginalVersion: 2,
		Organization:    "Acme",
		Repository:      "Widgets",
		RunID:           42,
		RunAttempt:      1,
		Status:          "passed",
		Counts:          adapter.Counts{Passed: 3},
		Batches:         1,
		BatchesAccepted: 1,
		Records:         4,
		Timestamp:       "2024-03-05T12:00:00Z",
	}
}

func newAdapter(t *testing.T, cfg Config) *Adapter {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// field returns the value stored under name in a stream entry.
func field(e miniredis.StreamEntry, name string) string {
	for i := 0; i+1 < len(e.Values); i += 2 {
		if e.Values[i] == name {
			return e.Values[i+1]
		}
	}
	return ""
}

func TestPublish_AppendsToRepositoryStream(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newAdapter(t, Config{URL: "redis://" + mr.Addr()})

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	const stream = "test-reporting:acme:widgets"
	if got := a.StreamKey(testEvent()); got != stream {
		t.Fatalf("stream key = %s, want %s", got, stream)
	}
	entries, err := mr.Stream(stream)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if field(e, "outcome") != "accepted" || field(e, "report_id") != testEvent().ReportID {
		t.Errorf("entry fields = %v", e.Values)
	}

	var received adapter.SubmissionEvent
	if err := json.Unmarshal([]byte(field(e, "payload")), &received); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if received.DeliveryKey != testEvent().DeliveryKey || received.Counts.Passed != 3 {
		t.Errorf("payload = %+v", received)
	}

	marker := DeliveredKey(testEvent().DeliveryKey)
	if !mr.Exists(marker) {
		t.Fatalf("delivery marker %s not set", marker)
	}
	if ttl := mr.TTL(marker); ttl != DeliveredTTL {
		t.Errorf("marker ttl = %v, want %v", ttl, DeliveredTTL)
	}
}

func TestPublish_RepublishIsNoop(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newAdapter(t, Config{URL: "redis://" + mr.Addr()})

	for range 3 {
		if err := a.Publish(t.Context(), testEvent()); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	failed := testEvent()
	failed.Outcome = adapter.OutcomeRejected
	failed.DeliveryKey = adapter.DeliveryKey(failed.ReportID, failed.RunAttempt, failed.Outcome)
	if err := a.Publish(t.Context(), failed); err != nil {
		t.Fatalf("publish rejected: %v", err)
	}

	entries, _ := mr.Stream("test-reporting:acme:widgets")
	if len(entries) != 2 {
		t.Fatalf("expected one entry per delivery key, got %d", len(entries))
	}
}

func TestPublish_OutcomeTemplate(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newAdapter(t, Config{URL: "redis://" + mr.Addr(), Stream: "ci:{outcome}"})

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if entries, _ := mr.Stream("ci:accepted"); len(entries) != 1 {
		t.Errorf("expected entry in ci:accepted, got %d", len(entries))
	}
}

func TestPublish_TrimsStream(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newAdapter(t, Config{URL: "redis://" + mr.Addr(), MaxLen: 2})

	for i := range int64(4) {
		ev := testEvent()
		ev.RunAttempt = i + 1
		ev.DeliveryKey = adapter.DeliveryKey(ev.ReportID, ev.RunAttempt, ev.Outcome)
		if err := a.Publish(t.Context(), ev); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if entries, _ := mr.Stream("test-reporting:acme:widgets"); len(entries) != 2 {
		t.Errorf("expected stream trimmed to 2, got %d", len(entries))
	}
}

func TestPublish_FailedAppendReleasesMarker(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newAdapter(t, Config{URL: "redis://" + mr.Addr()})

	const stream = "test-reporting:acme:widgets"
	if err := mr.Set(stream, "not a stream"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := a.Publish(t.Context(), testEvent()); err == nil {
		t.Fatal("expected error appending to a string key")
	}
	if mr.Exists(DeliveredKey(testEvent().DeliveryKey)) {
		t.Fatal("marker kept after failed append")
	}

	mr.Del(stream)
	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("republish: %v", err)
	}
	if entries, _ := mr.Stream(stream); len(entries) != 1 {
		t.Errorf("expected 1 entry after republish, got %d", len(entries))
	}
}

func TestPublish_ServerError(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newAdapter(t, Config{URL: "redis://" + mr.Addr(), Retries: 1})

	mr.SetError("LOADING server is loading")
	if err := a.Publish(t.Context(), testEvent()); err == nil {
		t.Fatal("expected error while server fails")
	}
	mr.SetError("")
	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish after recovery: %v", err)
	}
}

func TestPublish_ExhaustsRetries(t *testing.T) {
	a := newAdapter(t, Config{URL: "redis://127.0.0.1:1", Retries: 1, Timeout: 100 * time.Millisecond})

	if err := a.Publish(t.Context(), testEvent()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	a := newAdapter(t, Config{URL: "redis://127.0.0.1:1", Retries: 5, Timeout: 10 * time.Second})

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	if err := a.Publish(ctx, testEvent()); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty URL", Config{}},
		{"invalid URL", Config{URL: "not-a-redis-url"}},
		{"negative retries", Config{URL: "redis://localhost:6379", Retries: -1}},
		{"negative max length", Config{URL: "redis://localhost:6379", MaxLen: -1}},
		{"unknown placeholder", Config{URL: "redis://localhost:6379", Stream: "ci:{branch}"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNew_DefaultsApplied(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newAdapter(t, Config{URL: "redis://" + mr.Addr()})

	if a.config.Stream != DefaultStream {
		t.Errorf("expected default stream %q, got %q", DefaultStream, a.config.Stream)
	}
	if a.config.MaxLen != DefaultMaxLen {
		t.Errorf("expected default max length %d, got %d", DefaultMaxLen, a.config.MaxLen)
	}
	if a.config.Timeout != DefaultTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultTimeout, a.config.Timeout)
	}
}

func TestClose_ClosesConnection(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Publish(t.Context(), testEvent()); err == nil {
		t.Fatal("expected error after close")
	}
}
