package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Options{Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.With(map[string]any{"report_id": "r-1"}).Info("report validated", map[string]any{"version": 2})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	entry := lines[0]
	if entry["level"] != "info" || entry["message"] != "report validated" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["report_id"] != "r-1" {
		t.Errorf("context field missing: %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["version"] != float64(2) {
		t.Errorf("fields = %v", entry["fields"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestamp missing")
	}
}

func TestLogger_DebugLevel(t *testing.T) {
	var quiet, verbose bytes.Buffer

	info, err := NewLogger(Options{Output: &quiet})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	debug, err := NewLogger(Options{Output: &verbose, Debug: true})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	info.Debug("hidden", nil)
	debug.Debug("shown", nil)

	if quiet.Len() != 0 {
		t.Errorf("debug entry emitted at info level: %s", quiet.String())
	}
	if !strings.Contains(verbose.String(), "shown") {
		t.Error("debug entry missing at debug level")
	}
	if info.DebugEnabled() || !debug.DebugEnabled() {
		t.Error("DebugEnabled does not reflect level")
	}
}

func TestLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Options{Format: FormatConsole, Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Sugar().Warnf("skipping %d batches", 3)

	out := buf.String()
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "skipping 3 batches") {
		t.Errorf("unexpected console output: %q", out)
	}
}

func TestLogger_UnknownFormat(t *testing.T) {
	if _, err := NewLogger(Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestNop(t *testing.T) {
	// Must not panic.
	Nop().With(map[string]any{"k": "v"}).Error("discarded", map[string]any{"x": 1})
}
