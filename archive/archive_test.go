package archive

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/Brightspace/test-reporting-action/report"
)

const testReportID = "5b4f8d4e-2b43-4f1c-9a43-5c8b7c3d2e10"

func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func buildReport(t *testing.T, id string, details int) *report.Report {
	t.Helper()

	ds := make([]any, 0, details)
	for i := range details {
		ds = append(ds, map[string]any{
			"name":          fmt.Sprintf("suite > test %d", i),
			"location":      "test/suite.js",
			"started":       "2024-03-05T23:59:59.000Z",
			"duration":      10,
			"totalDuration": 10,
			"status":        "passed",
			"retries":       0,
		})
	}

	r, err := report.New(map[string]any{
		"id":      id,
		"version": 2,
		"summary": map[string]any{
			"github": map[string]any{
				"organization": "Acme",
				"repository":   "widgets",
				"workflow":     "ci.yml",
				"runId":        42,
				"runAttempt":   1,
			},
			"git":             map[string]any{"branch": "main", "sha": strings.Repeat("f", 40)},
			"operatingSystem": "linux",
			"framework":       "mocha",
			"started":         "2024-03-05T23:59:59.000Z",
			"totalDuration":   10,
			"status":          "passed",
			"countPassed":     details,
			"countFailed":     0,
			"countSkipped":    0,
			"countFlaky":      0,
		},
		"details": ds,
	}, 1)
	if err != nil {
		t.Fatalf("report.New failed: %v", err)
	}
	return r
}

func TestRecords(t *testing.T) {
	archivedAt := time.Date(2024, 3, 6, 1, 0, 0, 0, time.UTC)
	records := Records(buildReport(t, testReportID, 2), archivedAt)

	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	summary := records[0].(map[string]any)
	if summary["record_kind"] != RecordKindSummary {
		t.Errorf("first record kind = %v", summary["record_kind"])
	}
	for key, want := range map[string]any{
		"organization":     "Acme",
		"repository":       "widgets",
		"day":              "2024-03-05",
		"report_id":        testReportID,
		"original_version": 1,
		"archived_at":      "2024-03-06T01:00:00Z",
	} {
		if summary[key] != want {
			t.Errorf("summary[%s] = %v, want %v", key, summary[key], want)
		}
	}

	for i, rec := range records[1:] {
		detail := rec.(map[string]any)
		if detail["record_kind"] != RecordKindDetail || detail["index"] != i {
			t.Errorf("detail %d = kind %v index %v", i, detail["record_kind"], detail["index"])
		}
	}
}

func TestArchive_WriteAndRead(t *testing.T) {
	store := lode.NewMemory()
	a, err := NewWithFactory("test_reports", "memory", sharedFactory(store))
	if err != nil {
		t.Fatalf("NewWithFactory failed: %v", err)
	}

	if err := a.Archive(t.Context(), buildReport(t, testReportID, 3), time.Now()); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	got, err := ReadReport(t.Context(), a.Dataset(), testReportID)
	if err != nil {
		t.Fatalf("ReadReport failed: %v", err)
	}

	summary, ok := got.Summary["summary"].(map[string]any)
	if !ok {
		t.Fatalf("summary payload type = %T", got.Summary["summary"])
	}
	if summary["framework"] != "mocha" {
		t.Errorf("summary framework = %v", summary["framework"])
	}
	if len(got.Details) != 3 {
		t.Fatalf("got %d details, want 3", len(got.Details))
	}
	for i, d := range got.Details {
		name := d["detail"].(map[string]any)["name"]
		if name != fmt.Sprintf("suite > test %d", i) {
			t.Errorf("detail %d name = %v", i, name)
		}
	}
}

func TestReadReport_SelectsByReportID(t *testing.T) {
	store := lode.NewMemory()
	a, err := NewWithFactory("", "memory", sharedFactory(store))
	if err != nil {
		t.Fatalf("NewWithFactory failed: %v", err)
	}

	other := "0f0f0f0f-0000-4000-8000-000000000000"
	if err := a.Archive(t.Context(), buildReport(t, testReportID, 1), time.Now()); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if err := a.Archive(t.Context(), buildReport(t, other, 2), time.Now()); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	got, err := ReadReport(t.Context(), a.Dataset(), testReportID)
	if err != nil {
		t.Fatalf("ReadReport failed: %v", err)
	}
	if got.Summary["report_id"] != testReportID || len(got.Details) != 1 {
		t.Errorf("read wrong report: %v with %d details", got.Summary["report_id"], len(got.Details))
	}
}

func TestReadReport_NotFound(t *testing.T) {
	a, err := NewWithFactory("test_reports", "memory", lode.NewMemoryFactory())
	if err != nil {
		t.Fatalf("NewWithFactory failed: %v", err)
	}

	_, err = ReadReport(t.Context(), a.Dataset(), testReportID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNewFS(t *testing.T) {
	a, err := NewFS("test_reports", t.TempDir())
	if err != nil {
		t.Fatalf("NewFS failed: %v", err)
	}
	if a.Backend() != "fs" || a.Dataset().ID() != "test_reports" {
		t.Errorf("backend %s dataset %s", a.Backend(), a.Dataset().ID())
	}
	if err := a.Archive(t.Context(), buildReport(t, testReportID, 1), time.Now()); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
}

func TestMatchesPartitionValue(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"test_reports/organization=Acme/report_id=abc/record_kind=summary/part.jsonl", true},
		{"test_reports/report_id=abcd/part.jsonl", false},
		{"test_reports/xreport_id=abc/part.jsonl", false},
	}
	for _, tt := range tests {
		if got := matchesPartitionValue(tt.path, "report_id", "abc"); got != tt.want {
			t.Errorf("matchesPartitionValue(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestParseS3Path(t *testing.T) {
	tests := []struct {
		in, bucket, prefix string
	}{
		{"reports", "reports", ""},
		{"reports/ci/archive", "reports", "ci/archive"},
	}
	for _, tt := range tests {
		b, p := ParseS3Path(tt.in)
		if b != tt.bucket || p != tt.prefix {
			t.Errorf("ParseS3Path(%q) = %q, %q", tt.in, b, p)
		}
	}
}

func TestS3Config_Validate(t *testing.T) {
	if err := (&S3Config{}).Validate(); err == nil {
		t.Error("expected error for empty bucket")
	}
	if err := (&S3Config{Bucket: "b"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"AccessDenied: you do not have access", ErrAccessDenied},
		{"open /data: permission denied", ErrPermissionDenied},
		{"NoSuchBucket: bucket missing", ErrNotFound},
		{"write: no space left on device", ErrDiskFull},
		{"context deadline exceeded", ErrTimeout},
		{"ExpiredToken: token expired", ErrAuth},
		{"dial tcp 10.0.0.1:443: connection refused", ErrNetwork},
		{"something else", ErrStorage},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := WrapWriteError(errors.New(tt.msg), "p")
			if !errors.Is(err, tt.want) {
				t.Errorf("classified %q as %v, want %v", tt.msg, err, tt.want)
			}
		})
	}
	if WrapReadError(nil, "p") != nil {
		t.Error("nil error must stay nil")
	}
}
