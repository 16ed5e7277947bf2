package report

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

const canonicalFixture = `{
	"id": "5b4f8d4e-2b43-4f1c-9a43-5c8b7c3d2e10",
	"version": 2,
	"summary": {
		"github": {
			"organization": "Acme",
			"repository": "widgets",
			"workflow": "ci.yml",
			"runId": 42,
			"runAttempt": 1
		},
		"git": {
			"branch": "main",
			"sha": "ffffffffffffffffffffffffffffffffffffffff"
		},
		"lms": {
			"buildNumber": "20.24.1.12345"
		},
		"operatingSystem": "linux",
		"framework": "mocha",
		"started": "2024-01-01T00:00:00.000Z",
		"totalDuration": 23857,
		"status": "passed",
		"countPassed": 2,
		"countFailed": 0,
		"countSkipped": 1,
		"countFlaky": 1
	},
	"details": [{
		"name": "test suite > flaky test",
		"location": "test/test-suite.js",
		"started": "2024-01-01T00:00:00.000Z",
		"duration": 237,
		"totalDuration": 549,
		"status": "passed",
		"retries": 1,
		"browser": "chromium"
	}, {
		"name": "test suite > skipped test",
		"location": "test/test-suite.js",
		"started": "2024-01-01T00:00:01.250Z",
		"duration": 0,
		"totalDuration": 0,
		"status": "skipped",
		"retries": 0,
		"tool": "Sample Tool"
	}]
}`

func canonical(t *testing.T) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal([]byte(canonicalFixture), &doc); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return doc
}

func TestNew_Accessors(t *testing.T) {
	r, err := New(canonical(t), 1)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if got := r.ID().String(); got != "5b4f8d4e-2b43-4f1c-9a43-5c8b7c3d2e10" {
		t.Errorf("ID = %s", got)
	}
	if r.Version() != 2 || r.OriginalVersion() != 1 || !r.Upgraded() {
		t.Errorf("versions = %d/%d upgraded=%v", r.Version(), r.OriginalVersion(), r.Upgraded())
	}
	if r.DetailCount() != 2 {
		t.Errorf("DetailCount = %d, want 2", r.DetailCount())
	}

	s := r.Summary()
	if s.GitHub.RunID != 42 || s.Git.Branch != "main" || s.CountFlaky != 1 {
		t.Errorf("summary decoded incorrectly: %+v", s)
	}
	if s.LMS == nil || s.LMS.BuildNumber != "20.24.1.12345" || s.LMS.InstanceURL != "" {
		t.Errorf("lms decoded incorrectly: %+v", s.LMS)
	}
	if !s.Started.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Started = %v", s.Started)
	}

	d := r.Details()
	if d[0].Browser != "chromium" || d[1].Tool != "Sample Tool" || d[1].Browser != "" {
		t.Errorf("details decoded incorrectly: %+v", d)
	}
	if d[1].Started.UnixMilli() != 1704067201250 {
		t.Errorf("detail started ms = %d", d[1].Started.UnixMilli())
	}
}

func TestNew_NotUpgraded(t *testing.T) {
	r, err := New(canonical(t), 2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if r.Upgraded() {
		t.Error("current-version report must not be marked upgraded")
	}
}

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(doc map[string]any)
		original int
		wantErr  string
	}{
		{
			name:     "malformed id",
			mutate:   func(doc map[string]any) { doc["id"] = "not-a-uuid" },
			original: 2,
			wantErr:  "report id",
		},
		{
			name:     "unknown field",
			mutate:   func(doc map[string]any) { doc["summary"].(map[string]any)["extra"] = true },
			original: 2,
			wantErr:  "unknown field",
		},
		{
			name:     "stale version",
			mutate:   func(doc map[string]any) { doc["version"] = 1 },
			original: 1,
			wantErr:  "not canonical",
		},
		{
			name:     "original newer than canonical",
			mutate:   func(map[string]any) {},
			original: 3,
			wantErr:  "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := canonical(t)
			tt.mutate(doc)

			_, err := New(doc, tt.original)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_IntegralNumbers(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"decimal point", json.Number("23857.0")},
		{"exponent", json.Number("2.3857e4")},
		{"float64", float64(23857)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := canonical(t)
			doc["summary"].(map[string]any)["totalDuration"] = tt.value

			r, err := New(doc, 2)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if got := r.Summary().TotalDuration; got != 23857 {
				t.Errorf("TotalDuration = %d, want 23857", got)
			}
			if _, ok := doc["summary"].(map[string]any)["totalDuration"].(json.Number); tt.name != "float64" && !ok {
				t.Error("input document was mutated")
			}
		})
	}
}

func TestNew_RejectsFractionalNumbers(t *testing.T) {
	doc := canonical(t)
	doc["summary"].(map[string]any)["totalDuration"] = json.Number("1.5")
	if _, err := New(doc, 2); err == nil {
		t.Fatal("expected error for fractional duration")
	}
}

func TestReport_Immutable(t *testing.T) {
	doc := canonical(t)
	r, err := New(doc, 2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Mutating the source document after construction has no effect.
	doc["summary"].(map[string]any)["framework"] = "jest"

	s := r.Summary()
	s.Framework = "playwright"
	s.LMS.BuildNumber = "changed"

	d := r.Details()
	d[0].Name = "changed"

	if r.Summary().Framework != "mocha" {
		t.Error("summary copy leaked into report")
	}
	if r.Summary().LMS.BuildNumber != "20.24.1.12345" {
		t.Error("lms pointer shared with caller")
	}
	if r.Details()[0].Name != "test suite > flaky test" {
		t.Error("details slice shared with caller")
	}
}

func TestReport_MarshalJSONStable(t *testing.T) {
	r, err := New(canonical(t), 1)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	first, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	second, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(first) != string(second) {
		t.Error("serialization is not stable")
	}

	// The serialized document rebuilds an equal report.
	var doc map[string]any
	if err := json.Unmarshal(first, &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	again, err := New(doc, 1)
	if err != nil {
		t.Fatalf("New from serialized document failed: %v", err)
	}
	rebuilt, _ := json.Marshal(again)
	if string(rebuilt) != string(first) {
		t.Errorf("round trip changed document:\n%s\n%s", first, rebuilt)
	}

	if strings.Contains(string(first), `"instanceUrl"`) {
		t.Error("empty optional lms field must be omitted")
	}
	if !strings.Contains(string(first), `"details":[`) {
		t.Errorf("details array missing: %s", first)
	}
}

func TestNew_EmptyDetails(t *testing.T) {
	doc := canonical(t)
	doc["details"] = []any{}

	r, err := New(doc, 2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	data, _ := json.Marshal(r)
	if !strings.Contains(string(data), `"details":[]`) {
		t.Errorf("empty details must serialize as an array: %s", data)
	}
}

func TestSummary_Context(t *testing.T) {
	r, err := New(canonical(t), 2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c := r.Summary().Context()
	if c.Organization != "Acme" || c.RunAttempt != 1 || c.SHA != strings.Repeat("f", 40) {
		t.Errorf("Context = %+v", c)
	}
}
