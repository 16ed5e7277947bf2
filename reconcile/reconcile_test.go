package reconcile

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/Brightspace/test-reporting-action/schema"
	"github.com/Brightspace/test-reporting-action/types"
)

type logLine struct {
	level   string
	message string
	fields  map[string]any
}

type recordingLogger struct {
	lines []logLine
}

func (l *recordingLogger) Info(message string, fields map[string]any) {
	l.lines = append(l.lines, logLine{"info", message, fields})
}

func (l *recordingLogger) Warn(message string, fields map[string]any) {
	l.lines = append(l.lines, logLine{"warn", message, fields})
}

var testContext = types.ExecutionContext{
	Organization: "Acme",
	Repository:   "widgets",
	Workflow:     "ci.yml",
	RunID:        42,
	RunAttempt:   1,
	Branch:       "main",
	SHA:          strings.Repeat("f", 40),
}

func newTestReconciler(t *testing.T) (*Reconciler, *recordingLogger) {
	t.Helper()
	registry, err := schema.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	logger := &recordingLogger{}
	return New(registry, logger), logger
}

func docWithProvenance() map[string]any {
	return map[string]any{
		"id":      "00000000-0000-0000-0000-000000000000",
		"version": 2,
		"summary": map[string]any{
			"github": map[string]any{
				"organization": "TestOrganization",
				"repository":   "test-repository",
				"workflow":     "test-workflow.yml",
				"runId":        float64(12345),
				"runAttempt":   float64(1),
			},
			"git": map[string]any{
				"branch": "test/branch",
				"sha":    strings.Repeat("0", 40),
			},
			"framework": "mocha",
		},
		"details": []any{},
	}
}

func docWithoutProvenance() map[string]any {
	doc := docWithProvenance()
	summary := doc["summary"].(map[string]any)
	delete(summary, "github")
	delete(summary, "git")
	return doc
}

func provenanceOf(doc map[string]any) (any, any) {
	summary := doc["summary"].(map[string]any)
	return summary["github"], summary["git"]
}

func expectedProvenance() (map[string]any, map[string]any) {
	return map[string]any{
			"organization": "Acme",
			"repository":   "widgets",
			"workflow":     "ci.yml",
			"runId":        int64(42),
			"runAttempt":   int64(1),
		}, map[string]any{
			"branch": "main",
			"sha":    strings.Repeat("f", 40),
		}
}

func TestReconcile_Force(t *testing.T) {
	for name, doc := range map[string]map[string]any{
		"valid provenance":   docWithProvenance(),
		"missing provenance": docWithoutProvenance(),
	} {
		t.Run(name, func(t *testing.T) {
			r, logger := newTestReconciler(t)

			out, err := r.Reconcile(doc, Input{Context: testContext, Mode: types.InjectForce})
			if err != nil {
				t.Fatalf("Reconcile failed: %v", err)
			}

			wantGitHub, wantGit := expectedProvenance()
			gotGitHub, gotGit := provenanceOf(out)
			if !reflect.DeepEqual(gotGitHub, wantGitHub) || !reflect.DeepEqual(gotGit, wantGit) {
				t.Errorf("provenance not overwritten: github=%v git=%v", gotGitHub, gotGit)
			}
			if len(logger.lines) != 1 || logger.lines[0].level != "info" {
				t.Errorf("expected one info line, got %+v", logger.lines)
			}
		})
	}
}

func TestReconcile_AutoKeepsValidProvenance(t *testing.T) {
	r, logger := newTestReconciler(t)
	doc := docWithProvenance()

	out, err := r.Reconcile(doc, Input{Context: testContext, Mode: types.InjectAuto})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	wantGitHub, wantGit := provenanceOf(doc)
	gotGitHub, gotGit := provenanceOf(out)
	if !reflect.DeepEqual(gotGitHub, wantGitHub) || !reflect.DeepEqual(gotGit, wantGit) {
		t.Error("auto mode must keep valid report provenance")
	}
	if len(logger.lines) != 1 || logger.lines[0].level != "info" {
		t.Errorf("expected one info line, got %+v", logger.lines)
	}
}

func TestReconcile_AutoInjectsMissingProvenance(t *testing.T) {
	r, logger := newTestReconciler(t)

	out, err := r.Reconcile(docWithoutProvenance(), Input{Context: testContext, Mode: types.InjectAuto})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	wantGitHub, wantGit := expectedProvenance()
	gotGitHub, gotGit := provenanceOf(out)
	if !reflect.DeepEqual(gotGitHub, wantGitHub) || !reflect.DeepEqual(gotGit, wantGit) {
		t.Errorf("provenance not injected: github=%v git=%v", gotGitHub, gotGit)
	}
	if len(logger.lines) != 1 || logger.lines[0].level != "warn" {
		t.Fatalf("expected one warn line, got %+v", logger.lines)
	}
	if logger.lines[0].fields["github_repository"] != "widgets" {
		t.Errorf("warn line should describe injected context, got %v", logger.lines[0].fields)
	}
}

func TestReconcile_AutoReplacesPartialProvenanceWholesale(t *testing.T) {
	r, _ := newTestReconciler(t)
	doc := docWithProvenance()
	// Only the sha is malformed; the valid github group is replaced too.
	doc["summary"].(map[string]any)["git"].(map[string]any)["sha"] = "abc"

	out, err := r.Reconcile(doc, Input{Context: testContext, Mode: types.InjectAuto})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	wantGitHub, wantGit := expectedProvenance()
	gotGitHub, gotGit := provenanceOf(out)
	if !reflect.DeepEqual(gotGitHub, wantGitHub) || !reflect.DeepEqual(gotGit, wantGit) {
		t.Errorf("partial provenance must be fully replaced: github=%v git=%v", gotGitHub, gotGit)
	}
}

func TestReconcile_OffNeverMutatesProvenance(t *testing.T) {
	r, logger := newTestReconciler(t)
	doc := docWithProvenance()

	out, err := r.Reconcile(doc, Input{Context: testContext, Mode: types.InjectOff})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	wantGitHub, wantGit := provenanceOf(doc)
	gotGitHub, gotGit := provenanceOf(out)
	if !reflect.DeepEqual(gotGitHub, wantGitHub) || !reflect.DeepEqual(gotGit, wantGit) {
		t.Error("off mode must never change provenance")
	}
	if len(logger.lines) != 1 {
		t.Errorf("expected one log line, got %d", len(logger.lines))
	}
}

func TestReconcile_OffRequiresProvenance(t *testing.T) {
	invalid := docWithProvenance()
	invalid["summary"].(map[string]any)["github"].(map[string]any)["runAttempt"] = float64(0)

	for name, doc := range map[string]map[string]any{
		"missing": docWithoutProvenance(),
		"invalid": invalid,
	} {
		t.Run(name, func(t *testing.T) {
			r, logger := newTestReconciler(t)

			_, err := r.Reconcile(doc, Input{Context: testContext, Mode: types.InjectOff})
			if !errors.Is(err, types.ErrMissingContext) {
				t.Fatalf("expected ErrMissingContext, got %v", err)
			}
			if errors.Is(err, types.ErrSchemaViolation) {
				t.Errorf("missing context must not also classify as a schema violation: %v", err)
			}
			var sve *types.SchemaViolationError
			if errors.As(err, &sve) {
				t.Errorf("missing context must not carry violations: %v", err)
			}
			if !strings.Contains(err.Error(), "/summary") {
				t.Errorf("error should name the offending provenance field: %v", err)
			}
			if len(logger.lines) != 0 {
				t.Errorf("no branch line expected on failure, got %+v", logger.lines)
			}
		})
	}
}

func TestReconcile_LMSInjectedWhenAbsent(t *testing.T) {
	r, logger := newTestReconciler(t)
	lms := types.LMSInfo{BuildNumber: "20.24.1.12345", InstanceURL: "https://cd2024112345.devlms.desire2learn.com"}

	out, err := r.Reconcile(docWithProvenance(), Input{Context: testContext, Mode: types.InjectAuto, LMS: lms})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	got := out["summary"].(map[string]any)["lms"]
	want := map[string]any{"buildNumber": lms.BuildNumber, "instanceUrl": lms.InstanceURL}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("lms = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(logger.lines[0].fields["lms_injected"], []string{"buildNumber", "instanceUrl"}) {
		t.Errorf("log line should list injected lms fields, got %v", logger.lines[0].fields)
	}
}

func TestReconcile_LMSEmptyValueTreatedAsAbsent(t *testing.T) {
	r, _ := newTestReconciler(t)
	doc := docWithProvenance()
	doc["summary"].(map[string]any)["lms"] = map[string]any{"buildNumber": ""}

	out, err := r.Reconcile(doc, Input{Mode: types.InjectOff, LMS: types.LMSInfo{BuildNumber: "20.24.1.12345"}})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if out["summary"].(map[string]any)["lms"].(map[string]any)["buildNumber"] != "20.24.1.12345" {
		t.Error("empty report value should be filled")
	}
}

func TestReconcile_LMSCollisionFailsInEveryMode(t *testing.T) {
	for _, mode := range []types.InjectMode{types.InjectForce, types.InjectAuto, types.InjectOff} {
		for _, source := range []string{"with provenance", "without provenance"} {
			t.Run(string(mode)+" "+source, func(t *testing.T) {
				r, _ := newTestReconciler(t)

				doc := docWithProvenance()
				if source == "without provenance" {
					doc = docWithoutProvenance()
				}
				doc["summary"].(map[string]any)["lms"] = map[string]any{
					"instanceUrl": "https://runner.example.com",
				}

				_, err := r.Reconcile(doc, Input{
					Context: testContext,
					Mode:    mode,
					LMS:     types.LMSInfo{InstanceURL: "https://caller.example.com"},
				})
				if !errors.Is(err, types.ErrFieldAlreadyPresent) {
					t.Fatalf("expected ErrFieldAlreadyPresent, got %v", err)
				}
				if !strings.Contains(err.Error(), "summary.lms.instanceUrl") {
					t.Errorf("error should name the field, got %q", err.Error())
				}
			})
		}
	}
}

func TestReconcile_DoesNotMutateInput(t *testing.T) {
	r, _ := newTestReconciler(t)
	doc := docWithoutProvenance()
	snapshot := docWithoutProvenance()

	if _, err := r.Reconcile(doc, Input{Context: testContext, Mode: types.InjectForce, LMS: types.LMSInfo{BuildNumber: "20.24.1.12345"}}); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !reflect.DeepEqual(doc, snapshot) {
		t.Error("Reconcile mutated its input")
	}
}

func TestReconcile_InvalidMode(t *testing.T) {
	r, _ := newTestReconciler(t)

	_, err := r.Reconcile(docWithProvenance(), Input{Mode: "sometimes"})
	if !errors.Is(err, types.ErrInvalidInjectMode) {
		t.Fatalf("expected ErrInvalidInjectMode, got %v", err)
	}
}

func TestReconcile_MissingSummaryObject(t *testing.T) {
	r, _ := newTestReconciler(t)

	out, err := r.Reconcile(map[string]any{"id": "x", "version": 2}, Input{Context: testContext, Mode: types.InjectAuto})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	wantGitHub, _ := expectedProvenance()
	gotGitHub, _ := provenanceOf(out)
	if !reflect.DeepEqual(gotGitHub, wantGitHub) {
		t.Errorf("expected context injected into a new summary, got %v", gotGitHub)
	}
}
