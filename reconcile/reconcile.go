// Package reconcile merges ambient execution context into a canonical report.
//
// Reconciliation is a pure transformation: the input document is copied, the
// copy is updated according to the inject mode, and the copy is returned.
// Exactly one log line describing the branch taken is emitted per call.
package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Brightspace/test-reporting-action/types"
)

// ProvenanceValidator checks the structural validity of summary provenance.
// Implemented by *schema.Registry.
type ProvenanceValidator interface {
	ValidateProvenance(summary map[string]any) error
}

// Logger is the log sink used for the branch line.
// Implemented by *log.Logger.
type Logger interface {
	Info(message string, fields map[string]any)
	Warn(message string, fields map[string]any)
}

// Input is the caller-supplied data to merge.
type Input struct {
	// Context is the ambient provenance. Ignored when Mode is InjectOff.
	Context types.ExecutionContext
	// Mode selects the provenance merge behavior.
	Mode types.InjectMode
	// LMS is injected into summary.lms regardless of Mode.
	LMS types.LMSInfo
}

// Reconciler merges execution context into canonical report documents.
type Reconciler struct {
	validator ProvenanceValidator
	logger    Logger
}

// New creates a Reconciler.
func New(validator ProvenanceValidator, logger Logger) *Reconciler {
	return &Reconciler{validator: validator, logger: logger}
}

// lmsField maps an LMSInfo value onto its summary.lms key.
type lmsField struct {
	key   string
	value string
}

// Reconcile returns a copy of doc with provenance and LMS metadata merged.
//
// LMS metadata is applied first and never overwrites a non-empty value the
// report already carries; such a collision fails with
// types.ErrFieldAlreadyPresent whatever the mode.
//
// Provenance (summary.github and summary.git) is merged all-or-nothing:
//   - force: always replaced by the context
//   - auto: replaced only when absent or structurally invalid
//   - off: never replaced; invalid provenance fails with types.ErrMissingContext
func (r *Reconciler) Reconcile(doc map[string]any, in Input) (map[string]any, error) {
	out := copyDocument(doc)
	summary := out["summary"].(map[string]any)

	injectedLMS, err := injectLMS(summary, in.LMS)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{"mode": string(in.Mode)}
	if len(injectedLMS) > 0 {
		fields["lms_injected"] = injectedLMS
	}

	switch in.Mode {
	case types.InjectForce:
		setProvenance(summary, in.Context)
		r.logger.Info("injected execution context (forced)", withContext(fields, in.Context))

	case types.InjectAuto:
		if verr := r.validator.ValidateProvenance(summary); verr != nil {
			setProvenance(summary, in.Context)
			fields["reason"] = verr.Error()
			r.logger.Warn("report provenance missing or invalid, injected execution context", withContext(fields, in.Context))
		} else {
			r.logger.Info("report provenance present, keeping report values", fields)
		}

	case types.InjectOff:
		if verr := r.validator.ValidateProvenance(summary); verr != nil {
			return nil, types.NewReportError(types.ErrMissingContext, "summary", provenanceProblem(verr))
		}
		r.logger.Info("context injection disabled, report provenance is valid", fields)

	default:
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidInjectMode, in.Mode)
	}

	return out, nil
}

// provenanceProblem flattens a provenance check failure into a plain cause,
// so the wrapping error classifies as missing context and nothing else.
func provenanceProblem(err error) error {
	var sve *types.SchemaViolationError
	if !errors.As(err, &sve) {
		return errors.New(err.Error())
	}
	problems := make([]string, 0, len(sve.Violations))
	for _, v := range sve.Violations {
		problems = append(problems, v.String())
	}
	return errors.New(strings.Join(problems, "; "))
}

// injectLMS sets caller-supplied LMS fields that the report lacks.
// Returns the injected keys.
func injectLMS(summary map[string]any, lms types.LMSInfo) ([]string, error) {
	if lms.IsZero() {
		return nil, nil
	}

	group, _ := summary["lms"].(map[string]any)
	if group == nil {
		group = map[string]any{}
	}

	var injected []string
	for _, f := range []lmsField{
		{key: "buildNumber", value: lms.BuildNumber},
		{key: "instanceUrl", value: lms.InstanceURL},
	} {
		if f.value == "" {
			continue
		}
		if existing, ok := group[f.key]; ok && !isEmpty(existing) {
			return nil, types.NewReportError(types.ErrFieldAlreadyPresent, "summary.lms."+f.key,
				fmt.Errorf("report already carries %v", existing))
		}
		group[f.key] = f.value
		injected = append(injected, f.key)
	}

	summary["lms"] = group
	return injected, nil
}

func setProvenance(summary map[string]any, c types.ExecutionContext) {
	summary["github"] = map[string]any{
		"organization": c.Organization,
		"repository":   c.Repository,
		"workflow":     c.Workflow,
		"runId":        c.RunID,
		"runAttempt":   c.RunAttempt,
	}
	summary["git"] = map[string]any{
		"branch": c.Branch,
		"sha":    c.SHA,
	}
}

func withContext(fields map[string]any, c types.ExecutionContext) map[string]any {
	fields["github_organization"] = c.Organization
	fields["github_repository"] = c.Repository
	fields["github_workflow"] = c.Workflow
	fields["github_run_id"] = c.RunID
	fields["github_run_attempt"] = c.RunAttempt
	fields["git_branch"] = c.Branch
	fields["git_sha"] = c.SHA
	return fields
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}

// copyDocument deep-copies doc and guarantees a summary object exists.
// A non-object summary is replaced so later schema validation reports it as
// missing fields rather than a type error.
func copyDocument(doc map[string]any) map[string]any {
	out := deepCopy(doc).(map[string]any)
	if _, ok := out["summary"].(map[string]any); !ok {
		out["summary"] = map[string]any{}
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = deepCopy(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = deepCopy(val)
		}
		return s
	default:
		return v
	}
}
