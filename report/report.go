// Package report provides the canonical in-memory model of a validated report.
//
// A Report is built once from a canonical document that has already passed
// schema validation for the current version. It is immutable: accessors
// return copies and there are no setters.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/Brightspace/test-reporting-action/types"
)

// GitHub is the CI provenance group of a summary.
type GitHub struct {
	Organization string `json:"organization" yaml:"organization"`
	Repository   string `json:"repository" yaml:"repository"`
	Workflow     string `json:"workflow" yaml:"workflow"`
	RunID        int64  `json:"runId" yaml:"runId"`
	RunAttempt   int64  `json:"runAttempt" yaml:"runAttempt"`
}

// Git is the source provenance group of a summary.
type Git struct {
	Branch string `json:"branch" yaml:"branch"`
	SHA    string `json:"sha" yaml:"sha"`
}

// LMS is optional LMS build metadata.
type LMS struct {
	BuildNumber string `json:"buildNumber,omitempty" yaml:"buildNumber,omitempty"`
	InstanceURL string `json:"instanceUrl,omitempty" yaml:"instanceUrl,omitempty"`
}

// Summary describes the whole test run.
type Summary struct {
	GitHub          GitHub    `json:"github" yaml:"github"`
	Git             Git       `json:"git" yaml:"git"`
	LMS             *LMS      `json:"lms,omitempty" yaml:"lms,omitempty"`
	OperatingSystem string    `json:"operatingSystem" yaml:"operatingSystem"`
	Framework       string    `json:"framework" yaml:"framework"`
	Started         time.Time `json:"started" yaml:"started"`
	TotalDuration   int64     `json:"totalDuration" yaml:"totalDuration"`
	Status          string    `json:"status" yaml:"status"`
	CountPassed     int64     `json:"countPassed" yaml:"countPassed"`
	CountFailed     int64     `json:"countFailed" yaml:"countFailed"`
	CountSkipped    int64     `json:"countSkipped" yaml:"countSkipped"`
	CountFlaky      int64     `json:"countFlaky" yaml:"countFlaky"`
}

// Context returns the summary provenance as an execution context.
func (s Summary) Context() types.ExecutionContext {
	return types.ExecutionContext{
		Organization: s.GitHub.Organization,
		Repository:   s.GitHub.Repository,
		Workflow:     s.GitHub.Workflow,
		RunID:        s.GitHub.RunID,
		RunAttempt:   s.GitHub.RunAttempt,
		Branch:       s.Git.Branch,
		SHA:          s.Git.SHA,
	}
}

// Detail is a single test case result.
type Detail struct {
	Name          string    `json:"name" yaml:"name"`
	Location      string    `json:"location" yaml:"location"`
	Started       time.Time `json:"started" yaml:"started"`
	Duration      int64     `json:"duration" yaml:"duration"`
	TotalDuration int64     `json:"totalDuration" yaml:"totalDuration"`
	Status        string    `json:"status" yaml:"status"`
	Retries       int64     `json:"retries" yaml:"retries"`
	Browser       string    `json:"browser,omitempty" yaml:"browser,omitempty"`
	Type          string    `json:"type,omitempty" yaml:"type,omitempty"`
	Experience    string    `json:"experience,omitempty" yaml:"experience,omitempty"`
	Tool          string    `json:"tool,omitempty" yaml:"tool,omitempty"`
}

// Document is the plain serialized shape of a canonical report.
type Document struct {
	ID      string   `json:"id" yaml:"id"`
	Version int      `json:"version" yaml:"version"`
	Summary Summary  `json:"summary" yaml:"summary"`
	Details []Detail `json:"details" yaml:"details"`
}

// Report is an immutable, validated, current-version report.
type Report struct {
	id              uuid.UUID
	version         int
	originalVersion int
	summary         Summary
	details         []Detail
}

// New wraps a canonical document. originalVersion is the version the
// document declared before upgrade.
//
// The document must already have passed schema validation; New only decodes
// it and rejects anything the typed model cannot represent.
func New(canonical map[string]any, originalVersion int) (*Report, error) {
	data, err := json.Marshal(integralNumbers(canonical))
	if err != nil {
		return nil, fmt.Errorf("encode canonical document: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode canonical document: %w", err)
	}

	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("report id %q: %w", doc.ID, err)
	}
	if doc.Version != types.CurrentReportVersion {
		return nil, fmt.Errorf("report version %d is not canonical version %d", doc.Version, types.CurrentReportVersion)
	}
	if originalVersion < 1 || originalVersion > doc.Version {
		return nil, fmt.Errorf("original version %d out of range", originalVersion)
	}

	return &Report{
		id:              id,
		version:         doc.Version,
		originalVersion: originalVersion,
		summary:         copySummary(doc.Summary),
		details:         append([]Detail{}, doc.Details...),
	}, nil
}

// integralNumbers copies v, rewriting integral numbers written in float or
// exponent form (100.0, 1e2) as plain integers. JSON Schema counts them as
// integers, so the typed model must too. Values outside int64 are left as is.
func integralNumbers(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = integralNumbers(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = integralNumbers(e)
		}
		return out
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return x
		}
		r, ok := new(big.Rat).SetString(string(x))
		if !ok || !r.IsInt() || !r.Num().IsInt64() {
			return x
		}
		return json.Number(r.Num().String())
	case float64:
		if x == math.Trunc(x) && x >= math.MinInt64 && x < math.MaxInt64 {
			return int64(x)
		}
		return x
	default:
		return v
	}
}

// ID returns the report identifier.
func (r *Report) ID() uuid.UUID {
	return r.id
}

// Version returns the canonical version.
func (r *Report) Version() int {
	return r.version
}

// OriginalVersion returns the version the report declared before upgrade.
func (r *Report) OriginalVersion() int {
	return r.originalVersion
}

// Upgraded reports whether the source document was migrated.
func (r *Report) Upgraded() bool {
	return r.originalVersion != r.version
}

// Summary returns a copy of the summary.
func (r *Report) Summary() Summary {
	return copySummary(r.summary)
}

// Details returns a copy of the detail records in report order.
func (r *Report) Details() []Detail {
	return append([]Detail{}, r.details...)
}

// DetailCount returns the number of detail records.
func (r *Report) DetailCount() int {
	return len(r.details)
}

// Document returns the plain document shape.
func (r *Report) Document() Document {
	return Document{
		ID:      r.id.String(),
		Version: r.version,
		Summary: r.Summary(),
		Details: r.Details(),
	}
}

// MarshalJSON serializes the report as its canonical document.
// Field order is fixed, so output is stable across runs.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Document())
}

func copySummary(s Summary) Summary {
	if s.LMS != nil {
		lms := *s.LMS
		s.LMS = &lms
	}
	return s
}
