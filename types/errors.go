package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for pipeline failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrReportUnreadable indicates the report could not be read or parsed.
	ErrReportUnreadable = errors.New("report is not readable")

	// ErrUnknownVersion indicates a missing, malformed or unsupported report version.
	ErrUnknownVersion = errors.New("unknown report version")

	// ErrMissingContext indicates provenance is absent and may not be injected.
	ErrMissingContext = errors.New("missing execution context")

	// ErrFieldAlreadyPresent indicates caller metadata would clobber report metadata.
	ErrFieldAlreadyPresent = errors.New("field already present in report")

	// ErrSchemaViolation indicates the report does not conform to its schema.
	ErrSchemaViolation = errors.New("report does not conform to schema")

	// ErrCredentialExchange indicates scoped credentials could not be obtained.
	ErrCredentialExchange = errors.New("credential exchange failed")

	// ErrAccessDenied indicates the credential exchange was refused by policy.
	ErrAccessDenied = errors.New("access denied")

	// ErrSubmissionFailed indicates a write batch was not accepted.
	ErrSubmissionFailed = errors.New("submission failed")
)

// ReportError wraps an underlying error with report classification.
// It preserves the original error in the chain for inspection via errors.As.
type ReportError struct {
	// Kind is the sentinel error for classification (e.g., ErrUnknownVersion).
	Kind error
	// Field is the report field involved, if any.
	Field string
	// Err is the underlying error, if any.
	Err error
}

func (e *ReportError) Error() string {
	msg := e.Kind.Error()
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Field)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *ReportError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *ReportError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewReportError creates a classified report error.
func NewReportError(kind error, field string, err error) *ReportError {
	return &ReportError{Kind: kind, Field: field, Err: err}
}

// Violation is a single violated schema constraint.
type Violation struct {
	// Path is the JSON pointer of the offending value ("" is the document root).
	Path string `json:"path"`
	// Message describes the violated constraint.
	Message string `json:"message"`
}

func (v Violation) String() string {
	path := v.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s: %s", path, v.Message)
}

// SchemaViolationError aggregates every violated constraint of a report.
type SchemaViolationError struct {
	Version    int
	Violations []Violation
}

func (e *SchemaViolationError) Error() string {
	lines := make([]string, 0, len(e.Violations)+1)
	lines = append(lines, fmt.Sprintf("%v (version %d, %d violations)", ErrSchemaViolation, e.Version, len(e.Violations)))
	for _, v := range e.Violations {
		lines = append(lines, "  - "+v.String())
	}
	return strings.Join(lines, "\n")
}

// Is reports whether target is ErrSchemaViolation.
func (e *SchemaViolationError) Is(target error) bool {
	return target == ErrSchemaViolation
}

// CredentialError reports a failed credential exchange.
// Denied distinguishes an authorization refusal from other failures so the
// caller can surface remediation guidance.
type CredentialError struct {
	Role   string
	Denied bool
	Err    error
}

func (e *CredentialError) Error() string {
	if e.Denied {
		return fmt.Sprintf("%v: %v assuming role %s: %v (check that this repository is allowed to assume the role and that the supplied credentials are current)",
			ErrCredentialExchange, ErrAccessDenied, e.Role, e.Err)
	}
	return fmt.Sprintf("%v: assuming role %s: %v", ErrCredentialExchange, e.Role, e.Err)
}

// Unwrap returns the underlying error.
func (e *CredentialError) Unwrap() error {
	return e.Err
}

// Is matches ErrCredentialExchange, and ErrAccessDenied when Denied.
func (e *CredentialError) Is(target error) bool {
	if target == ErrCredentialExchange {
		return true
	}
	return e.Denied && target == ErrAccessDenied
}

// SubmissionError reports a failed write batch.
// Batches before the failing one were already accepted and are not rolled back.
type SubmissionError struct {
	Table     string
	Succeeded int
	Total     int
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%v: batch %d of %d (table %s) rejected after %d accepted: %v",
		ErrSubmissionFailed, e.Succeeded+1, e.Total, e.Table, e.Succeeded, e.Err)
}

// Unwrap returns the underlying error.
func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrSubmissionFailed.
func (e *SubmissionError) Is(target error) bool {
	return target == ErrSubmissionFailed
}
