package timestream

import (
	"errors"
	"fmt"
	"strings"

	tstypes "github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"
	"github.com/aws/smithy-go"

	"github.com/Brightspace/test-reporting-action/types"
)

// Sentinel errors for write failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrRecordsRejected indicates the store rejected individual records.
	ErrRecordsRejected = errors.New("records rejected")

	// ErrThrottled indicates the request was rate limited.
	ErrThrottled = errors.New("rate limited")

	// ErrNotFound indicates the database or table does not exist.
	ErrNotFound = errors.New("database or table not found")

	// ErrInvalidRequest indicates the request was malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrAccessDenied indicates the scoped credentials lack write permission.
	ErrAccessDenied = errors.New("access denied")
)

// WriteError wraps a failed WriteRecords call with classification.
type WriteError struct {
	// Kind is the sentinel error for classification, nil when unclassified.
	Kind error
	// Table is the destination table.
	Table string
	// Err is the underlying SDK error.
	Err error
}

func (e *WriteError) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("write %s: %v: %v", e.Table, e.Kind, e.Err)
	}
	return fmt.Sprintf("write %s: %v", e.Table, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *WriteError) Is(target error) bool {
	return e.Kind != nil && errors.Is(e.Kind, target)
}

// wrapWriteError classifies a WriteRecords error.
// Rejected record reasons are folded into the message.
func wrapWriteError(table string, err error) error {
	if err == nil {
		return nil
	}

	var rejected *tstypes.RejectedRecordsException
	if errors.As(err, &rejected) {
		return &WriteError{
			Kind:  ErrRecordsRejected,
			Table: table,
			Err:   fmt.Errorf("%s: %w", rejectedReasons(rejected), err),
		}
	}

	return &WriteError{Kind: classifyWriteError(err), Table: table, Err: err}
}

func classifyWriteError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException":
			return ErrThrottled
		case "ResourceNotFoundException":
			return ErrNotFound
		case "ValidationException":
			return ErrInvalidRequest
		case "AccessDeniedException", "AccessDenied":
			return ErrAccessDenied
		}
	}

	switch {
	case containsAny(err.Error(), "throttl", "rate exceeded"):
		return ErrThrottled
	case containsAny(err.Error(), "AccessDenied", "not authorized"):
		return ErrAccessDenied
	default:
		return nil
	}
}

func rejectedReasons(e *tstypes.RejectedRecordsException) string {
	reasons := make([]string, 0, len(e.RejectedRecords))
	for _, r := range e.RejectedRecords {
		reason := "unknown reason"
		if r.Reason != nil {
			reason = *r.Reason
		}
		reasons = append(reasons, fmt.Sprintf("record %d: %s", r.RecordIndex, reason))
	}
	if len(reasons) == 0 {
		return "records rejected"
	}
	return strings.Join(reasons, "; ")
}

// wrapAssumeRoleError builds a CredentialError, marking authorization refusals.
func wrapAssumeRoleError(role string, err error) error {
	if err == nil {
		return nil
	}
	return &types.CredentialError{Role: role, Denied: isAccessDenied(err), Err: err}
}

func isAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "AccessDeniedException":
			return true
		case "InvalidClientTokenId", "ExpiredToken", "SignatureDoesNotMatch":
			return false
		}
	}
	return containsAny(err.Error(), "AccessDenied", "not authorized to perform")
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
