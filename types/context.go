// Package types defines core domain types shared across the report pipeline.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"strings"
)

// ExecutionContext is the ambient provenance of the CI run that produced a report.
// It is read-only input to reconciliation and is never persisted on its own.
type ExecutionContext struct {
	Organization string `json:"organization" yaml:"organization"`
	Repository   string `json:"repository" yaml:"repository"`
	Workflow     string `json:"workflow" yaml:"workflow"`
	RunID        int64  `json:"runId" yaml:"run_id"`
	RunAttempt   int64  `json:"runAttempt" yaml:"run_attempt"`
	Branch       string `json:"branch" yaml:"branch"`
	SHA          string `json:"sha" yaml:"sha"`
}

// Validate performs shallow presence checks.
// Structural checks (patterns, hex digests) belong to the schema registry.
func (c ExecutionContext) Validate() error {
	var missing []string
	if c.Organization == "" {
		missing = append(missing, "organization")
	}
	if c.Repository == "" {
		missing = append(missing, "repository")
	}
	if c.Workflow == "" {
		missing = append(missing, "workflow")
	}
	if c.RunAttempt < 1 {
		missing = append(missing, "runAttempt")
	}
	if c.Branch == "" {
		missing = append(missing, "branch")
	}
	if c.SHA == "" {
		missing = append(missing, "sha")
	}
	if len(missing) > 0 {
		return fmt.Errorf("execution context incomplete: %s", strings.Join(missing, ", "))
	}
	return nil
}

// LMSInfo is optional caller-supplied LMS metadata.
// Empty fields are not injected.
type LMSInfo struct {
	BuildNumber string `json:"buildNumber,omitempty" yaml:"build_number"`
	InstanceURL string `json:"instanceUrl,omitempty" yaml:"instance_url"`
}

// IsZero reports whether no LMS metadata was supplied.
func (l LMSInfo) IsZero() bool {
	return l.BuildNumber == "" && l.InstanceURL == ""
}

// InjectMode selects how execution context is merged into a report.
type InjectMode string

const (
	// InjectForce overwrites report provenance with the execution context.
	InjectForce InjectMode = "force"
	// InjectAuto injects the execution context only when report provenance
	// is absent or structurally invalid.
	InjectAuto InjectMode = "auto"
	// InjectOff requires the report to carry valid provenance already.
	InjectOff InjectMode = "off"
)

// ErrInvalidInjectMode is returned by ParseInjectMode for unknown values.
var ErrInvalidInjectMode = errors.New("inject context mode invalid")

// ParseInjectMode parses an inject mode case-insensitively.
func ParseInjectMode(s string) (InjectMode, error) {
	switch InjectMode(strings.ToLower(strings.TrimSpace(s))) {
	case InjectForce:
		return InjectForce, nil
	case InjectAuto:
		return InjectAuto, nil
	case InjectOff:
		return InjectOff, nil
	default:
		return "", fmt.Errorf("%w: %q (must be auto, force or off)", ErrInvalidInjectMode, s)
	}
}
