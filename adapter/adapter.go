// Package adapter defines the notification boundary for report submissions.
//
// A SubmissionEvent is published for every submission that reached the
// store: when all batches were accepted, and when a batch was rejected part
// way through. Dry runs publish nothing. Submission is at-least-once, so a
// rerun of the same job attempt publishes an event with the same
// DeliveryKey; receivers and adapters deduplicate on it.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Brightspace/test-reporting-action/report"
	"github.com/Brightspace/test-reporting-action/types"
)

// EventType is the event_type of every published event.
const EventType = "report_submission"

// MaxFailedTests caps the failed tests listed in one event.
const MaxFailedTests = 20

// Outcome classifies how far a submission got.
type Outcome string

const (
	// OutcomeAccepted means every batch was written.
	OutcomeAccepted Outcome = "accepted"
	// OutcomePartial means some batches were written before one was rejected.
	OutcomePartial Outcome = "partial"
	// OutcomeRejected means the first batch was rejected.
	OutcomeRejected Outcome = "rejected"
)

// Counts are the summary test counts.
type Counts struct {
	Passed  int64 `json:"passed"`
	Failed  int64 `json:"failed"`
	Skipped int64 `json:"skipped"`
	Flaky   int64 `json:"flaky"`
}

// FailedTest identifies one failed detail.
type FailedTest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Retries  int64  `json:"retries"`
	Browser  string `json:"browser,omitempty"`
}

// Rejection describes the batch the store refused.
type Rejection struct {
	Table string `json:"table"`
	Error string `json:"error"`
}

// SubmissionEvent is the payload published after a submission.
type SubmissionEvent struct {
	ContractVersion string  `json:"contract_version"`
	EventType       string  `json:"event_type"`
	Outcome         Outcome `json:"outcome"`
	DeliveryKey     string  `json:"delivery_key"`

	ReportID        string `json:"report_id"`
	ReportVersion   int    `json:"report_version"`
	OriginalVersion int    `json:"original_version"`

	Organization string `json:"organization"`
	Repository   string `json:"repository"`
	Workflow     string `json:"workflow"`
	RunID        int64  `json:"run_id"`
	RunAttempt   int64  `json:"run_attempt"`
	Branch       string `json:"branch"`
	SHA          string `json:"sha"`

	Status             string       `json:"status"`
	Started            string       `json:"started"`
	TotalDuration      int64        `json:"total_duration_ms"`
	Counts             Counts       `json:"counts"`
	FailedTests        []FailedTest `json:"failed_tests,omitempty"`
	FailedTestsOmitted int          `json:"failed_tests_omitted,omitempty"`

	Database        string     `json:"database"`
	Batches         int        `json:"batches"`
	BatchesAccepted int        `json:"batches_accepted"`
	Records         int        `json:"records"`
	Rejection       *Rejection `json:"rejection,omitempty"`

	Timestamp string `json:"timestamp"` // RFC 3339
}

// Submission describes what happened to a report's batches.
type Submission struct {
	Database string
	Batches  int
	Accepted int
	Records  int
	// Err is the submission failure, nil when every batch was accepted.
	Err error
}

// NewSubmissionEvent builds the event for r.
func NewSubmissionEvent(r *report.Report, sub Submission, at time.Time) *SubmissionEvent {
	s := r.Summary()

	outcome := OutcomeAccepted
	accepted := sub.Accepted
	var rejection *Rejection
	if sub.Err != nil {
		rejection = &Rejection{Error: sub.Err.Error()}
		var serr *types.SubmissionError
		if errors.As(sub.Err, &serr) {
			rejection.Table = serr.Table
			accepted = serr.Succeeded
		}
		outcome = OutcomeRejected
		if accepted > 0 {
			outcome = OutcomePartial
		}
	}

	failed, omitted := failedTests(r.Details())

	return &SubmissionEvent{
		ContractVersion:    types.ContractVersion,
		EventType:          EventType,
		Outcome:            outcome,
		DeliveryKey:        DeliveryKey(r.ID().String(), s.GitHub.RunAttempt, outcome),
		ReportID:           r.ID().String(),
		ReportVersion:      r.Version(),
		OriginalVersion:    r.OriginalVersion(),
		Organization:       s.GitHub.Organization,
		Repository:         s.GitHub.Repository,
		Workflow:           s.GitHub.Workflow,
		RunID:              s.GitHub.RunID,
		RunAttempt:         s.GitHub.RunAttempt,
		Branch:             s.Git.Branch,
		SHA:                s.Git.SHA,
		Status:             s.Status,
		Started:            s.Started.UTC().Format(time.RFC3339Nano),
		TotalDuration:      s.TotalDuration,
		Counts:             Counts{Passed: s.CountPassed, Failed: s.CountFailed, Skipped: s.CountSkipped, Flaky: s.CountFlaky},
		FailedTests:        failed,
		FailedTestsOmitted: omitted,
		Database:           sub.Database,
		Batches:            sub.Batches,
		BatchesAccepted:    accepted,
		Records:            sub.Records,
		Rejection:          rejection,
		Timestamp:          at.UTC().Format(time.RFC3339),
	}
}

// DeliveryKey identifies one outcome of one job attempt for a report.
func DeliveryKey(reportID string, runAttempt int64, outcome Outcome) string {
	return fmt.Sprintf("%s/%d/%s", reportID, runAttempt, outcome)
}

// failedTests lists failed details in report order, up to MaxFailedTests.
func failedTests(details []report.Detail) ([]FailedTest, int) {
	var out []FailedTest
	omitted := 0
	for _, d := range details {
		if d.Status != "failed" {
			continue
		}
		if len(out) == MaxFailedTests {
			omitted++
			continue
		}
		out = append(out, FailedTest{Name: d.Name, Location: d.Location, Retries: d.Retries, Browser: d.Browser})
	}
	return out, omitted
}

// Adapter publishes submission events to a downstream system.
type Adapter interface {
	// Publish delivers the event. Must respect context cancellation and
	// deadlines. Delivering an already delivered key is not an error.
	Publish(ctx context.Context, event *SubmissionEvent) error

	// Close releases adapter resources.
	Close() error
}

// Backoff returns the wait before retry attempt n (n >= 1):
// 500ms, 1s, 2s, ...
func Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return time.Duration(1<<uint(n-1)) * 500 * time.Millisecond
}

// Wait sleeps for the backoff of attempt n or until ctx is done.
func Wait(ctx context.Context, n int) error {
	return Sleep(ctx, Backoff(n))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
