package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Brightspace/test-reporting-action/adapter"
	"github.com/Brightspace/test-reporting-action/log"
	"github.com/Brightspace/test-reporting-action/metrics"
	"github.com/Brightspace/test-reporting-action/projection"
	"github.com/Brightspace/test-reporting-action/report"
	"github.com/Brightspace/test-reporting-action/timestream"
	"github.com/Brightspace/test-reporting-action/types"
)

// SubmitConfig configures a Submitter.
type SubmitConfig struct {
	Source          timestream.SourceCredentials
	RoleARN         string
	SessionDuration time.Duration
	Database        string
	Tables          projection.Tables
	DryRun          bool
}

// Submitter projects a Report and writes its batches.
type Submitter struct {
	config    SubmitConfig
	exchanger CredentialExchanger
	writer    BatchWriter
	archiver  Archiver
	notifier  adapter.Adapter
	collector *metrics.Collector
	logger    *log.Logger
	now       func() time.Time
}

// SubmitterOption configures optional Submitter collaborators.
type SubmitterOption func(*Submitter)

// WithArchiver persists every finalized report before writing.
func WithArchiver(a Archiver) SubmitterOption {
	return func(s *Submitter) { s.archiver = a }
}

// WithNotifier publishes a submission event once batches reach the store,
// whether they were all accepted or one was rejected.
func WithNotifier(n adapter.Adapter) SubmitterOption {
	return func(s *Submitter) { s.notifier = n }
}

// WithCollector records submission counters.
func WithCollector(c *metrics.Collector) SubmitterOption {
	return func(s *Submitter) { s.collector = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) SubmitterOption {
	return func(s *Submitter) { s.logger = l }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) SubmitterOption {
	return func(s *Submitter) { s.now = now }
}

// NewSubmitter creates a Submitter.
func NewSubmitter(cfg SubmitConfig, exchanger CredentialExchanger, writer BatchWriter, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		config:    cfg,
		exchanger: exchanger,
		writer:    writer,
		logger:    log.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result describes a finished submission.
type Result struct {
	Batches []projection.WriteBatch
	// Written is the number of batches accepted by the store (0 on dry run).
	Written int
	Records int
	DryRun  bool
}

// Submit projects r, exchanges credentials once and writes every batch in
// order. On dry run the batches are logged and nothing is archived, written
// or published.
//
// A failed batch stops the submission with a *types.SubmissionError carrying
// the number of batches already accepted.
func (s *Submitter) Submit(ctx context.Context, r *report.Report) (*Result, error) {
	summary := r.Summary()
	logger := s.logger.With(map[string]any{
		"report_id":          r.ID().String(),
		"github_run_id":      summary.GitHub.RunID,
		"github_run_attempt": summary.GitHub.RunAttempt,
	})

	batches := projection.NewProjector(s.config.Tables).Project(r)
	res := &Result{Batches: batches, DryRun: s.config.DryRun}
	for _, b := range batches {
		res.Records += len(b.Records)
	}
	s.collector.AddProjected(len(batches), res.Records)

	for i, b := range batches {
		fields := map[string]any{
			"batch":   i + 1,
			"total":   len(batches),
			"table":   b.Table,
			"records": len(b.Records),
		}
		if logger.DebugEnabled() {
			fields["batch_payload"] = b
		}
		logger.Info("projected write batch", fields)
	}

	creds, err := s.exchanger.AssumeRole(ctx, timestream.AssumeRoleInput{
		Source:      s.config.Source,
		RoleARN:     s.config.RoleARN,
		SessionName: SessionName(summary.GitHub.RunID, summary.GitHub.RunAttempt),
		Duration:    s.config.SessionDuration,
		Tags:        SessionTags(summary.GitHub.Organization, summary.GitHub.Repository),
	})
	s.collector.IncCredentialExchange(err == nil)
	if err != nil {
		return res, asCredentialError(s.config.RoleARN, err)
	}
	logger.Info("assumed role", map[string]any{"role": s.config.RoleARN, "expires": creds.Expires})

	if s.config.DryRun {
		s.collector.AddBatchesSkipped(len(batches))
		logger.Info("dry run, skipping archive and submission", map[string]any{"batches": len(batches)})
		return res, nil
	}

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, r, s.now()); err != nil {
			s.collector.IncArchiveWrite(false)
			return res, fmt.Errorf("archive report: %w", err)
		}
		s.collector.IncArchiveWrite(true)
		logger.Info("archived report", map[string]any{"backend": s.archiver.Backend()})
	}

	for _, b := range batches {
		if err := s.writer.WriteBatch(ctx, creds, b); err != nil {
			s.collector.IncBatchFailed()
			serr := &types.SubmissionError{
				Table:     b.Table,
				Succeeded: res.Written,
				Total:     len(batches),
				Err:       err,
			}
			s.notify(ctx, logger, r, res, serr)
			return res, serr
		}
		res.Written++
		s.collector.IncBatchWritten(len(b.Records))
	}
	logger.Info("submitted report", map[string]any{
		"batches":  res.Written,
		"records":  res.Records,
		"database": s.config.Database,
	})

	s.notify(ctx, logger, r, res, nil)
	return res, nil
}

// notify publishes the submission outcome. Failures are logged, not
// returned: the outcome in the store does not depend on the notification.
func (s *Submitter) notify(ctx context.Context, logger *log.Logger, r *report.Report, res *Result, submitErr error) {
	if s.notifier == nil {
		return
	}
	event := adapter.NewSubmissionEvent(r, adapter.Submission{
		Database: s.config.Database,
		Batches:  len(res.Batches),
		Accepted: res.Written,
		Records:  res.Records,
		Err:      submitErr,
	}, s.now())

	if err := s.notifier.Publish(ctx, event); err != nil {
		s.collector.IncNotify(false)
		logger.Warn("failed to publish submission event", map[string]any{
			"outcome": string(event.Outcome),
			"error":   err.Error(),
		})
		return
	}
	s.collector.IncNotify(true)
}

// SessionName is the STS session name for a run.
func SessionName(runID, runAttempt int64) string {
	return fmt.Sprintf("test-reporting-%d-%d", runID, runAttempt)
}

// SessionTags are the STS session tags scoping writes to a repository.
func SessionTags(organization, repository string) map[string]string {
	return map[string]string{
		"Org":  organization,
		"Repo": repository,
	}
}

func asCredentialError(role string, err error) error {
	var credErr *types.CredentialError
	if errors.As(err, &credErr) {
		return err
	}
	return &types.CredentialError{Role: role, Err: err}
}
