// Package pipeline orchestrates a single report submission.
//
// Finalize turns raw report bytes into a validated canonical Report:
// parse, upgrade, reconcile, validate, wrap. Submit projects the Report into
// write batches, exchanges credentials once and writes the batches strictly in
// order (summary first). Every step fails fast; nothing is retried and no
// accepted batch is rolled back.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/Brightspace/test-reporting-action/projection"
	"github.com/Brightspace/test-reporting-action/report"
	"github.com/Brightspace/test-reporting-action/timestream"
	"github.com/Brightspace/test-reporting-action/types"
)

// ReportSource supplies the raw report bytes.
type ReportSource interface {
	Load(ctx context.Context) ([]byte, error)
}

// ContextProvider supplies the ambient execution context.
// Implemented by *ghactions.EnvProvider.
type ContextProvider interface {
	ExecutionContext(ctx context.Context) (types.ExecutionContext, error)
}

// CredentialExchanger obtains scoped write credentials.
// Implemented by *timestream.RoleExchanger.
type CredentialExchanger interface {
	AssumeRole(ctx context.Context, in timestream.AssumeRoleInput) (aws.Credentials, error)
}

// BatchWriter submits one write batch.
// Implemented by *timestream.Writer.
type BatchWriter interface {
	WriteBatch(ctx context.Context, creds aws.Credentials, batch projection.WriteBatch) error
}

// Archiver persists a finalized report.
// Implemented by *archive.Archive.
type Archiver interface {
	Archive(ctx context.Context, r *report.Report, archivedAt time.Time) error
	Backend() string
}

// FileSource reads the report from a local file.
type FileSource struct {
	Path string
}

// Load reads the whole file.
func (s FileSource) Load(_ context.Context) ([]byte, error) {
	if s.Path == "" {
		return nil, fmt.Errorf("report path is empty")
	}
	return os.ReadFile(s.Path)
}

// BytesSource serves an in-memory report.
type BytesSource []byte

// Load returns the bytes.
func (s BytesSource) Load(_ context.Context) ([]byte, error) {
	return s, nil
}

// StaticContext is a ContextProvider that always returns the same context.
type StaticContext types.ExecutionContext

// ExecutionContext returns the context after a presence check.
func (c StaticContext) ExecutionContext(_ context.Context) (types.ExecutionContext, error) {
	ec := types.ExecutionContext(c)
	if err := ec.Validate(); err != nil {
		return types.ExecutionContext{}, err
	}
	return ec, nil
}
