// Package archive persists finalized reports to a Lode dataset.
//
// Each report is written as one summary record and one record per detail,
// Hive-partitioned by organization/repository/day/report_id/record_kind, so
// a report can be read back independently of the metrics store.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/Brightspace/test-reporting-action/report"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "test_reports"

// RecordKind discriminator values.
const (
	RecordKindSummary = "summary"
	RecordKindDetail  = "detail"
)

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"organization", "repository", "day", "report_id", "record_kind"}

// Archive writes reports to a Lode dataset.
type Archive struct {
	dataset lode.Dataset
	backend string
}

// NewFS creates an archive with filesystem storage rooted at root.
func NewFS(dataset, root string) (*Archive, error) {
	return NewWithFactory(dataset, "fs", lode.NewFSFactory(root))
}

// NewWithFactory creates an archive with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewWithFactory(dataset, backend string, factory lode.StoreFactory) (*Archive, error) {
	ds, err := newDataset(dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	return &Archive{dataset: ds, backend: backend}, nil
}

func newDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// Backend returns the storage backend label ("fs" or "s3").
func (a *Archive) Backend() string {
	return a.backend
}

// Dataset returns the underlying dataset for reads.
func (a *Archive) Dataset() lode.Dataset {
	return a.dataset
}

// Archive writes r as a single snapshot. The day partition is derived from
// the run's start instant in UTC; archivedAt is recorded on every record.
func (a *Archive) Archive(ctx context.Context, r *report.Report, archivedAt time.Time) error {
	records := Records(r, archivedAt)
	if _, err := a.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, fmt.Sprintf("%s/report_id=%s", a.dataset.ID(), r.ID()))
	}
	return nil
}

// Records converts a report into archive records, summary first.
// Lode HiveLayout requires records as map[string]any.
func Records(r *report.Report, archivedAt time.Time) []any {
	s := r.Summary()
	base := func(kind string) map[string]any {
		return map[string]any{
			"record_kind":      kind,
			"report_id":        r.ID().String(),
			"report_version":   r.Version(),
			"original_version": r.OriginalVersion(),
			"organization":     s.GitHub.Organization,
			"repository":       s.GitHub.Repository,
			"day":              s.Started.UTC().Format(time.DateOnly),
			"archived_at":      archivedAt.UTC().Format(time.RFC3339Nano),
		}
	}

	records := make([]any, 0, 1+r.DetailCount())

	summary := base(RecordKindSummary)
	summary["summary"] = s
	records = append(records, summary)

	for i, d := range r.Details() {
		detail := base(RecordKindDetail)
		detail["index"] = i
		detail["detail"] = d
		records = append(records, detail)
	}
	return records
}
