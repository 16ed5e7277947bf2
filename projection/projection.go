// Package projection converts a canonical report into time-series write batches.
//
// The batch shape mirrors the Timestream WriteRecords request: multi-measure
// records with string-encoded typed values, millisecond epoch timestamps
// rendered as strings, and per-batch common attributes. Projection is
// deterministic: the same report always yields identical batches.
package projection

import (
	"strconv"
	"time"

	"github.com/Brightspace/test-reporting-action/report"
)

// MaxBatchRecords is the per-request record limit of the metrics store.
const MaxBatchRecords = 100

// Measure group names.
const (
	SummaryMeasureName = "summary"
	DetailMeasureName  = "detail"
)

// ReportIDDimension is the common dimension shared by every batch of a report.
const ReportIDDimension = "report_id"

// ValueType tags a measure value.
type ValueType string

const (
	ValueBigint  ValueType = "BIGINT"
	ValueVarchar ValueType = "VARCHAR"
)

// MultiValueType is the measure value type of every projected record.
const MultiValueType = "MULTI"

// TimeUnitMilliseconds is the time unit of every projected record.
const TimeUnitMilliseconds = "MILLISECONDS"

// Dimension is a name/value record attribute.
type Dimension struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MeasureValue is a typed measure, always string encoded.
type MeasureValue struct {
	Name  string    `json:"name"`
	Value string    `json:"value"`
	Type  ValueType `json:"type"`
}

// Record is a single time-stamped multi-measure record.
type Record struct {
	Time          string         `json:"time"`
	Dimensions    []Dimension    `json:"dimensions"`
	MeasureValues []MeasureValue `json:"measureValues"`
}

// CommonAttributes apply to every record of a batch.
type CommonAttributes struct {
	Dimensions       []Dimension `json:"dimensions"`
	MeasureName      string      `json:"measureName"`
	MeasureValueType string      `json:"measureValueType"`
	TimeUnit         string      `json:"timeUnit"`
	Version          int64       `json:"version"`
}

// WriteBatch is one request-sized unit of records for a single table.
type WriteBatch struct {
	Table   string           `json:"table"`
	Records []Record         `json:"records"`
	Common  CommonAttributes `json:"common"`
}

// Tables names the destination tables.
type Tables struct {
	Summary string
	Details string
}

// Projector builds write batches for a fixed set of tables.
type Projector struct {
	tables Tables
}

// NewProjector creates a Projector.
func NewProjector(tables Tables) *Projector {
	return &Projector{tables: tables}
}

// Project returns the summary batch followed by the detail batches, in
// submission order.
func (p *Projector) Project(r *report.Report) []WriteBatch {
	batches := []WriteBatch{p.ProjectSummary(r)}
	return append(batches, p.ProjectDetails(r)...)
}

// ProjectSummary returns the single-record summary batch.
func (p *Projector) ProjectSummary(r *report.Report) WriteBatch {
	s := r.Summary()

	dims := []Dimension{
		{Name: "github_organization", Value: s.GitHub.Organization},
		{Name: "github_repository", Value: s.GitHub.Repository},
		{Name: "github_workflow", Value: s.GitHub.Workflow},
		{Name: "github_run_id", Value: formatInt(s.GitHub.RunID)},
		{Name: "github_run_attempt", Value: formatInt(s.GitHub.RunAttempt)},
		{Name: "git_branch", Value: s.Git.Branch},
		{Name: "git_sha", Value: s.Git.SHA},
		{Name: "operating_system", Value: s.OperatingSystem},
		{Name: "framework", Value: s.Framework},
	}
	if s.LMS != nil {
		dims = appendOptional(dims, "lms_build_number", s.LMS.BuildNumber)
		dims = appendOptional(dims, "lms_instance_url", s.LMS.InstanceURL)
	}

	record := Record{
		Time:       formatTime(s.Started),
		Dimensions: dims,
		MeasureValues: []MeasureValue{
			bigint("total_duration", s.TotalDuration),
			varchar("status", s.Status),
			bigint("count_passed", s.CountPassed),
			bigint("count_failed", s.CountFailed),
			bigint("count_skipped", s.CountSkipped),
			bigint("count_flaky", s.CountFlaky),
		},
	}

	return WriteBatch{
		Table:   p.tables.Summary,
		Records: []Record{record},
		Common:  common(r, SummaryMeasureName),
	}
}

// ProjectDetails returns the detail records split into batches of at most
// MaxBatchRecords, in report order. A report without details yields no
// batches.
func (p *Projector) ProjectDetails(r *report.Report) []WriteBatch {
	details := r.Details()
	if len(details) == 0 {
		return nil
	}

	batches := make([]WriteBatch, 0, (len(details)+MaxBatchRecords-1)/MaxBatchRecords)
	for start := 0; start < len(details); start += MaxBatchRecords {
		end := min(start+MaxBatchRecords, len(details))

		records := make([]Record, 0, end-start)
		for _, d := range details[start:end] {
			records = append(records, detailRecord(d))
		}

		batches = append(batches, WriteBatch{
			Table:   p.tables.Details,
			Records: records,
			Common:  common(r, DetailMeasureName),
		})
	}
	return batches
}

func detailRecord(d report.Detail) Record {
	dims := []Dimension{
		{Name: "name", Value: d.Name},
		{Name: "location", Value: d.Location},
	}
	dims = appendOptional(dims, "browser", d.Browser)
	dims = appendOptional(dims, "type", d.Type)
	dims = appendOptional(dims, "experience", d.Experience)
	dims = appendOptional(dims, "tool", d.Tool)

	return Record{
		Time:       formatTime(d.Started),
		Dimensions: dims,
		MeasureValues: []MeasureValue{
			bigint("duration", d.Duration),
			bigint("total_duration", d.TotalDuration),
			bigint("retries", d.Retries),
			varchar("status", d.Status),
		},
	}
}

func common(r *report.Report, measureName string) CommonAttributes {
	return CommonAttributes{
		Dimensions:       []Dimension{{Name: ReportIDDimension, Value: r.ID().String()}},
		MeasureName:      measureName,
		MeasureValueType: MultiValueType,
		TimeUnit:         TimeUnitMilliseconds,
		Version:          int64(r.Version()),
	}
}

func appendOptional(dims []Dimension, name, value string) []Dimension {
	if value == "" {
		return dims
	}
	return append(dims, Dimension{Name: name, Value: value})
}

func bigint(name string, v int64) MeasureValue {
	return MeasureValue{Name: name, Value: formatInt(v), Type: ValueBigint}
}

func varchar(name, v string) MeasureValue {
	return MeasureValue{Name: name, Value: v, Type: ValueVarchar}
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
