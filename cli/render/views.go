package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/Brightspace/test-reporting-action/archive"
	"github.com/Brightspace/test-reporting-action/report"
	"github.com/Brightspace/test-reporting-action/types"
)

// ReportView renders a canonical report. JSON and YAML output are the
// canonical document; table output is a summary block followed by one row
// per detail.
type ReportView struct {
	Report *report.Report
}

// MarshalJSON encodes the canonical document.
func (v ReportView) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Report)
}

// MarshalYAML encodes the canonical document.
func (v ReportView) MarshalYAML() (any, error) {
	return v.Report.Document(), nil
}

// WriteTable writes the report as aligned text.
func (v ReportView) WriteTable(out io.Writer) error {
	r := v.Report
	s := r.Summary()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"id", r.ID().String()},
		{"version", versionLabel(r)},
		{"repository", s.GitHub.Organization + "/" + s.GitHub.Repository},
		{"workflow", s.GitHub.Workflow},
		{"run", fmt.Sprintf("%d (attempt %d)", s.GitHub.RunID, s.GitHub.RunAttempt)},
		{"branch", s.Git.Branch},
		{"sha", s.Git.SHA},
		{"framework", s.Framework},
		{"os", s.OperatingSystem},
		{"started", s.Started.UTC().Format(time.RFC3339)},
		{"duration", fmt.Sprintf("%dms", s.TotalDuration)},
		{"status", s.Status},
		{"counts", fmt.Sprintf("%d passed, %d failed, %d skipped, %d flaky", s.CountPassed, s.CountFailed, s.CountSkipped, s.CountFlaky)},
	}
	if s.LMS != nil {
		rows = append(rows, [2]string{"lms", fmt.Sprintf("%s %s", s.LMS.BuildNumber, s.LMS.InstanceURL)})
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s:\t%s\n", row[0], row[1])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	details := r.Details()
	if len(details) == 0 {
		_, err := fmt.Fprintln(out, "\n(no details)")
		return err
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tDURATION\tRETRIES\tNAME\tLOCATION")
	for _, d := range details {
		fmt.Fprintf(w, "%s\t%dms\t%d\t%s\t%s\n", d.Status, d.Duration, d.Retries, d.Name, d.Location)
	}
	return w.Flush()
}

func versionLabel(r *report.Report) string {
	if r.Upgraded() {
		return fmt.Sprintf("%d (upgraded from %d)", r.Version(), r.OriginalVersion())
	}
	return fmt.Sprintf("%d", r.Version())
}

// ViolationsView renders schema violations.
type ViolationsView struct {
	Version    int               `json:"version" yaml:"version"`
	Violations []types.Violation `json:"violations" yaml:"violations"`
}

// NewViolationsView wraps a schema violation error.
func NewViolationsView(err *types.SchemaViolationError) ViolationsView {
	return ViolationsView{Version: err.Version, Violations: err.Violations}
}

// WriteTable writes one row per violation.
func (v ViolationsView) WriteTable(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tVIOLATION")
	for _, violation := range v.Violations {
		path := violation.Path
		if path == "" {
			path = "/"
		}
		fmt.Fprintf(w, "%s\t%s\n", path, violation.Message)
	}
	return w.Flush()
}

// ArchivedView renders a report read back from the archive.
type ArchivedView struct {
	Summary map[string]any   `json:"summary" yaml:"summary"`
	Details []map[string]any `json:"details" yaml:"details"`
}

// NewArchivedView wraps an archived report.
func NewArchivedView(r *archive.ArchivedReport) ArchivedView {
	return ArchivedView{Summary: r.Summary, Details: r.Details}
}

// WriteTable writes the archive record fields, then one row per detail.
func (v ArchivedView) WriteTable(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	keys := make([]string, 0, len(v.Summary))
	for k := range v.Summary {
		if k != "summary" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s:\t%v\n", k, v.Summary[k])
	}
	if s, ok := v.Summary["summary"].(map[string]any); ok {
		fmt.Fprintf(w, "status:\t%v\n", s["status"])
		fmt.Fprintf(w, "started:\t%v\n", s["started"])
	}

	fmt.Fprintln(w)
	if len(v.Details) == 0 {
		fmt.Fprintln(w, "(no details)")
		return w.Flush()
	}
	fmt.Fprintln(w, "#\tNAME\tSTATUS\tDURATION\tRETRIES")
	for _, record := range v.Details {
		d, _ := record["detail"].(map[string]any)
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n", record["index"], d["name"], d["status"], d["duration"], d["retries"])
	}
	return w.Flush()
}
