package ghactions

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/sethvargo/go-githubactions"
)

// DashboardBaseURL hosts the test reporting dashboards.
const DashboardBaseURL = "https://test-reporting.d2l.dev"

// StepSummary renders the job summary markdown linking to the metrics
// overview and drill-down dashboards filtered to one repository.
func StepSummary(organization, repository string) string {
	query := url.Values{}
	query.Set("var-githubOrganizations", organization)
	query.Set("var-githubRepositories", repository)
	q := query.Encode()

	var b strings.Builder
	b.WriteString("## Test Reporting\n")
	fmt.Fprintf(&b, "The overview of data submitted can be found [here](%s/metrics?%s)\n", DashboardBaseURL, q)
	fmt.Fprintf(&b, "A more detailed view of data submitted can be found [here](%s/drill-down?%s)\n", DashboardBaseURL, q)
	return b.String()
}

// AppendStepSummary appends markdown to the file named by GITHUB_STEP_SUMMARY.
// It is a no-op outside a job.
func AppendStepSummary(lookup LookupFunc, markdown string) error {
	if path, ok := lookup(EnvStepSummary); !ok || path == "" {
		return nil
	}

	// The toolkit reports a failed file command as an annotation on its writer.
	var out bytes.Buffer
	newAction(lookup, &out).AddStepSummary(markdown)
	if out.Len() > 0 {
		msg := strings.TrimPrefix(strings.TrimSpace(out.String()), "::error::")
		return fmt.Errorf("write step summary: %s", msg)
	}
	return nil
}

// WriteError writes a workflow command that fails the step with msg.
func WriteError(w io.Writer, msg string) {
	githubactions.New(githubactions.WithWriter(w)).Errorf("%s", msg)
}
