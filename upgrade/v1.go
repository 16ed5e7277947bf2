package upgrade

// fieldMove relocates a flat v1 summary key into a nested v2 group.
type fieldMove struct {
	from  string
	group string
	to    string
}

// v1SummaryMoves groups flat provenance and LMS fields. lmsBuild and
// lmsInstance are accepted spellings from early v1 producers.
var v1SummaryMoves = []fieldMove{
	{from: "githubOrganization", group: "github", to: "organization"},
	{from: "githubRepository", group: "github", to: "repository"},
	{from: "githubWorkflow", group: "github", to: "workflow"},
	{from: "githubRunId", group: "github", to: "runId"},
	{from: "githubRunAttempt", group: "github", to: "runAttempt"},
	{from: "gitBranch", group: "git", to: "branch"},
	{from: "gitSha", group: "git", to: "sha"},
	{from: "lmsBuildNumber", group: "lms", to: "buildNumber"},
	{from: "lmsBuild", group: "lms", to: "buildNumber"},
	{from: "lmsInstanceUrl", group: "lms", to: "instanceUrl"},
	{from: "lmsInstance", group: "lms", to: "instanceUrl"},
}

// v1ToV2 renames reportId/reportVersion to id/version and groups flat summary
// provenance into github, git and lms objects. Fields it does not know about
// are carried over untouched so schema validation can still report them.
// A group is only created when at least one of its fields is present.
func v1ToV2(doc map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		switch k {
		case "reportId":
			out["id"] = v
		case "reportVersion":
			// replaced below
		default:
			out[k] = v
		}
	}
	out[versionKey] = 2

	summary, ok := doc["summary"].(map[string]any)
	if !ok {
		return out, nil
	}

	upgraded := make(map[string]any, len(summary))
	groups := map[string]map[string]any{}
	moved := make(map[string]bool, len(v1SummaryMoves))

	for _, m := range v1SummaryMoves {
		v, present := summary[m.from]
		if !present {
			continue
		}
		moved[m.from] = true
		g, ok := groups[m.group]
		if !ok {
			g = map[string]any{}
			groups[m.group] = g
		}
		// First spelling wins when a producer emitted both.
		if _, set := g[m.to]; !set {
			g[m.to] = v
		}
	}

	for k, v := range summary {
		if !moved[k] {
			upgraded[k] = v
		}
	}
	for name, g := range groups {
		upgraded[name] = g
	}

	out["summary"] = upgraded
	return out, nil
}
