// Package ghactions reads GitHub Actions runner state: the execution context
// from environment variables, and the job step summary.
package ghactions

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/sethvargo/go-githubactions"

	"github.com/Brightspace/test-reporting-action/types"
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Environment variable names set by the Actions runner.
const (
	EnvRepositoryOwner = "GITHUB_REPOSITORY_OWNER"
	EnvRepository      = "GITHUB_REPOSITORY"
	EnvWorkflowRef     = "GITHUB_WORKFLOW_REF"
	EnvWorkflow        = "GITHUB_WORKFLOW"
	EnvRunID           = "GITHUB_RUN_ID"
	EnvRunAttempt      = "GITHUB_RUN_ATTEMPT"
	EnvHeadRef         = "GITHUB_HEAD_REF"
	EnvRefName         = "GITHUB_REF_NAME"
	EnvSHA             = "GITHUB_SHA"
	EnvStepSummary     = "GITHUB_STEP_SUMMARY"
	EnvActions         = "GITHUB_ACTIONS"
)

// newAction binds the actions toolkit to lookup and w.
func newAction(lookup LookupFunc, w io.Writer) *githubactions.Action {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return githubactions.New(
		githubactions.WithGetenv(func(key string) string {
			v, _ := lookup(key)
			return v
		}),
		githubactions.WithWriter(w),
	)
}

// EnvProvider supplies the execution context from runner environment variables.
type EnvProvider struct {
	Lookup LookupFunc
}

// NewEnvProvider creates an EnvProvider reading the process environment.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{Lookup: os.LookupEnv}
}

// ExecutionContext implements pipeline.ContextProvider.
func (p *EnvProvider) ExecutionContext(_ context.Context) (types.ExecutionContext, error) {
	return ContextFromEnv(p.Lookup)
}

// ContextFromEnv builds an execution context from runner variables.
//
// The workflow is the workflow file name taken from GITHUB_WORKFLOW_REF,
// falling back to GITHUB_WORKFLOW. The branch is GITHUB_HEAD_REF on pull
// requests and GITHUB_REF_NAME otherwise. Run counters must be
// non-negative integers. Every missing or malformed variable is listed in
// the returned error.
func ContextFromEnv(lookup LookupFunc) (types.ExecutionContext, error) {
	a := newAction(lookup, io.Discard)

	var c types.ExecutionContext
	var problems []string
	for _, f := range []struct {
		key string
		dst *int64
	}{
		{EnvRunID, &c.RunID},
		{EnvRunAttempt, &c.RunAttempt},
	} {
		n, err := parseCounter(strings.TrimSpace(a.Getenv(f.key)))
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", f.key, err))
		}
		*f.dst = n
	}
	if len(problems) > 0 {
		return types.ExecutionContext{}, gatherError(problems)
	}

	gc, err := a.Context()
	if err != nil {
		return types.ExecutionContext{}, fmt.Errorf("unable to gather GitHub context: %w", err)
	}

	c.Organization = strings.TrimSpace(gc.RepositoryOwner)
	c.SHA = strings.TrimSpace(gc.SHA)

	repo := strings.TrimSpace(gc.Repository)
	if owner, name, ok := strings.Cut(repo, "/"); ok {
		c.Repository = name
		if c.Organization == "" {
			c.Organization = owner
		}
	} else {
		c.Repository = repo
	}

	c.Workflow = workflowFile(strings.TrimSpace(a.Getenv(EnvWorkflowRef)))
	if c.Workflow == "" {
		c.Workflow = strings.TrimSpace(gc.Workflow)
	}

	c.Branch = strings.TrimSpace(gc.HeadRef)
	if c.Branch == "" {
		c.Branch = strings.TrimSpace(gc.RefName)
	}

	for _, f := range []struct {
		key, value string
	}{
		{EnvRepositoryOwner, c.Organization},
		{EnvRepository, c.Repository},
		{EnvWorkflowRef, c.Workflow},
		{EnvHeadRef + " or " + EnvRefName, c.Branch},
		{EnvSHA, c.SHA},
	} {
		if f.value == "" {
			problems = append(problems, f.key+": not set")
		}
	}

	if len(problems) > 0 {
		return types.ExecutionContext{}, gatherError(problems)
	}
	return c, nil
}

func gatherError(problems []string) error {
	return fmt.Errorf("unable to gather GitHub context: %s", strings.Join(problems, "; "))
}

// workflowFile extracts "ci.yml" from "owner/repo/.github/workflows/ci.yml@refs/heads/main".
func workflowFile(ref string) string {
	if ref == "" {
		return ""
	}
	ref, _, _ = strings.Cut(ref, "@")
	return path.Base(ref)
}

func parseCounter(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("not set")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative: %d", n)
	}
	return n, nil
}

// InActions reports whether the process runs inside a GitHub Actions job.
func InActions(lookup LookupFunc) bool {
	return newAction(lookup, io.Discard).Getenv(EnvActions) == "true"
}
