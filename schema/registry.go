// Package schema holds the structural report schemas, one per report format version.
//
// Schemas are embedded JSON Schema (draft 2020-12) documents compiled once by
// NewRegistry. The Registry is immutable after construction and safe to share.
// Validation is closed-world: unknown fields are rejected, and every violated
// constraint is reported together rather than failing on the first.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Brightspace/test-reporting-action/types"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// BaseURL is the resource URL prefix the embedded schemas are registered under.
const BaseURL = "https://test-reporting.d2l.dev/schemas/"

const provenanceResource = "provenance.json"

// reportResources maps each supported report version to its schema resource.
var reportResources = map[int]string{
	1: "report.v1.json",
	2: "report.v2.json",
}

// Registry validates report documents against the schema for their version.
type Registry struct {
	reports    map[int]*jsonschema.Schema
	provenance *jsonschema.Schema
}

// NewRegistry compiles the embedded schemas.
func NewRegistry() (*Registry, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	compiler.LoadURL = func(s string) (io.ReadCloser, error) {
		return nil, fmt.Errorf("schema %s is not embedded", s)
	}

	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read embedded schemas: %w", err)
	}
	for _, entry := range entries {
		data, err := schemaFS.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", entry.Name(), err)
		}
		if err := compiler.AddResource(BaseURL+entry.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", entry.Name(), err)
		}
	}

	r := &Registry{reports: make(map[int]*jsonschema.Schema, len(reportResources))}
	for version, resource := range reportResources {
		compiled, err := compiler.Compile(BaseURL + resource)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", resource, err)
		}
		r.reports[version] = compiled
	}

	r.provenance, err = compiler.Compile(BaseURL + provenanceResource)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", provenanceResource, err)
	}

	return r, nil
}

// Versions returns the supported report versions in ascending order.
func (r *Registry) Versions() []int {
	versions := make([]int, 0, len(r.reports))
	for v := range r.reports {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions
}

// Supports reports whether a schema exists for version.
func (r *Registry) Supports(version int) bool {
	_, ok := r.reports[version]
	return ok
}

// Validate checks doc against the schema for version.
// Returns a *types.SchemaViolationError listing every violation, or a
// types.ErrUnknownVersion error when no schema exists for version.
func (r *Registry) Validate(doc any, version int) error {
	compiled, ok := r.reports[version]
	if !ok {
		return types.NewReportError(types.ErrUnknownVersion, "", fmt.Errorf("no schema for version %d", version))
	}
	return validate(compiled, doc, version, "")
}

// ValidateProvenance checks only the github and git groups of a canonical
// summary. Other summary fields are ignored. Violation paths are reported
// relative to the document root.
func (r *Registry) ValidateProvenance(summary map[string]any) error {
	return validate(r.provenance, summary, types.CurrentReportVersion, "/summary")
}

func validate(compiled *jsonschema.Schema, doc any, version int, prefix string) error {
	normalized, err := normalize(doc)
	if err != nil {
		return &types.SchemaViolationError{
			Version:    version,
			Violations: []types.Violation{{Path: prefix, Message: fmt.Sprintf("not a JSON document: %v", err)}},
		}
	}

	if err := compiled.Validate(normalized); err != nil {
		return &types.SchemaViolationError{
			Version:    version,
			Violations: collectViolations(err, prefix),
		}
	}
	return nil
}

// normalize round-trips doc through encoding/json so that values built in Go
// (int64, typed maps) validate exactly like freshly decoded documents.
func normalize(doc any) (any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// collectViolations flattens a validation error tree into its leaf causes,
// sorted by path then message so output is deterministic.
func collectViolations(err error, prefix string) []types.Violation {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []types.Violation{{Path: prefix, Message: err.Error()}}
	}

	var out []types.Violation
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, types.Violation{Path: prefix + e.InstanceLocation, Message: e.Message})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Message < out[j].Message
	})

	return slices.Compact(out)
}
