// Package upgrade migrates report documents from older format versions to the
// current canonical shape.
//
// Migrations are an ordered chain of pure single-step functions keyed by the
// version they upgrade from (1→2, 2→3, ...). Each step receives a private
// copy of the document, so callers' documents are never mutated. Upgrading a
// document that is already current returns an unchanged copy.
package upgrade

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/Brightspace/test-reporting-action/types"
)

// Document keys holding the declared version, newest first.
const (
	versionKey       = "version"
	legacyVersionKey = "reportVersion"
)

// Step upgrades a document from version From to From+1.
type Step struct {
	From  int
	Apply func(doc map[string]any) (map[string]any, error)
}

// Upgrader applies migration steps up to a target version.
type Upgrader struct {
	current int
	steps   map[int]Step
}

// DefaultSteps returns the migration chain for the supported report versions.
func DefaultSteps() []Step {
	return []Step{
		{From: 1, Apply: v1ToV2},
	}
}

// New creates an Upgrader targeting types.CurrentReportVersion.
func New() *Upgrader {
	u, err := NewWithSteps(types.CurrentReportVersion, DefaultSteps())
	if err != nil {
		panic(err)
	}
	return u
}

// NewWithSteps creates an Upgrader with a custom chain.
// Every version from 1 to current-1 must have exactly one step.
func NewWithSteps(current int, steps []Step) (*Upgrader, error) {
	if current < 1 {
		return nil, fmt.Errorf("current version must be >= 1, got %d", current)
	}
	byFrom := make(map[int]Step, len(steps))
	for _, s := range steps {
		if s.Apply == nil {
			return nil, fmt.Errorf("migration from version %d has no function", s.From)
		}
		if _, dup := byFrom[s.From]; dup {
			return nil, fmt.Errorf("duplicate migration from version %d", s.From)
		}
		byFrom[s.From] = s
	}
	for v := 1; v < current; v++ {
		if _, ok := byFrom[v]; !ok {
			return nil, fmt.Errorf("missing migration from version %d", v)
		}
	}
	return &Upgrader{current: current, steps: byFrom}, nil
}

// Current returns the target version.
func (u *Upgrader) Current() int {
	return u.current
}

// Detect returns the declared version of doc.
// Fails with types.ErrUnknownVersion when the version is absent, not a
// positive integer, or newer than the current version.
func (u *Upgrader) Detect(doc map[string]any) (int, error) {
	raw, key, ok := declaredVersion(doc)
	if !ok {
		return 0, types.NewReportError(types.ErrUnknownVersion, versionKey, fmt.Errorf("no version declared"))
	}
	v, ok := asInt(raw)
	if !ok || v < 1 {
		return 0, types.NewReportError(types.ErrUnknownVersion, key, fmt.Errorf("malformed version %v", raw))
	}
	if v > u.current {
		return 0, types.NewReportError(types.ErrUnknownVersion, key, fmt.Errorf("version %d is newer than supported version %d", v, u.current))
	}
	return v, nil
}

// Upgrade returns a copy of doc migrated to the current version.
func (u *Upgrader) Upgrade(doc map[string]any) (map[string]any, error) {
	from, err := u.Detect(doc)
	if err != nil {
		return nil, err
	}

	out := deepCopy(doc).(map[string]any)
	for v := from; v < u.current; v++ {
		out, err = u.steps[v].Apply(out)
		if err != nil {
			return nil, fmt.Errorf("upgrade from version %d: %w", v, err)
		}
	}
	return out, nil
}

func declaredVersion(doc map[string]any) (any, string, bool) {
	if v, ok := doc[versionKey]; ok {
		return v, versionKey, true
	}
	if v, ok := doc[legacyVersionKey]; ok {
		return v, legacyVersionKey, true
	}
	return nil, "", false
}

// asInt accepts the integer representations produced by encoding/json
// (float64, json.Number) and by Go callers.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil || i > math.MaxInt32 {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = deepCopy(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = deepCopy(val)
		}
		return s
	default:
		return v
	}
}
