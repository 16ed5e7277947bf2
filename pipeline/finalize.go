package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Brightspace/test-reporting-action/log"
	"github.com/Brightspace/test-reporting-action/metrics"
	"github.com/Brightspace/test-reporting-action/reconcile"
	"github.com/Brightspace/test-reporting-action/report"
	"github.com/Brightspace/test-reporting-action/schema"
	"github.com/Brightspace/test-reporting-action/types"
	"github.com/Brightspace/test-reporting-action/upgrade"
)

// FinalizeOptions configures Finalize.
type FinalizeOptions struct {
	Mode types.InjectMode
	LMS  types.LMSInfo
	// Context is consulted for auto and force modes only.
	Context ContextProvider
}

// Finalizer turns raw reports into validated canonical Reports.
type Finalizer struct {
	upgrader  *upgrade.Upgrader
	registry  *schema.Registry
	logger    *log.Logger
	collector *metrics.Collector
}

// NewFinalizer creates a Finalizer. collector may be nil.
func NewFinalizer(registry *schema.Registry, logger *log.Logger, collector *metrics.Collector) *Finalizer {
	if logger == nil {
		logger = log.Nop()
	}
	return &Finalizer{
		upgrader:  upgrade.New(),
		registry:  registry,
		logger:    logger,
		collector: collector,
	}
}

// Finalize loads, upgrades, reconciles and validates a report.
func (f *Finalizer) Finalize(ctx context.Context, src ReportSource, opts FinalizeOptions) (*report.Report, error) {
	r, err := f.finalize(ctx, src, opts)
	if err != nil {
		f.collector.IncReportRejected()
		return nil, err
	}
	f.collector.SetReportID(r.ID().String())
	f.collector.IncReportFinalized(r.Upgraded())
	return r, nil
}

func (f *Finalizer) finalize(ctx context.Context, src ReportSource, opts FinalizeOptions) (*report.Report, error) {
	if _, err := types.ParseInjectMode(string(opts.Mode)); err != nil {
		return nil, err
	}

	raw, err := src.Load(ctx)
	if err != nil {
		return nil, types.NewReportError(types.ErrReportUnreadable, "", err)
	}
	doc, err := parseDocument(raw)
	if err != nil {
		return nil, types.NewReportError(types.ErrReportUnreadable, "", err)
	}

	original, err := f.upgrader.Detect(doc)
	if err != nil {
		return nil, err
	}
	canonical, err := f.upgrader.Upgrade(doc)
	if err != nil {
		return nil, err
	}
	if original < f.upgrader.Current() {
		f.logger.Info("upgraded report", map[string]any{
			"from_version": original,
			"to_version":   f.upgrader.Current(),
		})
	}

	ec, err := f.executionContext(ctx, canonical, opts)
	if err != nil {
		return nil, err
	}

	reconciled, err := reconcile.New(f.registry, f.logger).Reconcile(canonical, reconcile.Input{
		Context: ec,
		Mode:    opts.Mode,
		LMS:     opts.LMS,
	})
	if err != nil {
		return nil, err
	}

	if err := f.registry.Validate(reconciled, types.CurrentReportVersion); err != nil {
		return nil, err
	}

	r, err := report.New(reconciled, original)
	if err != nil {
		return nil, &types.SchemaViolationError{
			Version:    types.CurrentReportVersion,
			Violations: []types.Violation{{Message: err.Error()}},
		}
	}
	return r, nil
}

// executionContext resolves the ambient context for the inject mode.
// Off never consults the provider. Auto tolerates an unavailable context
// when the report's own provenance is already valid.
func (f *Finalizer) executionContext(ctx context.Context, canonical map[string]any, opts FinalizeOptions) (types.ExecutionContext, error) {
	if opts.Mode == types.InjectOff {
		return types.ExecutionContext{}, nil
	}
	if opts.Context == nil {
		return f.unavailableContext(canonical, opts.Mode, errors.New("no execution context provider"))
	}

	ec, err := opts.Context.ExecutionContext(ctx)
	if err != nil {
		return f.unavailableContext(canonical, opts.Mode, err)
	}
	return ec, nil
}

func (f *Finalizer) unavailableContext(canonical map[string]any, mode types.InjectMode, cause error) (types.ExecutionContext, error) {
	if mode == types.InjectAuto {
		if summary, ok := canonical["summary"].(map[string]any); ok && f.registry.ValidateProvenance(summary) == nil {
			f.logger.Debug("execution context unavailable, report provenance is valid", map[string]any{"reason": cause.Error()})
			return types.ExecutionContext{}, nil
		}
	}
	return types.ExecutionContext{}, types.NewReportError(types.ErrMissingContext, "", cause)
}

// parseDocument decodes a single JSON object. Numbers are kept as
// json.Number so integer fields survive exactly.
func parseDocument(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("parse report: trailing data after JSON document")
	}

	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parse report: top-level value is %T, not an object", v)
	}
	return doc, nil
}
