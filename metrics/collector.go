// Package metrics provides per-invocation submission counters.
//
// The Collector accumulates counters during a single submit or validate
// invocation. It is a leaf package with no internal dependencies; the
// snapshot is logged once when the invocation ends.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Report lifecycle
	ReportsFinalized int64
	ReportsRejected  int64
	ReportsUpgraded  int64

	// Credential exchange
	CredentialExchanges       int64
	CredentialExchangeFailure int64

	// Submission (per batch call; records are counted alongside)
	BatchesProjected int64
	BatchesWritten   int64
	BatchesFailed    int64
	BatchesSkipped   int64
	RecordsProjected int64
	RecordsWritten   int64

	// Archive and notification side effects
	ArchiveWriteSuccess int64
	ArchiveWriteFailure int64
	NotifySuccess       int64
	NotifyFailure       int64

	// Dimensions (informational, set at construction or once known)
	InjectMode     string
	Database       string
	ArchiveBackend string
	DryRun         bool
	ReportID       string
}

// Fields renders the snapshot as structured log fields.
func (s Snapshot) Fields() map[string]any {
	return map[string]any{
		"reports_finalized":           s.ReportsFinalized,
		"reports_rejected":            s.ReportsRejected,
		"reports_upgraded":            s.ReportsUpgraded,
		"credential_exchanges":        s.CredentialExchanges,
		"credential_exchange_failure": s.CredentialExchangeFailure,
		"batches_projected":           s.BatchesProjected,
		"batches_written":             s.BatchesWritten,
		"batches_failed":              s.BatchesFailed,
		"batches_skipped":             s.BatchesSkipped,
		"records_projected":           s.RecordsProjected,
		"records_written":             s.RecordsWritten,
		"archive_write_success":       s.ArchiveWriteSuccess,
		"archive_write_failure":       s.ArchiveWriteFailure,
		"notify_success":              s.NotifySuccess,
		"notify_failure":              s.NotifyFailure,
		"inject_mode":                 s.InjectMode,
		"database":                    s.Database,
		"archive_backend":             s.ArchiveBackend,
		"dry_run":                     s.DryRun,
		"report_id":                   s.ReportID,
	}
}

// Collector accumulates counters during a single invocation.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	reportsFinalized int64
	reportsRejected  int64
	reportsUpgraded  int64

	credentialExchanges       int64
	credentialExchangeFailure int64

	batchesProjected int64
	batchesWritten   int64
	batchesFailed    int64
	batchesSkipped   int64
	recordsProjected int64
	recordsWritten   int64

	archiveWriteSuccess int64
	archiveWriteFailure int64
	notifySuccess       int64
	notifyFailure       int64

	injectMode     string
	database       string
	archiveBackend string
	dryRun         bool
	reportID       string
}

// NewCollector creates a Collector with dimension labels.
// archiveBackend is empty when archiving is disabled.
func NewCollector(injectMode, database, archiveBackend string, dryRun bool) *Collector {
	return &Collector{
		injectMode:     injectMode,
		database:       database,
		archiveBackend: archiveBackend,
		dryRun:         dryRun,
	}
}

// --- Report lifecycle ---

// SetReportID records the report identity once it is known.
func (c *Collector) SetReportID(id string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.reportID = id
	c.mu.Unlock()
}

// IncReportFinalized records a report that passed validation.
// upgraded is true when the report was migrated from an older version.
func (c *Collector) IncReportFinalized(upgraded bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.reportsFinalized++
	if upgraded {
		c.reportsUpgraded++
	}
	c.mu.Unlock()
}

// IncReportRejected records a report that failed before validation completed.
func (c *Collector) IncReportRejected() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.reportsRejected++
	c.mu.Unlock()
}

// --- Credential exchange ---

// IncCredentialExchange records a role exchange attempt and its outcome.
func (c *Collector) IncCredentialExchange(ok bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.credentialExchanges++
	if !ok {
		c.credentialExchangeFailure++
	}
	c.mu.Unlock()
}

// --- Submission ---
// Batch counters are per WriteRecords call. Records are counted in the same
// critical section so the two never drift.

// AddProjected records batches produced by projection.
func (c *Collector) AddProjected(batches, records int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.batchesProjected += int64(batches)
	c.recordsProjected += int64(records)
	c.mu.Unlock()
}

// IncBatchWritten records an accepted batch of n records.
func (c *Collector) IncBatchWritten(records int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.batchesWritten++
	c.recordsWritten += int64(records)
	c.mu.Unlock()
}

// IncBatchFailed records a rejected batch.
func (c *Collector) IncBatchFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.batchesFailed++
	c.mu.Unlock()
}

// AddBatchesSkipped records batches not sent because of a dry run.
func (c *Collector) AddBatchesSkipped(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.batchesSkipped += int64(n)
	c.mu.Unlock()
}

// --- Side effects ---

// IncArchiveWrite records an archive write outcome.
func (c *Collector) IncArchiveWrite(ok bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if ok {
		c.archiveWriteSuccess++
	} else {
		c.archiveWriteFailure++
	}
	c.mu.Unlock()
}

// IncNotify records a notification outcome.
func (c *Collector) IncNotify(ok bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if ok {
		c.notifySuccess++
	} else {
		c.notifyFailure++
	}
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		ReportsFinalized: c.reportsFinalized,
		ReportsRejected:  c.reportsRejected,
		ReportsUpgraded:  c.reportsUpgraded,

		CredentialExchanges:       c.credentialExchanges,
		CredentialExchangeFailure: c.credentialExchangeFailure,

		BatchesProjected: c.batchesProjected,
		BatchesWritten:   c.batchesWritten,
		BatchesFailed:    c.batchesFailed,
		BatchesSkipped:   c.batchesSkipped,
		RecordsProjected: c.recordsProjected,
		RecordsWritten:   c.recordsWritten,

		ArchiveWriteSuccess: c.archiveWriteSuccess,
		ArchiveWriteFailure: c.archiveWriteFailure,
		NotifySuccess:       c.notifySuccess,
		NotifyFailure:       c.notifyFailure,

		InjectMode:     c.injectMode,
		Database:       c.database,
		ArchiveBackend: c.archiveBackend,
		DryRun:         c.dryRun,
		ReportID:       c.reportID,
	}
}
