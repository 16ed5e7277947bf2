package archive

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// ArchivedReport is a report read back from the archive.
type ArchivedReport struct {
	Summary map[string]any
	// Details are ordered by their original index.
	Details []map[string]any
}

// ReadReport finds the most recent snapshot holding reportID and returns its
// records. Returns an ErrNotFound storage error when no snapshot matches.
func ReadReport(ctx context.Context, ds lode.Dataset, reportID string) (*ArchivedReport, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	// Latest first; snapshots are ordered by creation time.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatches(snap, "report_id", reportID) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}

		// Manifest paths are a coarse pre-filter; record fields are authoritative.
		out := &ArchivedReport{}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["report_id"] != reportID {
				continue
			}
			switch record["record_kind"] {
			case RecordKindSummary:
				out.Summary = record
			case RecordKindDetail:
				out.Details = append(out.Details, record)
			}
		}
		if out.Summary == nil {
			continue
		}

		sort.SliceStable(out.Details, func(a, b int) bool {
			return indexOf(out.Details[a]) < indexOf(out.Details[b])
		})
		return out, nil
	}

	return nil, &StorageError{Kind: ErrNotFound, Op: "read", Path: "report_id=" + reportID, Err: fmt.Errorf("no archived report")}
}

func indexOf(record map[string]any) float64 {
	switch v := record["index"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// snapshotMatches checks if any file of the snapshot lies in the key=value partition.
func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks for an exact key=value path segment, so
// report_id=a does not match report_id=ab.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
