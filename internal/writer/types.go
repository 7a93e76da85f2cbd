// Package writer implements the dual-write protocol of spec.md §4.3:
// append-only history, a monotonic snapshot compare-and-set, and an audit
// record, with per-patient write ordering enforced by a striped lock.
package writer

import (
	"context"

	"github.com/arc-self/amy-core/internal/codec"
)

// Store is the persistence seam the writer depends on; internal/store
// implements it against Mongo.
type Store interface {
	// AppendHistory inserts one immutable history record and returns its id.
	AppendHistory(ctx context.Context, patientID string, reading codec.Reading) (historyRecordID string, err error)
	// UpdateSnapshot performs the monotonic compare-and-set on
	// patients.last_<kind> (I2). advanced is false, err nil when a newer
	// snapshot already won the race — that is still success.
	UpdateSnapshot(ctx context.Context, patientID string, reading codec.Reading) (advanced bool, err error)
}

// AuditRecorder is the audit seam; internal/store.AuditStore implements it.
type AuditRecorder interface {
	RecordAudit(ctx context.Context, patientID, historyRecordID string, kind codec.Kind, family codec.Family)
}

// Outcome classifies a completed Store() call for the caller's data-flow
// event emission (spec.md §4.3, §4.8).
type Outcome string

const (
	// OutcomeWritten: history appended and the snapshot advanced.
	OutcomeWritten Outcome = "written"
	// OutcomeSnapshotNotNewer: history appended; the snapshot CAS found an
	// equal-or-newer device_ts already stored and correctly no-opped
	// (I2). Still a successful write — the history record stands (I1).
	OutcomeSnapshotNotNewer Outcome = "snapshot_not_newer"
	// OutcomeSnapshotStale: history appended, but the snapshot CAS kept
	// failing transiently until retries were exhausted. Reported per
	// spec.md §4.3 as "snapshot_stale"; the history record still stands.
	OutcomeSnapshotStale Outcome = "snapshot_stale"
)

// Result is returned by Store() on success.
type Result struct {
	Outcome         Outcome
	HistoryRecordID string
}
