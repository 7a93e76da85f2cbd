package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arc-self/amy-core/internal/codec"
)

// Config tunes the writer per spec.md §6.5.
type Config struct {
	MaxRetries      int           // default 3
	ProtocolTimeout time.Duration // default 15s
	PerPatientStripes int         // default 1024
}

// DefaultConfig matches spec.md §6.5's documented defaults.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, ProtocolTimeout: 15 * time.Second, PerPatientStripes: 1024}
}

// Writer executes the dual-write protocol of spec.md §4.3.
type Writer struct {
	store  Store
	audit  AuditRecorder
	locks  *StripedLock
	cfg    Config
	logger *zap.Logger
	tracer trace.Tracer
}

// New builds a Writer. audit may be nil to skip the audit step entirely
// (tests that don't care about provenance); production wiring always
// supplies a real internal/store.AuditStore.
func New(store Store, audit AuditRecorder, cfg Config, logger *zap.Logger) *Writer {
	if cfg.PerPatientStripes <= 0 {
		cfg.PerPatientStripes = DefaultConfig().PerPatientStripes
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.ProtocolTimeout <= 0 {
		cfg.ProtocolTimeout = DefaultConfig().ProtocolTimeout
	}
	return &Writer{
		store:  store,
		audit:  audit,
		locks:  NewStripedLock(cfg.PerPatientStripes),
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("writer"),
	}
}

// Store executes the dual-write protocol for one reading already bound to
// a resolved patient_id (spec.md §4.3):
//  1. history append (I1) — failure fails the whole write, no snapshot attempted.
//  2. snapshot compare-and-set (I2) — retried on transient failure with
//     exponential backoff (50/200/800 ms up to cfg.MaxRetries); persistent
//     failure is reported as OutcomeSnapshotStale-equivalent "snapshot_stale"
//     but the call still succeeds, since the history record is retained.
//  3. audit write (I3) — best effort, logged not propagated.
//
// Per-patient writes for the same patientID are totally ordered by the
// striped lock covering steps 1–2 (spec.md §4.3, §5).
func (w *Writer) Store(ctx context.Context, patientID string, reading codec.Reading) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.ProtocolTimeout)
	defer cancel()

	ctx, span := w.tracer.Start(ctx, "writer.Store")
	defer span.End()

	unlock := w.locks.Lock(patientID)
	defer unlock()

	historyID, err := w.store.AppendHistory(ctx, patientID, reading)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("writer: history append: %w", err)
	}

	outcome := w.updateSnapshotWithRetry(ctx, patientID, reading)

	if w.audit != nil {
		w.audit.RecordAudit(ctx, patientID, historyID, reading.Kind, reading.Family)
	}

	return Result{Outcome: outcome, HistoryRecordID: historyID}, nil
}

// updateSnapshotWithRetry retries the snapshot CAS on transient store
// errors only — a clean "not advanced" result (newer snapshot won the
// race) is success on the first try, never retried.
func (w *Writer) updateSnapshotWithRetry(ctx context.Context, patientID string, reading codec.Reading) Outcome {
	var advanced bool

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.Multiplier = 4 // 50ms -> 200ms -> 800ms
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	bo := backoff.WithMaxRetries(policy, uint64(w.cfg.MaxRetries))
	bo = backoff.WithContext(bo, ctx)

	attempt := func() error {
		var err error
		advanced, err = w.store.UpdateSnapshot(ctx, patientID, reading)
		return err
	}

	if err := backoff.Retry(attempt, bo); err != nil {
		w.logger.Warn("snapshot update failed after retries, history record retained",
			zap.String("patient_id", patientID),
			zap.String("kind", string(reading.Kind)),
			zap.Error(err))
		return OutcomeSnapshotStale
	}

	if !advanced {
		return OutcomeSnapshotNotNewer
	}
	return OutcomeWritten
}
