package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/arc-self/amy-core/internal/codec"
)

// AuditStore writes the minimal provenance record per accepted reading
// (spec.md §4.7), grounded directly on audit-service's
// "insert, log-and-swallow on failure" shape (internal/consumer/audit.go:
// InsertAuditLog never fails the caller). Non-blocking with respect to the
// Canonical Writer: RecordAudit logs and returns on failure, it never
// propagates an error the writer would have to handle.
type AuditStore struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewAuditStore builds an AuditStore over db's audit_log collection. db may
// be a distinct database from the one patients/histories live in when
// configured via db.audit_name (spec.md §6.5).
func NewAuditStore(db *mongo.Database, logger *zap.Logger) *AuditStore {
	return &AuditStore{coll: db.Collection(CollectionAuditLog), logger: logger}
}

// RecordAudit inserts one audit record referencing the just-written
// history record (I3). Failures are logged, never returned, per spec.md
// §4.7.
func (a *AuditStore) RecordAudit(ctx context.Context, patientID, historyRecordID string, kind codec.Kind, family codec.Family) {
	doc := AuditDoc{
		ID:          primitive.NewObjectID(),
		ServerTS:    time.Now().UTC(),
		ReadingKind: kind,
		SourceFamily: family,
	}
	if pid, err := objectIDOrZero(patientID); err == nil {
		doc.PatientID = pid
	}
	if hid, err := primitive.ObjectIDFromHex(historyRecordID); err == nil {
		doc.HistoryRecordID = hid
	}

	if _, err := a.coll.InsertOne(ctx, doc); err != nil {
		a.logger.Error("audit write failed, primary write unaffected",
			zap.String("patient_id", patientID),
			zap.String("history_record_id", historyRecordID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}
