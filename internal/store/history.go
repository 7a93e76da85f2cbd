package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/arc-self/amy-core/internal/codec"
)

// AppendHistory implements writer.Store's history step: insert one
// immutable record into the per-kind history collection (spec.md §4.3
// step 1, I1). Returns the new record's id for the audit reference.
func (s *MongoStore) AppendHistory(ctx context.Context, patientID string, reading codec.Reading) (string, error) {
	collName, ok := HistoryCollection(reading.Kind)
	if !ok {
		return "", fmt.Errorf("store: no history collection for kind %q", reading.Kind)
	}

	pid, err := objectIDOrZero(patientID)
	if err != nil {
		return "", err
	}

	doc := HistoryDoc{
		ID:        primitive.NewObjectID(),
		PatientID: pid,
		Reading:   toBSONReading(reading),
		FamilyTag: reading.Family,
		DeviceID:  reading.Device,
		ServerTS:  time.Now().UTC(),
		DeviceTS:  reading.DeviceTS,
	}

	if _, err := s.db.Collection(collName).InsertOne(ctx, doc); err != nil {
		return "", err
	}
	return doc.ID.Hex(), nil
}

// UpdateSnapshot implements writer.Store's snapshot step (spec.md §4.3
// step 2): a single atomic compare-and-set that only advances
// last_<kind> when the new reading's device_ts is strictly newer than
// whatever is stored (I2), or absent entirely. Returns (advanced=false,
// nil) — not an error — when a newer snapshot already won the race; the
// history record written in step 1 still stands.
func (s *MongoStore) UpdateSnapshot(ctx context.Context, patientID string, reading codec.Reading) (advanced bool, err error) {
	pid, err := objectIDOrZero(patientID)
	if err != nil {
		return false, err
	}

	field := fmt.Sprintf("snapshots.%s", reading.Kind)
	filter := bson.M{
		"_id": pid,
		"$or": bson.A{
			bson.M{field: bson.M{"$exists": false}},
			bson.M{field + ".device_ts": bson.M{"$lt": reading.DeviceTS}},
		},
	}
	update := bson.M{
		"$set": bson.M{
			field: SnapshotDoc{
				Reading:   toBSONReading(reading),
				DeviceTS:  reading.DeviceTS,
				FamilyTag: reading.Family,
			},
		},
	}

	res, err := s.patients().UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// PatientExists reports whether patientID names a non-deleted patient
// (spec.md §3 lifecycle). It is not part of writer.Store; the writer does
// not call it.
func (s *MongoStore) PatientExists(ctx context.Context, patientID string) (bool, error) {
	pid, err := objectIDOrZero(patientID)
	if err != nil {
		return false, err
	}
	count, err := s.patients().CountDocuments(ctx, bson.M{"_id": pid, "deleted_at": bson.M{"$exists": false}})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func objectIDOrZero(hex string) (primitive.ObjectID, error) {
	if hex == "" {
		return primitive.NilObjectID, nil
	}
	return primitive.ObjectIDFromHex(hex)
}
