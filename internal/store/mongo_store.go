package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/arc-self/amy-core/internal/codec"
	"github.com/arc-self/amy-core/internal/resolver"
)

// MongoStore is the Mongo-backed implementation of resolver.Store and the
// writer's history/snapshot operations (spec.md §4.2, §4.3). The audit sink
// is the separate AuditStore (audit.go).
type MongoStore struct {
	db *mongo.Database
}

// New wraps an already-connected *mongo.Database. Connection and auth
// setup live in cmd/core, following the teacher's convention of building
// the driver client once in main and passing the database down.
func New(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) patients() *mongo.Collection   { return s.db.Collection(CollectionPatients) }
func (s *MongoStore) amyDevices() *mongo.Collection { return s.db.Collection(CollectionAmyDevices) }
func (s *MongoStore) amyBoxes() *mongo.Collection   { return s.db.Collection(CollectionAmyBoxes) }
func (s *MongoStore) watches() *mongo.Collection    { return s.db.Collection(CollectionWatches) }

var slotField = map[resolver.Slot]string{
	resolver.SlotBloodPressure: "mac_bp",
	resolver.SlotGlucose:       "mac_glucose",
	resolver.SlotOximeter:      "mac_oximeter",
	resolver.SlotTemperature:   "mac_temperature",
	resolver.SlotWeight:        "mac_weight",
	resolver.SlotUricAcid:      "mac_uric_acid",
	resolver.SlotCholesterol:   "mac_cholesterol",
}

// FindBySlot implements resolver.Store. Gateway and watch slots are
// separate collections (amy_boxes, watches); every other AVA4 medical slot
// is a column on amy_devices (spec.md §6.2).
func (s *MongoStore) FindBySlot(ctx context.Context, slot resolver.Slot, identity string) (string, error) {
	switch slot {
	case resolver.SlotGateway:
		var doc boxMappingDoc
		err := s.amyBoxes().FindOne(ctx, bson.M{"mac": identity}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", resolver.ErrNotFound
		}
		if err != nil {
			return "", err
		}
		return doc.PatientID.Hex(), nil

	case resolver.SlotWatch:
		var doc watchMappingDoc
		err := s.watches().FindOne(ctx, bson.M{"imei": identity}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", resolver.ErrNotFound
		}
		if err != nil {
			return "", err
		}
		return doc.PatientID.Hex(), nil

	default:
		field, ok := slotField[slot]
		if !ok {
			return "", resolver.ErrNotFound
		}
		var doc deviceMappingDoc
		err := s.amyDevices().FindOne(ctx, bson.M{field: identity}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", resolver.ErrNotFound
		}
		if err != nil {
			return "", err
		}
		return doc.PatientID.Hex(), nil
	}
}

// FindByCitizenID implements resolver.Store.
func (s *MongoStore) FindByCitizenID(ctx context.Context, citiz string) (string, error) {
	var doc PatientDoc
	err := s.patients().FindOne(ctx, bson.M{"citiz": citiz, "deleted_at": bson.M{"$exists": false}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", resolver.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return doc.ID.Hex(), nil
}

// CreateUnregistered implements resolver.Store. Relies on a unique index
// on patients.citiz (provisioned by migrate-indexes) to make first-sighting
// provisioning safe under concurrent callers: on a duplicate-key error we
// re-read and return the winner's id instead of failing (spec.md §4.2, P4).
func (s *MongoStore) CreateUnregistered(ctx context.Context, hint codec.PatientHint) (string, error) {
	doc := PatientDoc{
		ID:           primitive.NewObjectID(),
		CitizenID:    hint.CitizenID,
		NameTH:       hint.NameTH,
		NameEN:       hint.NameEN,
		BirthDate:    hint.BirthDate,
		Gender:       hint.Gender,
		Unregistered: true,
		CreatedAt:    time.Now().UTC(),
	}

	_, err := s.patients().InsertOne(ctx, doc)
	if err == nil {
		return doc.ID.Hex(), nil
	}
	if mongo.IsDuplicateKeyError(err) {
		existing, findErr := s.FindByCitizenID(ctx, hint.CitizenID)
		if findErr != nil {
			return "", findErr
		}
		return existing, nil
	}
	return "", err
}

// ensure MongoStore satisfies resolver.Store at compile time.
var _ resolver.Store = (*MongoStore)(nil)
