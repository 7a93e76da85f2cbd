// Package resolver maps a device identity (MAC, IMEI, citizen ID) carried
// on a canonical reading to an internal patient identifier (spec.md §4.2).
package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/arc-self/amy-core/internal/codec"
)

// Outcome is the tri-state result of a resolve attempt.
type Outcome string

const (
	OutcomeResolved       Outcome = "resolved"
	OutcomeUnresolved     Outcome = "unresolved"
	OutcomeAutoProvisioned Outcome = "auto_provisioned"
)

// Result is returned by Resolve.
type Result struct {
	Outcome   Outcome
	PatientID string
}

// Slot names one of the device-identity columns on a patient document
// (spec.md §3: "a set of device-identity slots").
type Slot string

const (
	SlotGateway        Slot = "gateway"
	SlotBloodPressure  Slot = "blood_pressure"
	SlotGlucose        Slot = "glucose"
	SlotOximeter       Slot = "oximeter"
	SlotTemperature    Slot = "temperature"
	SlotWeight         Slot = "weight"
	SlotUricAcid       Slot = "uric_acid"
	SlotCholesterol    Slot = "cholesterol"
	SlotWatch          Slot = "watch"
)

// ErrNotFound is returned by Store lookups when no patient owns the given
// device identity.
var ErrNotFound = errors.New("resolver: device identity not registered")

// Store is the persistence seam the resolver depends on. internal/store
// implements it against Mongo; tests use an in-memory fake.
type Store interface {
	// FindBySlot looks up the patient owning identity in the given slot.
	FindBySlot(ctx context.Context, slot Slot, identity string) (patientID string, err error)
	// FindByCitizenID looks up the patient with the given citizen ID.
	FindByCitizenID(ctx context.Context, citiz string) (patientID string, err error)
	// CreateUnregistered auto-provisions a patient from a Qube-Vital
	// PatientHint. On a uniqueness conflict on citiz it must return the
	// existing patient's ID and a nil error — first-sighting provisioning
	// must be idempotent under concurrent callers (spec.md §4.2).
	CreateUnregistered(ctx context.Context, hint codec.PatientHint) (patientID string, err error)
}

// slotForKind maps an AVA4 reading kind to the medical-device slot column
// it is looked up against (spec.md §3, §4.2).
func slotForKind(k codec.Kind) (Slot, bool) {
	switch k {
	case codec.KindBloodPressure:
		return SlotBloodPressure, true
	case codec.KindBloodSugar:
		return SlotGlucose, true
	case codec.KindSpO2:
		return SlotOximeter, true
	case codec.KindBodyTemperature:
		return SlotTemperature, true
	case codec.KindWeight:
		return SlotWeight, true
	case codec.KindUricAcid:
		return SlotUricAcid, true
	case codec.KindCholesterol:
		return SlotCholesterol, true
	default:
		return "", false
	}
}

// DefaultCacheTTL is used when configuration supplies no explicit TTL.
const DefaultCacheTTL = 60 * time.Second
