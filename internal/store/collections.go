// Package store is the Mongo-backed persistence layer: the read-only
// device→patient mapping collections the resolver depends on, the patient
// snapshot document, the per-kind history collections, the emergency_alarm
// collection, and the TTL-indexed audit log (spec.md §3, §4.3, §6.2).
package store

import "github.com/arc-self/amy-core/internal/codec"

const (
	CollectionPatients      = "patients"
	CollectionAmyBoxes      = "amy_boxes"
	CollectionAmyDevices    = "amy_devices"
	CollectionWatches       = "watches"
	CollectionMfcHv01Boxes  = "mfc_hv01_boxes"
	CollectionEmergencyAlarm = "emergency_alarm"
	CollectionAuditLog      = "audit_log"
)

// historyCollections maps a reading kind to its append-only history
// collection name (spec.md §4.3). Emergency readings are written to
// CollectionEmergencyAlarm instead, never to a "_histories" collection.
var historyCollections = map[codec.Kind]string{
	codec.KindBloodPressure:   "blood_pressure_histories",
	codec.KindBloodSugar:      "blood_sugar_histories",
	codec.KindSpO2:            "spo2_histories",
	codec.KindBodyTemperature: "temperature_histories",
	codec.KindWeight:          "body_data_histories",
	codec.KindUricAcid:        "uric_acid_histories",
	codec.KindCholesterol:     "cholesterol_histories",
	codec.KindHeartRate:       "heart_rate_histories",
	codec.KindStepCount:       "step_histories",
	codec.KindSleepSummary:    "sleep_data_histories",
	codec.KindLocation:        "location_histories",
}

// HistoryCollection returns the collection a reading of kind is appended
// to, and whether kind has one. Emergency readings have no "_histories"
// collection and map to CollectionEmergencyAlarm; heartbeat has none.
func HistoryCollection(kind codec.Kind) (string, bool) {
	if kind == codec.KindEmergency {
		return CollectionEmergencyAlarm, true
	}
	name, ok := historyCollections[kind]
	return name, ok
}

// AllHistoryCollections lists every "_histories" collection name, used by
// migrate-indexes to provision the (patient_id, device_ts desc) index on
// each (spec.md §6.2).
func AllHistoryCollections() []string {
	names := make([]string, 0, len(historyCollections))
	for _, name := range historyCollections {
		names = append(names, name)
	}
	return names
}
