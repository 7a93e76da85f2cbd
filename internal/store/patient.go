package store

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/arc-self/amy-core/internal/codec"
)

// PatientDoc is the patients collection document (spec.md §3). Device
// slots live in the separate read-only mapping collections (amy_devices,
// amy_boxes, watches) rather than embedded here — the core only reads
// those, never writes them (spec.md §6.2).
type PatientDoc struct {
	ID           primitive.ObjectID        `bson:"_id,omitempty"`
	CitizenID    string                    `bson:"citiz,omitempty"`
	NameTH       string                    `bson:"name_th,omitempty"`
	NameEN       string                    `bson:"name_en,omitempty"`
	BirthDate    string                    `bson:"brith,omitempty"`
	Gender       string                    `bson:"gender,omitempty"`
	Unregistered bool                      `bson:"unregistered"`
	DeletedAt    *time.Time                `bson:"deleted_at,omitempty"`
	Snapshots    map[codec.Kind]SnapshotDoc `bson:"snapshots,omitempty"`
	CreatedAt    time.Time                 `bson:"created_at"`
}

// SnapshotDoc is the per-kind "last_<kind>" field (spec.md §3): the most
// recent reading for a (patient, kind) pair, keyed by device_ts for the
// monotonicity compare-and-set (I2).
type SnapshotDoc struct {
	Reading    bson_Reading `bson:"reading"`
	DeviceTS   time.Time    `bson:"device_ts"`
	FamilyTag  codec.Family `bson:"family_tag"`
}

// bson_Reading is the BSON-serializable projection of codec.Reading used
// inside a snapshot field and a history record. It is a plain value type
// (no pointers the driver would choke on marshaling asymmetrically) built
// by toBSONReading and stored as-is, never re-decoded into codec.Reading.
type bson_Reading struct {
	Kind            codec.Kind              `bson:"kind"`
	Device          string                  `bson:"device"`
	GatewayDevice   string                  `bson:"gateway_device,omitempty"`
	BloodPressure   *codec.BloodPressure   `bson:"blood_pressure,omitempty"`
	BloodSugar      *codec.BloodSugar      `bson:"blood_sugar,omitempty"`
	SpO2            *codec.SpO2            `bson:"spo2,omitempty"`
	BodyTemperature *codec.BodyTemperature `bson:"body_temperature,omitempty"`
	Weight          *codec.Weight          `bson:"weight,omitempty"`
	UricAcid        *codec.UricAcid        `bson:"uric_acid,omitempty"`
	Cholesterol     *codec.Cholesterol     `bson:"cholesterol,omitempty"`
	HeartRate       *codec.HeartRate       `bson:"heart_rate,omitempty"`
	StepCount       *codec.StepCount       `bson:"step_count,omitempty"`
	SleepSummary    *codec.SleepSummary    `bson:"sleep_summary,omitempty"`
	Location        *codec.Location        `bson:"location,omitempty"`
	Emergency       *codec.Emergency       `bson:"emergency,omitempty"`
	GPS             *codec.GPS             `bson:"gps,omitempty"`
	OutOfRange      bool                    `bson:"out_of_range"`
	OutOfRangeReason string                 `bson:"out_of_range_reason,omitempty"`
}

// toBSONReading projects a codec.Reading into its storage representation.
func toBSONReading(r codec.Reading) bson_Reading {
	return bson_Reading{
		Kind: r.Kind, Device: r.Device, GatewayDevice: r.GatewayDevice,
		BloodPressure: r.BloodPressure, BloodSugar: r.BloodSugar, SpO2: r.SpO2,
		BodyTemperature: r.BodyTemperature, Weight: r.Weight, UricAcid: r.UricAcid,
		Cholesterol: r.Cholesterol, HeartRate: r.HeartRate, StepCount: r.StepCount,
		SleepSummary: r.SleepSummary, Location: r.Location, Emergency: r.Emergency,
		GPS: r.GPS, OutOfRange: r.OutOfRange, OutOfRangeReason: r.OutOfRangeReason,
	}
}

// HistoryDoc is one document in a per-kind "_histories" collection
// (spec.md §3 History Record).
type HistoryDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	PatientID    primitive.ObjectID `bson:"patient_id"`
	Reading      bson_Reading       `bson:"reading"`
	FamilyTag    codec.Family       `bson:"family_tag"`
	DeviceID     string             `bson:"device_identity"`
	ServerTS     time.Time          `bson:"server_ts"`
	DeviceTS     time.Time          `bson:"device_ts"`
}

// AuditDoc is one document in audit_log (spec.md §3 Audit Record), TTL
// indexed on ServerTS for 180-day expiry (spec.md §4.7, §6.2).
type AuditDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	ServerTS        time.Time          `bson:"server_ts"`
	PatientID        primitive.ObjectID `bson:"patient_id,omitempty"`
	ReadingKind      codec.Kind         `bson:"reading_kind"`
	SourceFamily     codec.Family       `bson:"source_family"`
	HistoryRecordID  primitive.ObjectID `bson:"history_record_id"`
}

// deviceMappingDoc backs amy_devices: one document per AVA4 sub-device
// patient assignment, one mac field per medical-device slot (spec.md §6.2:
// "amy_devices on each mac_* slot column").
type deviceMappingDoc struct {
	PatientID        primitive.ObjectID `bson:"patient_id"`
	MacBloodPressure string             `bson:"mac_bp,omitempty"`
	MacGlucose       string             `bson:"mac_glucose,omitempty"`
	MacOximeter      string             `bson:"mac_oximeter,omitempty"`
	MacTemperature   string             `bson:"mac_temperature,omitempty"`
	MacWeight        string             `bson:"mac_weight,omitempty"`
	MacUricAcid      string             `bson:"mac_uric_acid,omitempty"`
	MacCholesterol   string             `bson:"mac_cholesterol,omitempty"`
}

// boxMappingDoc backs amy_boxes: AVA4 gateway MAC → patient (spec.md §4.2
// gateway-MAC fallback).
type boxMappingDoc struct {
	PatientID primitive.ObjectID `bson:"patient_id"`
	Mac       string             `bson:"mac"`
}

// watchMappingDoc backs watches: Kati IMEI → patient, unique on imei
// (spec.md §6.2).
type watchMappingDoc struct {
	PatientID primitive.ObjectID `bson:"patient_id"`
	IMEI      string             `bson:"imei"`
}
