// Package codec parses the wire JSON of the three device families (AVA4,
// Kati Watch, Qube-Vital) into canonical readings. It is pure and
// side-effect free: no I/O, no clocks — every timestamp comes from the
// payload itself.
package codec

import "time"

// Family tags the device class a reading or message originated from.
type Family string

const (
	FamilyAVA4Gateway   Family = "AVA4_GATEWAY"
	FamilyAVA4SubDevice Family = "AVA4_SUBDEVICE"
	FamilyKatiWatch     Family = "KATI_WATCH"
	FamilyQubeVital     Family = "QUBE_VITAL"
)

// Kind discriminates the Reading sum type.
type Kind string

const (
	KindBloodPressure   Kind = "blood_pressure"
	KindBloodSugar      Kind = "blood_sugar"
	KindSpO2            Kind = "spo2"
	KindBodyTemperature Kind = "body_temperature"
	KindWeight          Kind = "weight"
	KindUricAcid        Kind = "uric_acid"
	KindCholesterol     Kind = "cholesterol"
	KindHeartRate       Kind = "heart_rate"
	KindStepCount       Kind = "step_count"
	KindSleepSummary    Kind = "sleep_summary"
	KindLocation        Kind = "location"
	KindEmergency       Kind = "emergency"
	KindHeartbeat       Kind = "heartbeat"
)

// EmergencyKind enumerates the emergency sub-kinds (spec.md §3).
type EmergencyKind string

const (
	EmergencySOS        EmergencyKind = "sos"
	EmergencyFall       EmergencyKind = "fall"
	EmergencyLowBattery EmergencyKind = "low_battery"
	EmergencyNotWorn    EmergencyKind = "not_worn"
	EmergencyOffline    EmergencyKind = "offline"
)

// GlucoseMarker enumerates blood_sugar.marker.
type GlucoseMarker string

const (
	MarkerFasting   GlucoseMarker = "fasting"
	MarkerAfterMeal GlucoseMarker = "after_meal"
	MarkerUnknown   GlucoseMarker = "unknown"
)

// TemperatureSite enumerates body_temperature.site.
type TemperatureSite string

const (
	SiteHead   TemperatureSite = "head"
	SiteArmpit TemperatureSite = "armpit"
	SiteOther  TemperatureSite = "other"
)

// SleepPhase enumerates sleep_summary segment phases.
type SleepPhase string

const (
	PhaseAwake SleepPhase = "awake"
	PhaseLight SleepPhase = "light"
	PhaseDeep  SleepPhase = "deep"
	PhaseREM   SleepPhase = "rem"
)

// GPS is an optional location fix carried by a reading.
type GPS struct {
	Lat float64
	Lon float64
}

// Location is the payload for KindLocation.
type Location struct {
	GPS     *GPS
	Cell    string
	WifiRaw string
}

// BloodPressure is the payload for KindBloodPressure.
type BloodPressure struct {
	Systolic  float64
	Diastolic float64
	Pulse     float64
}

// BloodSugar is the payload for KindBloodSugar.
type BloodSugar struct {
	Value  float64
	Marker GlucoseMarker
}

// SpO2 is the payload for KindSpO2.
type SpO2 struct {
	SpO2             float64
	Pulse            float64
	PerfusionIndex   float64
	HasPerfusionIndex bool
}

// BodyTemperature is the payload for KindBodyTemperature.
type BodyTemperature struct {
	ValueC float64
	Site   TemperatureSite
}

// Weight is the payload for KindWeight.
type Weight struct {
	ValueKg       float64
	ImpedanceOhm  float64
	HasImpedance  bool
}

// UricAcid is the payload for KindUricAcid.
type UricAcid struct {
	Value float64
}

// Cholesterol is the payload for KindCholesterol.
type Cholesterol struct {
	Value float64
}

// HeartRate is the payload for KindHeartRate.
type HeartRate struct {
	BPM float64
}

// StepCount is the payload for KindStepCount.
type StepCount struct {
	Steps int64
}

// SleepSegment is one ordered entry of a sleep_summary.
type SleepSegment struct {
	Phase      SleepPhase
	DurationS  int
}

// SleepSummary is the payload for KindSleepSummary.
type SleepSummary struct {
	StartTS  time.Time
	EndTS    time.Time
	Segments []SleepSegment
}

// Emergency is the payload for KindEmergency.
type Emergency struct {
	Kind     EmergencyKind
	Location *GPS
}

// Heartbeat is the payload for KindHeartbeat.
type Heartbeat struct {
	BatteryPct   int
	HasBattery   bool
	GSMSignal    int
	HasGSM       bool
	Satellites   int
	HasSatellites bool
	WorkingMode  string
}

// PatientHint is a side-channel carried only by Qube-Vital readings,
// consumed only by the Qube resolver path (spec.md §4.1).
type PatientHint struct {
	CitizenID   string
	NameTH      string
	NameEN      string
	BirthDate   string // YYYYMMDD, kept as-is — parsing is the resolver's concern
	Gender      string // "1"=male, "0"=female
}

// Reading is the canonical sum type produced by the codec. Exactly one of
// the payload fields is meaningful, selected by Kind — Go has no tagged
// unions, so this mirrors the teacher's own envelope-with-optional-fields
// idiom (globalOutboxEvent) rather than a generated union type.
type Reading struct {
	Kind     Kind
	Family   Family
	Device   string // the resolved device identity used for patient lookup
	DeviceTS time.Time
	GPS      *GPS

	// GatewayDevice is the enclosing AVA4 gateway MAC, set only for
	// FamilyAVA4SubDevice readings. The resolver falls back to it when the
	// sub-device MAC has no slot match (spec.md §4.2).
	GatewayDevice string

	BloodPressure   *BloodPressure
	BloodSugar      *BloodSugar
	SpO2            *SpO2
	BodyTemperature *BodyTemperature
	Weight          *Weight
	UricAcid        *UricAcid
	Cholesterol     *Cholesterol
	HeartRate       *HeartRate
	StepCount       *StepCount
	SleepSummary    *SleepSummary
	Location        *Location
	Emergency       *Emergency
	Heartbeat       *Heartbeat

	// Hint is set only for Qube-Vital readings; nil otherwise.
	Hint *PatientHint

	// OutOfRange is set by the soft range-check in errors.go. The reading
	// is still valid and must still be stored (spec.md §7). The listener
	// runtime carries OutOfRangeReason as the reason of the reading's
	// "parsed" flow event; no separate rejected or warning event is emitted.
	OutOfRange       bool
	OutOfRangeReason string
}
