package codec

import (
	"encoding/json"
	"time"
)

// ava4Envelope is the top-level AVA4 message shape (spec.md §4.1).
// Dispatch on Type mirrors the teacher's globalOutboxEvent envelope —
// one struct, several optional sub-objects gated by a type string.
type ava4Envelope struct {
	Type   string          `json:"type"`
	Time   int64           `json:"time"`
	Mac    string          `json:"mac"`
	Device string          `json:"device"`
	Data   ava4Attribute   `json:"data"`
}

type ava4Attribute struct {
	Attribute string          `json:"attribute"`
	Mac       string          `json:"mac"`
	Value     ava4AttrValue   `json:"value"`
}

type ava4AttrValue struct {
	DeviceList []ava4DeviceEntry `json:"device_list"`
}

// ava4DeviceEntry is one entry of data.value.device_list[]. Every possible
// field across the attribute dispatch table (spec.md §4.1) is represented;
// only the ones relevant to the matched attribute are read.
type ava4DeviceEntry struct {
	ScanTime int64  `json:"scan_time"`
	BleAddr  string `json:"ble_addr"`

	BPHigh float64 `json:"bp_high"`
	BPLow  float64 `json:"bp_low"`
	PR     float64 `json:"PR"`

	BloodGlucose float64 `json:"blood_glucose"`
	Marker       string  `json:"marker"`

	SpO2  float64 `json:"spo2"`
	Pulse float64 `json:"pulse"`
	PI    float64 `json:"pi"`

	Temp float64 `json:"temp"`
	Mode string  `json:"mode"`

	WeightKg   float64 `json:"weight"`
	Resistance float64 `json:"resistance"`

	UricAcid    float64 `json:"uric_acid"`
	Cholesterol float64 `json:"cholesterol"`
}

// ava4AttributeTable maps data.attribute → reading kind (spec.md §4.1).
var ava4AttributeTable = map[string]Kind{
	"BP_BIOLIGTH":      KindBloodPressure,
	"Contour_Elite":    KindBloodSugar,
	"AccuChek_Instant": KindBloodSugar,
	"Oximeter JUMPER":  KindSpO2,
	"IR_TEMO_JUMPER":   KindBodyTemperature,
	"BodyScale_JUMPER": KindWeight,
	"MGSS_REF_UA":      KindUricAcid,
	"MGSS_REF_CHOL":    KindCholesterol,
}

// DecodeAVA4 parses an ESP32_BLE_GW_TX/dusun_sub(or dusun_pub) payload into
// zero or more canonical readings (spec.md §4.1). HB_Msg/reportMsg produce a
// heartbeat reading carrying only the gateway identity — no medical payload.
func DecodeAVA4(topic string, raw []byte) ([]Reading, error) {
	var env ava4Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, malformedJSON(topic, err)
	}

	switch env.Type {
	case "HB_Msg", "reportMsg":
		gatewayMac := env.Mac
		if gatewayMac == "" {
			return nil, missingField(topic, "mac")
		}
		return []Reading{{
			Kind:     KindHeartbeat,
			Family:   FamilyAVA4Gateway,
			Device:   gatewayMac,
			DeviceTS: fromUnix(env.Time),
			Heartbeat: &Heartbeat{},
		}}, nil

	case "reportAttribute":
		return decodeAVA4Attribute(topic, env)

	default:
		return nil, unsupportedTopic(topic)
	}
}

func decodeAVA4Attribute(topic string, env ava4Envelope) ([]Reading, error) {
	kind, ok := ava4AttributeTable[env.Data.Attribute]
	if !ok {
		return nil, unsupportedAttribute(topic, env.Data.Attribute)
	}

	entries := env.Data.Value.DeviceList
	if len(entries) == 0 {
		return nil, missingField(topic, "data.value.device_list")
	}

	readings := make([]Reading, 0, len(entries))
	for _, entry := range entries {
		device := entry.BleAddr
		if device == "" {
			device = env.Data.Mac
		}
		if device == "" {
			device = env.Mac
		}

		gatewayMac := env.Data.Mac
		if gatewayMac == "" {
			gatewayMac = env.Mac
		}

		base := Reading{
			Kind:          kind,
			Family:        FamilyAVA4SubDevice,
			Device:        device,
			DeviceTS:      fromUnix(firstNonZero(entry.ScanTime, env.Time)),
			GatewayDevice: gatewayMac,
		}

		switch kind {
		case KindBloodPressure:
			base.BloodPressure = &BloodPressure{Systolic: entry.BPHigh, Diastolic: entry.BPLow, Pulse: entry.PR}
		case KindBloodSugar:
			base.BloodSugar = &BloodSugar{Value: entry.BloodGlucose, Marker: glucoseMarker(entry.Marker)}
		case KindSpO2:
			base.SpO2 = &SpO2{SpO2: entry.SpO2, Pulse: entry.Pulse, PerfusionIndex: entry.PI, HasPerfusionIndex: true}
		case KindBodyTemperature:
			base.BodyTemperature = &BodyTemperature{ValueC: entry.Temp, Site: temperatureSite(entry.Mode)}
		case KindWeight:
			base.Weight = &Weight{ValueKg: entry.WeightKg, ImpedanceOhm: entry.Resistance, HasImpedance: entry.Resistance != 0}
		case KindUricAcid:
			base.UricAcid = &UricAcid{Value: entry.UricAcid}
		case KindCholesterol:
			base.Cholesterol = &Cholesterol{Value: entry.Cholesterol}
		}

		readings = append(readings, checked(base))
	}
	return readings, nil
}

func glucoseMarker(raw string) GlucoseMarker {
	switch raw {
	case "fasting":
		return MarkerFasting
	case "after_meal":
		return MarkerAfterMeal
	default:
		return MarkerUnknown
	}
}

func temperatureSite(raw string) TemperatureSite {
	switch raw {
	case "head":
		return SiteHead
	case "armpit":
		return SiteArmpit
	default:
		return SiteOther
	}
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func firstNonZero(vals ...int64) int64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
