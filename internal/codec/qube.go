package codec

import "encoding/json"

// qubeEnvelope is the CM4_BLE_GW_TX payload shape (spec.md §4.1).
type qubeEnvelope struct {
	Type string        `json:"type"`
	Mac  string        `json:"mac"`
	Time int64         `json:"time"`
	Data qubeAttribute `json:"data"`

	Citiz  string `json:"citiz"`
	NameTH string `json:"nameTH"`
	NameEN string `json:"nameEN"`
	Brith  string `json:"brith"`
	Gender string `json:"gender"`
}

type qubeAttribute struct {
	Attribute string  `json:"attribute"`
	BPHigh    float64 `json:"bp_high"`
	BPLow     float64 `json:"bp_low"`
	PR        float64 `json:"pr"`

	BloodGlucose float64 `json:"blood_glucose"`

	WeightKg float64 `json:"weight"`

	Temp float64 `json:"Temp"`
	Mode string  `json:"mode"`

	SpO2  float64 `json:"spo2"`
	Pulse float64 `json:"pulse"`
}

var qubeAttributeTable = map[string]Kind{
	"WBP_JUMPER":       KindBloodPressure,
	"CONTOUR":          KindBloodSugar,
	"BodyScale_JUMPER": KindWeight,
	"TEMO_Jumper":      KindBodyTemperature,
	"Oximeter_JUMPER":  KindSpO2,
}

// DecodeQube parses a CM4_BLE_GW_TX payload (spec.md §4.1). Qube-Vital
// messages additionally identify the patient by citizen ID and carry
// demographics; this codec attaches them as a PatientHint side-channel
// consumed only by the Qube resolver path.
func DecodeQube(topic string, raw []byte) ([]Reading, error) {
	var env qubeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, malformedJSON(topic, err)
	}

	switch env.Type {
	case "HB_Msg":
		if env.Mac == "" {
			return nil, missingField(topic, "mac")
		}
		return []Reading{{
			Kind: KindHeartbeat, Family: FamilyQubeVital, Device: env.Mac, DeviceTS: fromUnix(env.Time),
			Heartbeat: &Heartbeat{},
		}}, nil

	case "reportAttribute":
		return decodeQubeAttribute(topic, env)

	default:
		return nil, unsupportedTopic(topic)
	}
}

func decodeQubeAttribute(topic string, env qubeEnvelope) ([]Reading, error) {
	kind, ok := qubeAttributeTable[env.Data.Attribute]
	if !ok {
		return nil, unsupportedAttribute(topic, env.Data.Attribute)
	}
	if env.Citiz == "" {
		return nil, missingField(topic, "citiz")
	}

	hint := &PatientHint{
		CitizenID: env.Citiz,
		NameTH:    env.NameTH,
		NameEN:    env.NameEN,
		BirthDate: env.Brith,
		Gender:    env.Gender,
	}

	base := Reading{
		Kind: kind, Family: FamilyQubeVital, Device: env.Mac, DeviceTS: fromUnix(env.Time), Hint: hint,
	}

	switch kind {
	case KindBloodPressure:
		base.BloodPressure = &BloodPressure{Systolic: env.Data.BPHigh, Diastolic: env.Data.BPLow, Pulse: env.Data.PR}
	case KindBloodSugar:
		base.BloodSugar = &BloodSugar{Value: env.Data.BloodGlucose, Marker: MarkerUnknown}
	case KindWeight:
		base.Weight = &Weight{ValueKg: env.Data.WeightKg}
	case KindBodyTemperature:
		base.BodyTemperature = &BodyTemperature{ValueC: env.Data.Temp, Site: temperatureSite(env.Data.Mode)}
	case KindSpO2:
		base.SpO2 = &SpO2{SpO2: env.Data.SpO2, Pulse: env.Data.Pulse}
	}

	return []Reading{checked(base)}, nil
}
