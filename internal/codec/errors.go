package codec

import "fmt"

// FailureKind is the parse failure taxonomy from spec.md §4.1/§7.
type FailureKind string

const (
	FailureMalformedJSON        FailureKind = "malformed_json"
	FailureMissingField         FailureKind = "missing_required_field"
	FailureUnsupportedAttribute FailureKind = "unsupported_attribute"
	FailureUnsupportedTopic     FailureKind = "unsupported_topic"
	FailureOutOfRange           FailureKind = "value_out_of_range"
)

// ParseError reports a typed, non-fatal parse failure (spec.md §4.1/§7):
// malformed JSON, a missing required field, or a dispatch-table miss.
// Out-of-range values are not reported as a ParseError — they are still
// valid readings and are flagged via Reading.OutOfRange instead (see
// checked below), because the caller must still store them.
type ParseError struct {
	Kind   FailureKind
	Topic  string
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("codec: %s on topic %q: %s", e.Kind, e.Topic, e.Detail)
}

func malformedJSON(topic string, err error) error {
	return &ParseError{Kind: FailureMalformedJSON, Topic: topic, Detail: err.Error()}
}

func missingField(topic, field string) error {
	return &ParseError{Kind: FailureMissingField, Topic: topic, Detail: "missing field " + field}
}

func unsupportedAttribute(topic, attr string) error {
	return &ParseError{Kind: FailureUnsupportedAttribute, Topic: topic, Detail: "attribute " + attr}
}

func unsupportedTopic(topic string) error {
	return &ParseError{Kind: FailureUnsupportedTopic, Topic: topic, Detail: "no handler for topic"}
}

// rangeCheck validates the soft ranges from spec.md §4.1. It returns a
// non-empty reason when out of range; checked records that reason on the
// reading itself (OutOfRange/OutOfRangeReason) so the caller can still
// store it while surfacing a warning.
func rangeCheck(r *Reading) string {
	switch r.Kind {
	case KindBloodPressure:
		bp := r.BloodPressure
		if bp.Systolic < 50 || bp.Systolic > 260 {
			return "systolic out of range"
		}
		if bp.Diastolic < 30 || bp.Diastolic > 200 {
			return "diastolic out of range"
		}
	case KindSpO2:
		if r.SpO2.SpO2 < 50 || r.SpO2.SpO2 > 100 {
			return "spo2 out of range"
		}
	case KindBodyTemperature:
		if r.BodyTemperature.ValueC < 30 || r.BodyTemperature.ValueC > 45 {
			return "temperature out of range"
		}
	case KindWeight:
		if r.Weight.ValueKg < 1 || r.Weight.ValueKg > 400 {
			return "weight out of range"
		}
	}
	return ""
}

// checked applies rangeCheck and flags the reading in place when the soft
// bounds are violated (spec.md §4.1, §7: out-of-range readings are still
// accepted and stored, tagged with a warning).
func checked(r Reading) Reading {
	if reason := rangeCheck(&r); reason != "" {
		r.OutOfRange = true
		r.OutOfRangeReason = reason
	}
	return r
}
