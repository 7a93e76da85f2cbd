package codec

import "strings"

// Topic name constants (spec.md §4.1, §4.4). dusun_pub is a historical
// alias for dusun_sub accepted alongside it (spec.md §9).
const (
	TopicAVA4Gateway  = "ESP32_BLE_GW_TX"
	TopicAVA4SubSub   = "dusun_sub"
	TopicAVA4SubAlias = "dusun_pub"
	TopicKatiPrefix   = "iMEDE_watch/"
	TopicQube         = "CM4_BLE_GW_TX"
)

// Decode dispatches a raw MQTT payload to the codec matching family, the
// single entry point the listener runtime calls (spec.md §4.1).
func Decode(family Family, topic string, raw []byte) ([]Reading, error) {
	switch family {
	case FamilyAVA4Gateway, FamilyAVA4SubDevice:
		return DecodeAVA4(topic, raw)
	case FamilyKatiWatch:
		return DecodeKati(topic, raw)
	case FamilyQubeVital:
		return DecodeQube(topic, raw)
	default:
		return nil, unsupportedTopic(topic)
	}
}

// FamilyForTopic resolves which family owns a given topic, used by the
// listener runtime to pick the right worker/decoder pairing (spec.md §4.4).
func FamilyForTopic(topic string) (Family, bool) {
	switch {
	case topic == TopicAVA4Gateway:
		return FamilyAVA4Gateway, true
	case topic == TopicAVA4SubSub || topic == TopicAVA4SubAlias:
		return FamilyAVA4SubDevice, true
	case strings.HasPrefix(topic, TopicKatiPrefix):
		return FamilyKatiWatch, true
	case topic == TopicQube:
		return FamilyQubeVital, true
	default:
		return "", false
	}
}
