package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeQube_FirstSighting exercises scenario S3 from spec.md §8: a
// Qube-Vital blood-pressure reading for a citizen ID never seen before,
// carrying demographics for auto-provisioning.
func TestDecodeQube_FirstSighting(t *testing.T) {
	payload := []byte(`{"type":"reportAttribute","mac":"qube-gw-1","time":1738331256,"citiz":"1103700123456","nameTH":"สมชาย ใจดี","nameEN":"Somchai Jaidee","brith":"1980-05-12","gender":"M","data":{"attribute":"WBP_JUMPER","bp_high":132,"bp_low":88,"pr":70}}`)

	readings, err := DecodeQube(TopicQube, payload)
	require.NoError(t, err)
	require.Len(t, readings, 1)

	r := readings[0]
	assert.Equal(t, KindBloodPressure, r.Kind)
	assert.Equal(t, FamilyQubeVital, r.Family)
	require.NotNil(t, r.BloodPressure)
	assert.Equal(t, 132.0, r.BloodPressure.Systolic)
	assert.Equal(t, 88.0, r.BloodPressure.Diastolic)

	require.NotNil(t, r.Hint)
	assert.Equal(t, "1103700123456", r.Hint.CitizenID)
	assert.Equal(t, "Somchai Jaidee", r.Hint.NameEN)
	assert.Equal(t, "1980-05-12", r.Hint.BirthDate)
	assert.Equal(t, "M", r.Hint.Gender)
}

func TestDecodeQube_Heartbeat(t *testing.T) {
	readings, err := DecodeQube(TopicQube, []byte(`{"type":"HB_Msg","mac":"qube-gw-1","time":1700000000}`))
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, KindHeartbeat, readings[0].Kind)
	assert.Equal(t, "qube-gw-1", readings[0].Device)
}

func TestDecodeQube_HeartbeatMissingMac(t *testing.T) {
	_, err := DecodeQube(TopicQube, []byte(`{"type":"HB_Msg"}`))
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, FailureMissingField, pe.Kind)
}

func TestDecodeQube_UnsupportedAttribute(t *testing.T) {
	payload := []byte(`{"type":"reportAttribute","mac":"qube-gw-1","citiz":"123","data":{"attribute":"NOT_REAL"}}`)
	_, err := DecodeQube(TopicQube, payload)
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, FailureUnsupportedAttribute, pe.Kind)
}

func TestDecodeQube_MissingCitiz(t *testing.T) {
	payload := []byte(`{"type":"reportAttribute","mac":"qube-gw-1","data":{"attribute":"WBP_JUMPER","bp_high":120,"bp_low":80}}`)
	_, err := DecodeQube(TopicQube, payload)
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, FailureMissingField, pe.Kind)
	assert.Contains(t, pe.Detail, "citiz")
}

func TestDecodeQube_UnsupportedTopic(t *testing.T) {
	_, err := DecodeQube("CM4_BLE_GW_TX_WRONG", []byte(`{"type":"nonsense"}`))
	require.Error(t, err)
}

func TestDecodeQube_MalformedJSON(t *testing.T) {
	_, err := DecodeQube(TopicQube, []byte(`{broken`))
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, FailureMalformedJSON, pe.Kind)
}
