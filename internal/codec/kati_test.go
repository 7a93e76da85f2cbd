package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeKati_AP55Batch exercises scenario S2 from spec.md §8: two
// entries, each carrying heartRate/bloodPressure/spO2/bodyTemperature —
// 4 kinds per entry, 8 readings in total.
func TestDecodeKati_AP55Batch(t *testing.T) {
	payload := []byte(`{"IMEI":"IMEI123","num_datas":2,"data":[
		{"timestamp":1738331256,"heartRate":70,"bloodPressure":{"bp_sys":120,"bp_dia":80},"spO2":98,"temperature":36.5},
		{"timestamp":1738331316,"heartRate":72,"bloodPressure":{"bp_sys":121,"bp_dia":79},"spO2":97,"temperature":36.6}
	]}`)

	readings, err := DecodeKati("iMEDE_watch/AP55", payload)
	require.NoError(t, err)
	require.Len(t, readings, 8)

	kinds := map[Kind]int{}
	for _, r := range readings {
		kinds[r.Kind]++
		assert.Equal(t, FamilyKatiWatch, r.Family)
		assert.Equal(t, "IMEI123", r.Device)
	}
	assert.Equal(t, 2, kinds[KindHeartRate])
	assert.Equal(t, 2, kinds[KindBloodPressure])
	assert.Equal(t, 2, kinds[KindSpO2])
	assert.Equal(t, 2, kinds[KindBodyTemperature])
}

func TestDecodeKati_VitalSign(t *testing.T) {
	payload := []byte(`{"IMEI":"IMEI999","heartRate":80,"bloodPressure":{"bp_sys":118,"bp_dia":76},"temperature":37.0,"spO2":96,"timeStamps":"16/06/2025 12:30:45"}`)
	readings, err := DecodeKati("iMEDE_watch/VitalSign", payload)
	require.NoError(t, err)
	require.Len(t, readings, 4)
	for _, r := range readings {
		assert.Equal(t, 2025, r.DeviceTS.Year())
		assert.Equal(t, 16, r.DeviceTS.Day())
	}
}

func TestDecodeKati_SOSCaseInsensitive(t *testing.T) {
	for _, topic := range []string{"iMEDE_watch/sos", "iMEDE_watch/SOS"} {
		readings, err := DecodeKati(topic, []byte(`{"IMEI":""}`))
		require.NoError(t, err)
		require.Len(t, readings, 1)
		assert.Equal(t, EmergencySOS, readings[0].Emergency.Kind)
		assert.Equal(t, "", readings[0].Device)
	}
}

func TestDecodeKati_FallDown(t *testing.T) {
	readings, err := DecodeKati("iMEDE_watch/fallDown", []byte(`{"IMEI":"IMEI1"}`))
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, EmergencyFall, readings[0].Emergency.Kind)
}

func TestDecodeKati_OnlineTriggerOfflineVsOnline(t *testing.T) {
	readings, err := DecodeKati("iMEDE_watch/onlineTrigger", []byte(`{"IMEI":"IMEI1","status":"offline"}`))
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, EmergencyOffline, readings[0].Emergency.Kind)

	readings, err = DecodeKati("iMEDE_watch/onlineTrigger", []byte(`{"IMEI":"IMEI1","status":"online"}`))
	require.NoError(t, err)
	require.Len(t, readings, 0)
}

func TestDecodeKati_SleepData(t *testing.T) {
	// 6 minutes: 000111 -> awake x3, light x3
	payload := []byte(`{"IMEI":"IMEI1","sleep":{"data":"000111","time":"2200@0630","num":6}}`)
	readings, err := DecodeKati("iMEDE_watch/sleepdata", payload)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	s := readings[0].SleepSummary
	require.NotNil(t, s)
	require.Len(t, s.Segments, 2)
	assert.Equal(t, PhaseAwake, s.Segments[0].Phase)
	assert.Equal(t, 180, s.Segments[0].DurationS)
	assert.Equal(t, PhaseLight, s.Segments[1].Phase)
	assert.Equal(t, 180, s.Segments[1].DurationS)
}

func TestDecodeKati_SleepDataNumMismatchRejected(t *testing.T) {
	payload := []byte(`{"IMEI":"IMEI1","sleep":{"data":"0001","time":"2200@0630","num":6}}`)
	_, err := DecodeKati("iMEDE_watch/sleepdata", payload)
	require.Error(t, err)
}

func TestDecodeKati_HeartbeatWithStep(t *testing.T) {
	step := int64(1234)
	payload := []byte(`{"IMEI":"IMEI1","battery":80,"signalGSM":3,"satellite":5,"working_mode":"normal","step":1234}`)
	readings, err := DecodeKati("iMEDE_watch/hb", payload)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, KindHeartbeat, readings[0].Kind)
	assert.Equal(t, KindStepCount, readings[1].Kind)
	assert.Equal(t, step, readings[1].StepCount.Steps)
}

func TestDecodeKati_UnsupportedTopic(t *testing.T) {
	_, err := DecodeKati("iMEDE_watch/nonsense", []byte(`{}`))
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, FailureUnsupportedTopic, pe.Kind)
}
