package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const katiTimeLayout = "02/01/2006 15:04:05"

// katiEnvelope covers every Kati subtopic payload shape (spec.md §4.1).
// Only the fields relevant to the dispatched subtopic are populated by the
// device; the rest are simply absent from the JSON and left zero-valued.
type katiEnvelope struct {
	IMEI string `json:"IMEI"`

	// VitalSign / AP55 tuple fields
	HeartRate     float64        `json:"heartRate"`
	BloodPressure *katiBP        `json:"bloodPressure"`
	Temperature   float64        `json:"temperature"`
	SpO2          float64        `json:"spO2"`
	Location      *katiLocation  `json:"location"`
	Timestamps    string         `json:"timeStamps"`

	// AP55 batch
	Data []katiTuple `json:"data"`

	// hb
	Battery     int    `json:"battery"`
	Signal      int    `json:"signalGSM"`
	Satellite   int    `json:"satellite"`
	WorkingMode string `json:"working_mode"`
	Step        *int64 `json:"step"`

	// sleepdata
	Sleep *katiSleep `json:"sleep"`

	// status (onlineTrigger)
	Status string `json:"status"`
}

type katiBP struct {
	BPSys float64 `json:"bp_sys"`
	BPDia float64 `json:"bp_dia"`
}

type katiLocation struct {
	GPS *GPS   `json:"gps"`
	Cell string `json:"cell"`
	Wifi string `json:"wifi"`
}

type katiTuple struct {
	Timestamp     int64   `json:"timestamp"`
	HeartRate     float64 `json:"heartRate"`
	BloodPressure *katiBP `json:"bloodPressure"`
	Temperature   float64 `json:"temperature"`
	SpO2          float64 `json:"spO2"`
}

type katiSleep struct {
	Data string `json:"data"`
	Time string `json:"time"`
	Num  int    `json:"num"`
}

// DecodeKati parses a message published under iMEDE_watch/<subtopic>
// (spec.md §4.1). Subtopic matching is case-insensitive on the final
// segment, per spec.md §9 ("sos"/"SOS" both appear in the source).
func DecodeKati(topic string, raw []byte) ([]Reading, error) {
	sub := lastSegment(topic)
	lower := strings.ToLower(sub)

	var env katiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, malformedJSON(topic, err)
	}

	switch lower {
	case "vitalsign":
		return decodeKatiVitalSign(topic, env)
	case "ap55":
		return decodeKatiAP55(topic, env)
	case "hb":
		return decodeKatiHeartbeat(topic, env)
	case "location":
		return decodeKatiLocation(topic, env)
	case "sleepdata":
		return decodeKatiSleep(topic, env)
	case "sos":
		return emergencyReading(FamilyKatiWatch, env.IMEI, EmergencySOS, nil), nil
	case "falldown":
		return emergencyReading(FamilyKatiWatch, env.IMEI, EmergencyFall, nil), nil
	case "onlinetrigger":
		if env.Status == "offline" {
			return emergencyReading(FamilyKatiWatch, env.IMEI, EmergencyOffline, nil), nil
		}
		return nil, nil
	default:
		return nil, unsupportedTopic(topic)
	}
}

func lastSegment(topic string) string {
	parts := strings.Split(topic, "/")
	return parts[len(parts)-1]
}

func decodeKatiVitalSign(topic string, env katiEnvelope) ([]Reading, error) {
	if env.IMEI == "" {
		return nil, missingField(topic, "IMEI")
	}
	ts, err := parseKatiTime(env.Timestamps)
	if err != nil {
		return nil, missingField(topic, "timeStamps")
	}

	var gps *GPS
	if env.Location != nil {
		gps = env.Location.GPS
	}

	var out []Reading
	out = append(out, checked(Reading{
		Kind: KindHeartRate, Family: FamilyKatiWatch, Device: env.IMEI, DeviceTS: ts, GPS: gps,
		HeartRate: &HeartRate{BPM: env.HeartRate},
	}))
	if env.BloodPressure != nil {
		out = append(out, checked(Reading{
			Kind: KindBloodPressure, Family: FamilyKatiWatch, Device: env.IMEI, DeviceTS: ts, GPS: gps,
			BloodPressure: &BloodPressure{Systolic: env.BloodPressure.BPSys, Diastolic: env.BloodPressure.BPDia},
		}))
	}
	out = append(out, checked(Reading{
		Kind: KindBodyTemperature, Family: FamilyKatiWatch, Device: env.IMEI, DeviceTS: ts, GPS: gps,
		BodyTemperature: &BodyTemperature{ValueC: env.Temperature, Site: SiteOther},
	}))
	out = append(out, checked(Reading{
		Kind: KindSpO2, Family: FamilyKatiWatch, Device: env.IMEI, DeviceTS: ts, GPS: gps,
		SpO2: &SpO2{SpO2: env.SpO2},
	}))
	if env.Location != nil {
		out = append(out, Reading{
			Kind: KindLocation, Family: FamilyKatiWatch, Device: env.IMEI, DeviceTS: ts,
			Location: &Location{GPS: env.Location.GPS, Cell: env.Location.Cell, WifiRaw: env.Location.Wifi},
		})
	}
	return out, nil
}

func decodeKatiAP55(topic string, env katiEnvelope) ([]Reading, error) {
	if env.IMEI == "" {
		return nil, missingField(topic, "IMEI")
	}
	if len(env.Data) == 0 {
		return nil, missingField(topic, "data")
	}

	var out []Reading
	for _, tup := range env.Data {
		ts := fromUnix(tup.Timestamp)
		out = append(out, checked(Reading{
			Kind: KindHeartRate, Family: FamilyKatiWatch, Device: env.IMEI, DeviceTS: ts,
			HeartRate: &HeartRate{BPM: tup.HeartRate},
		}))
		if tup.BloodPressure != nil {
			out = append(out, checked(Reading{
				Kind: KindBloodPressure, Family: FamilyKatiWatch, Device: env.IMEI, DeviceTS: ts,
				BloodPressure: &BloodPressure{Systolic: tup.BloodPressure.BPSys, Diastolic: tup.BloodPressure.BPDia},
			}))
		}
		out = append(out, checked(Reading{
			Kind: KindSpO2, Family: FamilyKatiWatch, Device: env.IMEI, DeviceTS: ts,
			SpO2: &SpO2{SpO2: tup.SpO2},
		}))
		out = append(out, checked(Reading{
			Kind: KindBodyTemperature, Family: FamilyKatiWatch, Device: env.IMEI, DeviceTS: ts,
			BodyTemperature: &BodyTemperature{ValueC: tup.Temperature, Site: SiteOther},
		}))
	}
	return out, nil
}

func decodeKatiHeartbeat(topic string, env katiEnvelope) ([]Reading, error) {
	if env.IMEI == "" {
		return nil, missingField(topic, "IMEI")
	}
	hb := Reading{
		Kind: KindHeartbeat, Family: FamilyKatiWatch, Device: env.IMEI,
		Heartbeat: &Heartbeat{
			BatteryPct: env.Battery, HasBattery: true,
			GSMSignal: env.Signal, HasGSM: true,
			Satellites: env.Satellite, HasSatellites: true,
			WorkingMode: env.WorkingMode,
		},
	}
	out := []Reading{hb}
	if env.Step != nil {
		out = append(out, Reading{
			Kind: KindStepCount, Family: FamilyKatiWatch, Device: env.IMEI,
			StepCount: &StepCount{Steps: *env.Step},
		})
	}
	return out, nil
}

func decodeKatiLocation(topic string, env katiEnvelope) ([]Reading, error) {
	if env.IMEI == "" {
		return nil, missingField(topic, "IMEI")
	}
	if env.Location == nil {
		return nil, missingField(topic, "location")
	}
	return []Reading{{
		Kind: KindLocation, Family: FamilyKatiWatch, Device: env.IMEI,
		Location: &Location{GPS: env.Location.GPS, Cell: env.Location.Cell, WifiRaw: env.Location.Wifi},
	}}, nil
}

// decodeKatiSleep decodes the digit-string sleep encoding (spec.md §4.1):
// sleep.data is a string of digit characters, one per minute, each naming a
// sleep phase; sleep.time carries the "HHMM@HHMM" window. Consecutive
// identical characters are grouped into a single segment. num must equal
// the total character count — mismatch is rejected.
func decodeKatiSleep(topic string, env katiEnvelope) ([]Reading, error) {
	if env.IMEI == "" {
		return nil, missingField(topic, "IMEI")
	}
	if env.Sleep == nil {
		return nil, missingField(topic, "sleep")
	}
	if len(env.Sleep.Data) != env.Sleep.Num {
		return nil, missingField(topic, fmt.Sprintf("sleep.num mismatch: got %d chars, num=%d", len(env.Sleep.Data), env.Sleep.Num))
	}

	start, end, err := parseSleepWindow(env.Sleep.Time)
	if err != nil {
		return nil, missingField(topic, "sleep.time")
	}

	segments := groupSleepSegments(env.Sleep.Data)

	return []Reading{{
		Kind: KindSleepSummary, Family: FamilyKatiWatch, Device: env.IMEI, DeviceTS: start,
		SleepSummary: &SleepSummary{StartTS: start, EndTS: end, Segments: segments},
	}}, nil
}

func groupSleepSegments(data string) []SleepSegment {
	if data == "" {
		return nil
	}
	var segments []SleepSegment
	cur := data[0]
	count := 0
	flush := func() {
		if count > 0 {
			segments = append(segments, SleepSegment{Phase: sleepPhase(cur), DurationS: count * 60})
		}
	}
	for i := 0; i < len(data); i++ {
		if data[i] != cur {
			flush()
			cur = data[i]
			count = 0
		}
		count++
	}
	flush()
	return segments
}

func sleepPhase(c byte) SleepPhase {
	switch c {
	case '0':
		return PhaseAwake
	case '1':
		return PhaseLight
	case '2':
		return PhaseDeep
	case '3':
		return PhaseREM
	default:
		return PhaseAwake
	}
}

// parseSleepWindow parses an "HHMM@HHMM" window into start/end times on
// 1970-01-01 UTC. The source gives no date, only times — this preserves that
// ambiguity rather than guessing a date (spec.md §9: UTC unless an operator
// timezone is supplied; here we anchor to the Unix epoch date since no
// date is available, leaving callers to rebase as needed).
func parseSleepWindow(window string) (time.Time, time.Time, error) {
	parts := strings.Split(window, "@")
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("malformed sleep window %q", window)
	}
	start, err := parseHHMM(parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseHHMM(parts[1])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func parseHHMM(hhmm string) (time.Time, error) {
	if len(hhmm) != 4 {
		return time.Time{}, fmt.Errorf("malformed HHMM %q", hhmm)
	}
	h, err := strconv.Atoi(hhmm[:2])
	if err != nil {
		return time.Time{}, err
	}
	m, err := strconv.Atoi(hhmm[2:])
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(1970, 1, 1, h, m, 0, 0, time.UTC), nil
}

// parseKatiTime parses the "DD/MM/YYYY HH:MM:SS" format used by VitalSign,
// interpreted as UTC per spec.md §9 (timezone left unspecified in the
// source; UTC is the documented default absent an operator override).
func parseKatiTime(s string) (time.Time, error) {
	return time.ParseInLocation(katiTimeLayout, s, time.UTC)
}

// emergencyReading builds the single-element slice for an emergency
// reading. Device may be empty (unknown IMEI) — the reading is still
// emitted; resolution happens downstream (I5, spec.md §3).
func emergencyReading(family Family, device string, kind EmergencyKind, loc *GPS) []Reading {
	return []Reading{{
		Kind: KindEmergency, Family: family, Device: device,
		Emergency: &Emergency{Kind: kind, Location: loc},
	}}
}
