// Package flow implements the data-flow event emitter and broadcaster of
// spec.md §4.6: a bounded channel feeding a single consumer that fans out
// to an in-memory ring buffer and every connected WebSocket subscriber.
package flow

import (
	"time"

	"github.com/arc-self/amy-core/internal/codec"
)

// Step is one stage of the per-reading processing pipeline (spec.md §3,
// §4.8).
type Step string

const (
	StepReceived         Step = "received"
	StepParsed           Step = "parsed"
	StepResolved         Step = "resolved"
	StepSnapshotWritten  Step = "snapshot_written"
	StepHistoryWritten   Step = "history_written"
	StepEmittedEmergency Step = "emitted_emergency"
	StepRejected         Step = "rejected"
)

// Status is the outcome of a Step.
type Status string

const (
	StatusOK   Status = "ok"
	StatusFail Status = "fail"
)

// Event is the data-flow event of spec.md §3. Each reading decoded from an
// incoming MQTT message produces a causally ordered sequence of Events
// sharing one FlowID (I6); a message that fails to decode gets a single
// FlowID for its received/rejected pair.
type Event struct {
	FlowID    string       `json:"flow_id"`
	Step      Step         `json:"step"`
	Status    Status       `json:"status"`
	Family    codec.Family `json:"family_tag"`
	Topic     string       `json:"topic"`
	Device    string       `json:"device_identity"`
	PatientID *string      `json:"patient_id,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	ServerTS  time.Time    `json:"server_ts"`
}
