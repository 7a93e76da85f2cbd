package emergency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/amy-core/internal/codec"
	"github.com/arc-self/amy-core/internal/flow"
	"github.com/arc-self/amy-core/internal/resolver"
	"github.com/arc-self/amy-core/internal/writer"
)

type fakeResolver struct {
	result resolver.Result
	err    error
}

func (f *fakeResolver) Resolve(ctx context.Context, reading codec.Reading) (resolver.Result, error) {
	return f.result, f.err
}

type fakeWriter struct {
	calls    int
	lastPID  string
	result   writer.Result
	err      error
}

func (f *fakeWriter) Store(ctx context.Context, patientID string, reading codec.Reading) (writer.Result, error) {
	f.calls++
	f.lastPID = patientID
	return f.result, f.err
}

func sosReading() codec.Reading {
	return codec.Reading{
		Kind:     codec.KindEmergency,
		Family:   codec.FamilyKatiWatch,
		Device:   "865000000000001",
		DeviceTS: time.Now(),
		Emergency: &codec.Emergency{Kind: codec.EmergencySOS},
	}
}

func newEmitter() *flow.Emitter {
	e := flow.NewEmitter(1000, 500, nil, zap.NewNop())
	go e.Run(context.Background())
	return e
}

// TestHandle_ResolvedSOS exercises the CRITICAL path end to end: resolved
// patient, written, and emitted_emergency fires.
func TestHandle_ResolvedSOS(t *testing.T) {
	r := &fakeResolver{result: resolver.Result{Outcome: resolver.OutcomeResolved, PatientID: "patient-1"}}
	w := &fakeWriter{result: writer.Result{Outcome: writer.OutcomeWritten, HistoryRecordID: "hist-1"}}
	e := newEmitter()
	p := New(r, w, e, zap.NewNop())

	events, _, cancel := e.Subscribe(0)
	defer cancel()

	err := p.Handle(context.Background(), "flow-1", "iMEDE_watch/sos", sosReading())
	require.NoError(t, err)
	assert.Equal(t, 1, w.calls)
	assert.Equal(t, "patient-1", w.lastPID)

	steps := collectSteps(t, events, 4)
	assert.Equal(t, []flow.Step{flow.StepResolved, flow.StepSnapshotWritten, flow.StepHistoryWritten, flow.StepEmittedEmergency}, steps)
}

// TestHandle_UnresolvedSOSStillWrittenAndEmitted exercises S4/I5: an
// emergency with no resolvable patient is still persisted (patient_id
// null) and still broadcast, never dropped.
func TestHandle_UnresolvedSOSStillWrittenAndEmitted(t *testing.T) {
	r := &fakeResolver{result: resolver.Result{Outcome: resolver.OutcomeUnresolved}}
	w := &fakeWriter{result: writer.Result{Outcome: writer.OutcomeWritten, HistoryRecordID: "hist-2"}}
	e := newEmitter()
	p := New(r, w, e, zap.NewNop())

	events, _, cancel := e.Subscribe(0)
	defer cancel()

	err := p.Handle(context.Background(), "flow-2", "iMEDE_watch/SOS", sosReading())
	require.NoError(t, err)
	assert.Equal(t, 1, w.calls)
	assert.Equal(t, "", w.lastPID)

	steps := collectSteps(t, events, 4)
	assert.Equal(t, []flow.Step{flow.StepResolved, flow.StepSnapshotWritten, flow.StepHistoryWritten, flow.StepEmittedEmergency}, steps)
}

func TestPriorityFor(t *testing.T) {
	assert.Equal(t, PriorityCritical, PriorityFor(codec.EmergencySOS))
	assert.Equal(t, PriorityHigh, PriorityFor(codec.EmergencyFall))
	assert.Equal(t, PriorityMedium, PriorityFor(codec.EmergencyLowBattery))
	assert.Equal(t, PriorityMedium, PriorityFor(codec.EmergencyNotWorn))
	assert.Equal(t, PriorityMedium, PriorityFor(codec.EmergencyOffline))
}

func TestHandle_ResolverErrorEmitsRejectedAndReturnsError(t *testing.T) {
	r := &fakeResolver{err: errors.New("store unavailable")}
	w := &fakeWriter{}
	e := newEmitter()
	p := New(r, w, e, zap.NewNop())

	events, _, cancel := e.Subscribe(0)
	defer cancel()

	err := p.Handle(context.Background(), "flow-3", "iMEDE_watch/sos", sosReading())
	require.Error(t, err)
	assert.Zero(t, w.calls)

	steps := collectSteps(t, events, 1)
	assert.Equal(t, []flow.Step{flow.StepRejected}, steps)
}

func TestHandle_WriterErrorEmitsRejectedButStillResolved(t *testing.T) {
	r := &fakeResolver{result: resolver.Result{Outcome: resolver.OutcomeResolved, PatientID: "patient-9"}}
	w := &fakeWriter{err: errors.New("mongo down")}
	e := newEmitter()
	p := New(r, w, e, zap.NewNop())

	events, _, cancel := e.Subscribe(0)
	defer cancel()

	err := p.Handle(context.Background(), "flow-4", "iMEDE_watch/sos", sosReading())
	require.Error(t, err)

	steps := collectSteps(t, events, 2)
	assert.Equal(t, []flow.Step{flow.StepResolved, flow.StepRejected}, steps)
}

func TestHandle_RejectsNonEmergencyReading(t *testing.T) {
	r := &fakeResolver{}
	w := &fakeWriter{}
	e := newEmitter()
	p := New(r, w, e, zap.NewNop())

	reading := codec.Reading{Kind: codec.KindHeartRate}
	err := p.Handle(context.Background(), "flow-5", "topic", reading)
	require.Error(t, err)
	assert.Zero(t, w.calls)
}

func collectSteps(t *testing.T, events <-chan flow.Event, n int) []flow.Step {
	t.Helper()
	steps := make([]flow.Step, 0, n)
	for i := 0; i < n; i++ {
		select {
		case ev := <-events:
			steps = append(steps, ev.Step)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d/%d", i+1, n)
		}
	}
	return steps
}
