package flow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRingBuffer_FIFOEviction(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Push(Event{FlowID: fmt.Sprintf("f%d", i)})
	}
	snap := rb.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "f2", snap[0].FlowID)
	assert.Equal(t, "f3", snap[1].FlowID)
	assert.Equal(t, "f4", snap[2].FlowID)
}

func TestRingBuffer_LastNNeverExceedsAvailable(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Push(Event{FlowID: "only-one"})
	assert.Len(t, rb.Last(50), 1)
}

// TestEmitter_PreservesPerFlowOrder exercises I6/P5: events for the same
// flow_id arrive at the ring buffer in emission order.
func TestEmitter_PreservesPerFlowOrder(t *testing.T) {
	e := NewEmitter(100, 100, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)
	defer cancel()

	steps := []Step{StepReceived, StepParsed, StepResolved, StepSnapshotWritten, StepHistoryWritten}
	for _, s := range steps {
		e.Emit(Event{FlowID: "flow-1", Step: s, Status: StatusOK})
	}

	require.Eventually(t, func() bool {
		return len(e.ring.Snapshot()) == len(steps)
	}, time.Second, time.Millisecond)

	snap := e.ring.Snapshot()
	for i, s := range steps {
		assert.Equal(t, s, snap[i].Step)
	}
}

// TestEmitter_SlowSubscriberDropsOldest exercises the per-subscriber
// oldest-drop policy (spec.md §4.6).
func TestEmitter_SlowSubscriberDropsOldest(t *testing.T) {
	e := NewEmitter(10000, 10000, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)
	defer cancel()

	events, _, unsub := e.Subscribe(0)
	defer unsub()

	// Flood far past the per-subscriber buffer cap without ever draining it.
	for i := 0; i < subscriberBufferCap+50; i++ {
		e.Emit(Event{FlowID: fmt.Sprintf("f%d", i), Step: StepReceived})
	}

	require.Eventually(t, func() bool {
		return len(e.ring.Snapshot()) == subscriberBufferCap+50
	}, time.Second, time.Millisecond)

	// The subscriber channel is never drained, yet must never exceed its
	// cap: overflow is absorbed by dropping rather than by blocking.
	assert.LessOrEqual(t, len(events), subscriberBufferCap)
}

func TestEmitter_DroppedCounterStartsZero(t *testing.T) {
	e := NewEmitter(10, 10, nil, zap.NewNop())
	assert.Zero(t, e.DroppedCount())
}
