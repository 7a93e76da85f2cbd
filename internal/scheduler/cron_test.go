package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSnapshotter struct {
	snap HealthSnapshot
}

func (f *fakeSnapshotter) HealthSnapshot() HealthSnapshot { return f.snap }

func TestHealthScheduler_LogsSnapshotOnTick(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	src := &fakeSnapshotter{snap: HealthSnapshot{
		ListenerStates: map[string]string{"ava4": "running"},
		DroppedEvents:  3,
	}}
	s := NewHealthScheduler(src, logger)
	require.NoError(t, s.Start("* * * * * *")) // every second
	defer s.Stop()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("health snapshot").Len() > 0
	}, 3*time.Second, 50*time.Millisecond)

	entry := logs.FilterMessage("health snapshot").All()[0]
	fieldMap := entry.ContextMap()
	assert.Equal(t, "running", fieldMap["listener_ava4"])
	assert.EqualValues(t, 3, fieldMap["dataflow_dropped_events"])
}

func TestHealthScheduler_StopIsIdempotentSafe(t *testing.T) {
	logger := zap.NewNop()
	s := NewHealthScheduler(&fakeSnapshotter{}, logger)
	require.NoError(t, s.Start("@every 1h"))
	s.Stop()
	s.Stop()
}
