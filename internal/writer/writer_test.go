package writer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/amy-core/internal/codec"
)

// fakeStore is an in-memory Store exercising the exact CAS semantics of
// internal/store's conditional UpdateOne (I2): only advance when strictly
// newer.
type fakeStore struct {
	mu         sync.Mutex
	history    []codec.Reading
	snapshots  map[string]map[codec.Kind]time.Time // patientID -> kind -> device_ts
	failHistory bool
	snapshotFailures int // number of leading UpdateSnapshot calls to fail with a transient error
}

func newFakeStore() *fakeStore {
	return &fakeStore{snapshots: make(map[string]map[codec.Kind]time.Time)}
}

func (f *fakeStore) AppendHistory(_ context.Context, patientID string, reading codec.Reading) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHistory {
		return "", errors.New("simulated history failure")
	}
	f.history = append(f.history, reading)
	return fmt.Sprintf("hist-%d", len(f.history)), nil
}

func (f *fakeStore) UpdateSnapshot(_ context.Context, patientID string, reading codec.Reading) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.snapshotFailures > 0 {
		f.snapshotFailures--
		return false, errors.New("simulated transient snapshot failure")
	}

	if f.snapshots[patientID] == nil {
		f.snapshots[patientID] = make(map[codec.Kind]time.Time)
	}
	current, ok := f.snapshots[patientID][reading.Kind]
	if ok && !reading.DeviceTS.After(current) {
		return false, nil
	}
	f.snapshots[patientID][reading.Kind] = reading.DeviceTS
	return true, nil
}

func (f *fakeStore) historyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.history)
}

// fakeAudit counts RecordAudit calls per history record id.
type fakeAudit struct {
	mu      sync.Mutex
	records []string
}

func (f *fakeAudit) RecordAudit(_ context.Context, patientID, historyRecordID string, kind codec.Kind, family codec.Family) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, historyRecordID)
}

func (f *fakeAudit) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func newTestWriter(store Store, audit AuditRecorder) *Writer {
	return New(store, audit, DefaultConfig(), zap.NewNop())
}

// TestStore_P1_RepeatProducesSecondHistoryRecord exercises P1: repeating
// the same reading is not deduplicated — idempotence is explicitly not
// guaranteed at this layer.
func TestStore_P1_RepeatProducesSecondHistoryRecord(t *testing.T) {
	store := newFakeStore()
	w := newTestWriter(store, nil)
	reading := codec.Reading{Kind: codec.KindBloodPressure, DeviceTS: time.Unix(1000, 0), BloodPressure: &codec.BloodPressure{Systolic: 120}}

	_, err := w.Store(context.Background(), "p1", reading)
	require.NoError(t, err)
	_, err = w.Store(context.Background(), "p1", reading)
	require.NoError(t, err)

	assert.Equal(t, 2, store.historyCount())
}

// TestStore_P2_ConcurrentWritesConvergeOnMaxDeviceTS exercises I2 under
// concurrency: many goroutines write readings for the same (patient, kind)
// with random-order device_ts; the final snapshot must equal the max.
func TestStore_P2_ConcurrentWritesConvergeOnMaxDeviceTS(t *testing.T) {
	store := newFakeStore()
	w := newTestWriter(store, nil)

	const n = 50
	var wg sync.WaitGroup
	maxTS := time.Unix(int64(n-1), 0)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reading := codec.Reading{
				Kind: codec.KindHeartRate, DeviceTS: time.Unix(int64(i), 0),
				HeartRate: &codec.HeartRate{BPM: float64(i)},
			}
			_, err := w.Store(context.Background(), "p2", reading)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	store.mu.Lock()
	got := store.snapshots["p2"][codec.KindHeartRate]
	store.mu.Unlock()
	assert.True(t, got.Equal(maxTS), "expected snapshot %v, got %v", maxTS, got)
	assert.Equal(t, n, store.historyCount())
}

// TestStore_P3_ExactlyOneAuditRecordPerWrite exercises P3.
func TestStore_P3_ExactlyOneAuditRecordPerWrite(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAudit{}
	w := newTestWriter(store, audit)

	reading := codec.Reading{Kind: codec.KindWeight, DeviceTS: time.Unix(1, 0), Weight: &codec.Weight{ValueKg: 70}}
	_, err := w.Store(context.Background(), "p3", reading)
	require.NoError(t, err)

	assert.Equal(t, 1, audit.count())
}

// TestStore_S5_OutOfOrderSnapshotKeepsBothHistoryRecords exercises S5:
// reading A (later device_ts) then reading B (earlier) — both land in
// history, snapshot reflects A, B's write still succeeds (I1 preserved).
func TestStore_S5_OutOfOrderSnapshotKeepsBothHistoryRecords(t *testing.T) {
	store := newFakeStore()
	w := newTestWriter(store, nil)

	a := codec.Reading{Kind: codec.KindSpO2, DeviceTS: time.Unix(1000, 0), SpO2: &codec.SpO2{SpO2: 98}}
	b := codec.Reading{Kind: codec.KindSpO2, DeviceTS: time.Unix(940, 0), SpO2: &codec.SpO2{SpO2: 95}} // T-60

	resA, err := w.Store(context.Background(), "p5", a)
	require.NoError(t, err)
	assert.Equal(t, OutcomeWritten, resA.Outcome)

	resB, err := w.Store(context.Background(), "p5", b)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSnapshotNotNewer, resB.Outcome)

	assert.Equal(t, 2, store.historyCount())
	store.mu.Lock()
	got := store.snapshots["p5"][codec.KindSpO2]
	store.mu.Unlock()
	assert.True(t, got.Equal(a.DeviceTS))
}

// TestStore_HistoryFailureAbortsBeforeSnapshot ensures a history-append
// failure never reaches the snapshot step.
func TestStore_HistoryFailureAbortsBeforeSnapshot(t *testing.T) {
	store := newFakeStore()
	store.failHistory = true
	w := newTestWriter(store, nil)

	_, err := w.Store(context.Background(), "p6", codec.Reading{Kind: codec.KindHeartRate, DeviceTS: time.Unix(1, 0)})
	require.Error(t, err)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.snapshots["p6"])
}

// TestStore_SnapshotRetriesThenSucceeds exercises the 3x retry policy:
// transient failures below the retry budget still converge to a written
// snapshot.
func TestStore_SnapshotRetriesThenSucceeds(t *testing.T) {
	store := newFakeStore()
	store.snapshotFailures = 2 // succeeds on the 3rd attempt, within MaxRetries=3
	w := newTestWriter(store, nil)

	res, err := w.Store(context.Background(), "p7", codec.Reading{Kind: codec.KindWeight, DeviceTS: time.Unix(1, 0), Weight: &codec.Weight{ValueKg: 60}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeWritten, res.Outcome)
}

// TestStore_SnapshotPersistentFailureStillReturnsHistoryID exercises the
// "snapshot_stale" persistent-failure path: the write still succeeds
// overall since the history record stands (I1).
func TestStore_SnapshotPersistentFailureStillReturnsHistoryID(t *testing.T) {
	store := newFakeStore()
	store.snapshotFailures = 100
	w := newTestWriter(store, nil)

	res, err := w.Store(context.Background(), "p8", codec.Reading{Kind: codec.KindWeight, DeviceTS: time.Unix(1, 0), Weight: &codec.Weight{ValueKg: 60}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSnapshotStale, res.Outcome)
	assert.NotEmpty(t, res.HistoryRecordID)
	assert.Equal(t, 1, store.historyCount())
}

// TestStripedLock_SerializesSamePatient verifies two goroutines writing
// the same patient never interleave their critical sections.
func TestStripedLock_SerializesSamePatient(t *testing.T) {
	lock := NewStripedLock(4)
	var active int
	var mu sync.Mutex
	var sawOverlap bool

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := lock.Lock("same-patient")
			mu.Lock()
			active++
			if active > 1 {
				sawOverlap = true
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.False(t, sawOverlap, "striped lock must serialize access for the same patient id")
}
