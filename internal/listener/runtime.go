// Package listener is the MQTT ingestion surface: three independent
// broker connections (AVA4, Kati, Qube), QoS-1 subscription, reconnect
// with backoff, and the per-message dispatch pipeline that drives the
// codec, resolver, writer, and emergency packages while emitting the
// data-flow event sequence (spec.md §4.4, §4.8).
package listener

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arc-self/amy-core/internal/codec"
	"github.com/arc-self/amy-core/internal/flow"
	"github.com/arc-self/amy-core/internal/resolver"
	"github.com/arc-self/amy-core/internal/writer"
)

// Resolver is the seam the runtime depends on; internal/resolver.Resolver
// implements it.
type Resolver interface {
	Resolve(ctx context.Context, reading codec.Reading) (resolver.Result, error)
}

// Writer is the seam the runtime depends on; internal/writer.Writer
// implements it.
type Writer interface {
	Store(ctx context.Context, patientID string, reading codec.Reading) (writer.Result, error)
}

// EmergencyHandler is the seam the runtime depends on for emergency
// readings; internal/emergency.Pipeline implements it.
type EmergencyHandler interface {
	Handle(ctx context.Context, flowID, topic string, reading codec.Reading) error
}

// Runtime owns the three subscriber workers and the per-message dispatch
// pipeline (spec.md §4.4). It implements Dispatcher so workers can hand
// messages back to it without importing internal/codec's dispatch logic
// themselves.
type Runtime struct {
	cfg       Config
	resolver  Resolver
	writer    Writer
	emergency EmergencyHandler
	emitter   *flow.Emitter
	logger    *zap.Logger
	tracer    trace.Tracer

	sem     chan struct{}
	workers []*worker
}

// New builds a Runtime and its three workers (not yet connected — call
// Start).
func New(cfg Config, r Resolver, w Writer, eh EmergencyHandler, emitter *flow.Emitter, logger *zap.Logger) *Runtime {
	cfg = cfg.withDefaults()
	rt := &Runtime{
		cfg:       cfg,
		resolver:  r,
		writer:    w,
		emergency: eh,
		emitter:   emitter,
		logger:    logger,
		tracer:    otel.Tracer("listener"),
		sem:       make(chan struct{}, cfg.WorkerPool),
	}
	rt.workers = []*worker{
		newWorker("ava4", []string{codec.TopicAVA4Gateway, codec.TopicAVA4SubSub, codec.TopicAVA4SubAlias}, cfg, rt.sem, rt, logger),
		newWorker("kati", []string{codec.TopicKatiPrefix + "#"}, cfg, rt.sem, rt, logger),
		newWorker("qube", []string{codec.TopicQube}, cfg, rt.sem, rt, logger),
	}
	return rt
}

// Start connects every worker. Workers are independent: one failing to
// connect does not block the others, matching "three independent
// subscriber workers" (spec.md §4.4).
func (rt *Runtime) Start() error {
	var firstErr error
	for _, w := range rt.workers {
		if err := w.Start(); err != nil {
			rt.logger.Error("worker failed to start", zap.String("worker_group", w.group), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Stop disconnects every worker.
func (rt *Runtime) Stop() {
	for _, w := range rt.workers {
		w.Stop()
	}
}

// States reports each worker's current lifecycle state, keyed by group
// name, for health endpoints and scheduled snapshots.
func (rt *Runtime) States() map[string]WorkerState {
	out := make(map[string]WorkerState, len(rt.workers))
	for _, w := range rt.workers {
		out[w.group] = w.State()
	}
	return out
}

// Dispatch implements Dispatcher: decode the raw payload, then drive each
// resulting reading through resolve/write/emit (spec.md §4.4 step
// sequence, P5).
func (rt *Runtime) Dispatch(family codec.Family, topic string, payload []byte) {
	ctx, span := rt.tracer.Start(context.Background(), "listener.Dispatch")
	defer span.End()

	readings, err := codec.Decode(family, topic, payload)
	if err != nil {
		flowID := uuid.NewString()
		rt.emit(flowID, family, topic, "", flow.StepReceived, flow.StatusOK, nil, "")
		rt.emit(flowID, family, topic, "", flow.StepRejected, flow.StatusFail, nil, parseErrorReason(err))
		return
	}

	for _, r := range readings {
		rt.processReading(ctx, topic, r)
	}
}

func parseErrorReason(err error) string {
	if pe, ok := err.(*codec.ParseError); ok {
		return string(pe.Kind) + ": " + pe.Detail
	}
	return err.Error()
}

// processReading runs one reading through the full pipeline, emitting the
// causally ordered data-flow event sequence spec.md §3/P5 requires, all
// under a single freshly minted flow_id (S2: distinct flow_id per
// reading, even within one batched MQTT message).
func (rt *Runtime) processReading(ctx context.Context, topic string, r codec.Reading) {
	flowID := uuid.NewString()
	rt.emit(flowID, r.Family, topic, r.Device, flow.StepReceived, flow.StatusOK, nil, "")
	rt.emit(flowID, r.Family, topic, r.Device, flow.StepParsed, flow.StatusOK, nil, outOfRangeReason(r))

	switch r.Kind {
	case codec.KindHeartbeat:
		// liveness ping only: no history collection exists for it
		// (internal/store.HistoryCollection), so it never reaches the
		// resolver or writer (spec.md §4.3 table).
		return
	case codec.KindEmergency:
		if err := rt.emergency.Handle(ctx, flowID, topic, r); err != nil {
			rt.logger.Warn("emergency handling failed", zap.String("flow_id", flowID), zap.Error(err))
		}
		return
	}

	res, err := rt.resolver.Resolve(ctx, r)
	if err != nil {
		rt.emit(flowID, r.Family, topic, r.Device, flow.StepRejected, flow.StatusFail, nil, err.Error())
		return
	}
	if res.Outcome == resolver.OutcomeUnresolved {
		rt.emit(flowID, r.Family, topic, r.Device, flow.StepResolved, flow.StatusOK, nil, "unresolved")
		rt.emit(flowID, r.Family, topic, r.Device, flow.StepRejected, flow.StatusFail, nil, "unresolved")
		return
	}

	patientID := res.PatientID
	rt.emit(flowID, r.Family, topic, r.Device, flow.StepResolved, flow.StatusOK, &patientID, string(res.Outcome))

	result, err := rt.writer.Store(ctx, patientID, r)
	if err != nil {
		rt.emit(flowID, r.Family, topic, r.Device, flow.StepRejected, flow.StatusFail, &patientID, err.Error())
		return
	}
	rt.emit(flowID, r.Family, topic, r.Device, flow.StepSnapshotWritten, flow.StatusOK, &patientID, string(result.Outcome))
	rt.emit(flowID, r.Family, topic, r.Device, flow.StepHistoryWritten, flow.StatusOK, &patientID, result.HistoryRecordID)
}

func outOfRangeReason(r codec.Reading) string {
	if r.OutOfRange {
		return r.OutOfRangeReason
	}
	return ""
}

func (rt *Runtime) emit(flowID string, family codec.Family, topic, device string, step flow.Step, status flow.Status, patientID *string, reason string) {
	rt.emitter.Emit(flow.Event{
		FlowID:    flowID,
		Step:      step,
		Status:    status,
		Family:    family,
		Topic:     topic,
		Device:    device,
		PatientID: patientID,
		Reason:    reason,
	})
}
