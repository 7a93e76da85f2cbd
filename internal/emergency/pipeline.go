package emergency

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arc-self/amy-core/internal/codec"
	"github.com/arc-self/amy-core/internal/flow"
	"github.com/arc-self/amy-core/internal/resolver"
	"github.com/arc-self/amy-core/internal/writer"
)

// Resolver is the seam emergency depends on; internal/resolver.Resolver
// implements it.
type Resolver interface {
	Resolve(ctx context.Context, reading codec.Reading) (resolver.Result, error)
}

// Writer is the seam emergency depends on; internal/writer.Writer
// implements it.
type Writer interface {
	Store(ctx context.Context, patientID string, reading codec.Reading) (writer.Result, error)
}

// Pipeline implements spec.md §4.5: resolve, write unconditionally
// (even unresolved — I5), and emit a data-flow event sequence ending in
// emitted_emergency. A resolver or writer error ends the sequence with a
// rejected event instead.
type Pipeline struct {
	resolver Resolver
	writer   Writer
	emitter  *flow.Emitter
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New builds a Pipeline.
func New(r Resolver, w Writer, emitter *flow.Emitter, logger *zap.Logger) *Pipeline {
	return &Pipeline{resolver: r, writer: w, emitter: emitter, logger: logger, tracer: otel.Tracer("emergency")}
}

// Handle processes one emergency reading end to end. It never drops the
// reading regardless of resolution outcome (I5): an unresolved emergency
// is still written and still broadcast. Its stored record carries the zero
// ObjectID as patient_id, not a BSON null; its flow events omit patient_id.
func (p *Pipeline) Handle(ctx context.Context, flowID, topic string, reading codec.Reading) error {
	ctx, span := p.tracer.Start(ctx, "emergency.Handle")
	defer span.End()

	if reading.Kind != codec.KindEmergency || reading.Emergency == nil {
		return fmt.Errorf("emergency: reading is not an emergency kind")
	}
	priority := PriorityFor(reading.Emergency.Kind)

	res, err := p.resolver.Resolve(ctx, reading)
	if err != nil {
		span.RecordError(err)
		p.emit(flowID, topic, reading, flow.StepRejected, flow.StatusFail, nil, err.Error())
		return fmt.Errorf("emergency: resolve: %w", err)
	}

	var patientIDPtr *string
	patientID := res.PatientID
	if res.Outcome == resolver.OutcomeResolved || res.Outcome == resolver.OutcomeAutoProvisioned {
		id := res.PatientID
		patientIDPtr = &id
	} else {
		patientID = ""
	}

	resolvedReason := ""
	if patientIDPtr == nil {
		resolvedReason = "unresolved"
	}
	p.emit(flowID, topic, reading, flow.StepResolved, flow.StatusOK, patientIDPtr, resolvedReason)

	result, err := p.writer.Store(ctx, patientID, reading)
	if err != nil {
		span.RecordError(err)
		p.logger.Error("emergency write failed",
			zap.String("flow_id", flowID),
			zap.String("kind", string(reading.Emergency.Kind)),
			zap.Error(err))
		p.emit(flowID, topic, reading, flow.StepRejected, flow.StatusFail, patientIDPtr, err.Error())
		return fmt.Errorf("emergency: write: %w", err)
	}

	p.emit(flowID, topic, reading, flow.StepSnapshotWritten, flow.StatusOK, patientIDPtr, string(result.Outcome))
	p.emit(flowID, topic, reading, flow.StepHistoryWritten, flow.StatusOK, patientIDPtr, result.HistoryRecordID)

	// emitted_emergency always fires, including for an unresolved alert
	// (spec.md §4.5, I5) — priority rides in Reason, the only extension
	// point the data-flow event schema offers (spec.md §3).
	p.emit(flowID, topic, reading, flow.StepEmittedEmergency, flow.StatusOK, patientIDPtr,
		fmt.Sprintf("priority=%s kind=%s", priority, reading.Emergency.Kind))

	p.logger.Info("emergency alert processed",
		zap.String("flow_id", flowID),
		zap.String("kind", string(reading.Emergency.Kind)),
		zap.String("priority", string(priority)),
		zap.Bool("resolved", patientIDPtr != nil))

	return nil
}

func (p *Pipeline) emit(flowID, topic string, reading codec.Reading, step flow.Step, status flow.Status, patientID *string, reason string) {
	p.emitter.Emit(flow.Event{
		FlowID:    flowID,
		Step:      step,
		Status:    status,
		Family:    reading.Family,
		Topic:     topic,
		Device:    reading.Device,
		PatientID: patientID,
		Reason:    reason,
	})
}
