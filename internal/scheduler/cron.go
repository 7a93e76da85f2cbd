// Package scheduler runs a periodic health-snapshot log tick, adapted
// from apps/notification-service/internal/scheduler/cron.go: same
// robfig/cron wrapper and Start/Stop shape, but logging the snapshot
// instead of publishing it to NATS — this core has no message bus of its
// own (spec.md §4.4 talks only to the MQTT broker and the document
// store).
package scheduler

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// HealthSnapshot is a point-in-time summary of the listener fleet and the
// data-flow emitter, logged on each tick (spec.md §4.8 state machines,
// §4.6 dropped-event counter).
type HealthSnapshot struct {
	ListenerStates map[string]string
	DroppedEvents  int64
}

// Snapshotter supplies the current HealthSnapshot; cmd/core wires
// internal/listener.Runtime and internal/flow.Emitter into one.
type Snapshotter interface {
	HealthSnapshot() HealthSnapshot
}

// HealthScheduler wraps robfig/cron and logs a health snapshot on a fixed
// schedule.
type HealthScheduler struct {
	cron   *cron.Cron
	source Snapshotter
	logger *zap.Logger
}

// NewHealthScheduler creates and configures the scheduler. The spec passed
// to Start is a 6-field cron expression with a leading seconds field
// (cron.WithSeconds() is enabled) or an "@every"/"@hourly" macro.
func NewHealthScheduler(source Snapshotter, logger *zap.Logger) *HealthScheduler {
	return &HealthScheduler{
		cron:   cron.New(cron.WithSeconds()),
		source: source,
		logger: logger,
	}
}

// Start registers the snapshot job at the given schedule and starts the
// scheduler. Call Stop() to gracefully shut down.
func (s *HealthScheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.logSnapshot); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("health scheduler started", zap.String("schedule", spec))
	return nil
}

// Stop gracefully stops the scheduler, waiting for any in-flight tick.
func (s *HealthScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("health scheduler stopped")
}

func (s *HealthScheduler) logSnapshot() {
	snap := s.source.HealthSnapshot()
	fields := make([]zap.Field, 0, len(snap.ListenerStates)+1)
	for group, state := range snap.ListenerStates {
		fields = append(fields, zap.String("listener_"+group, state))
	}
	fields = append(fields, zap.Int64("dataflow_dropped_events", snap.DroppedEvents))
	s.logger.Info("health snapshot", fields...)
}
