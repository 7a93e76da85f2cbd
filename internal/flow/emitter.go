package flow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// subscriberBufferCap is the per-subscriber undelivered-event buffer size;
// once exceeded the oldest undelivered event for that subscriber is
// dropped (spec.md §4.6).
const subscriberBufferCap = 100

// backpressureBlockThreshold is how long Emit blocks on a full channel
// before the event is counted as dropped (spec.md §4.6). The event is
// still enqueued — the channel itself never drops — this only governs
// when the counter increments.
const backpressureBlockThreshold = 500 * time.Millisecond

// Emitter implements spec.md §4.6: a bounded channel with a single
// consumer fanning out to a ring buffer and every WebSocket subscriber.
type Emitter struct {
	ch         chan Event
	ring       *RingBuffer
	logger     *zap.Logger
	collector  Collector

	subsMu sync.Mutex
	subs   map[int64]chan Event
	nextID int64

	dropped atomic.Int64

	wg sync.WaitGroup
}

// Collector is the optional HTTP egress sink (spec.md §6.3); nil disables
// it.
type Collector interface {
	Post(ctx context.Context, e Event)
}

// NewEmitter builds an Emitter with the given channel capacity and ring
// buffer size (spec.md §6.5 dataflow.channel_capacity/ring_buffer_size,
// defaults 1000/500).
func NewEmitter(channelCapacity, ringSize int, collector Collector, logger *zap.Logger) *Emitter {
	if channelCapacity <= 0 {
		channelCapacity = 1000
	}
	return &Emitter{
		ch:        make(chan Event, channelCapacity),
		ring:      NewRingBuffer(ringSize),
		logger:    logger,
		collector: collector,
		subs:      make(map[int64]chan Event),
	}
}

// Emit enqueues an event. It blocks when the channel is full rather than
// drop (spec.md §4.6: "producers block on full channel"); if the block
// exceeds backpressureBlockThreshold the event is still delivered but
// counted via DroppedCount as cause=backpressure.
func (e *Emitter) Emit(ev Event) {
	if ev.ServerTS.IsZero() {
		ev.ServerTS = time.Now().UTC()
	}
	select {
	case e.ch <- ev:
		return
	default:
	}

	timer := time.NewTimer(backpressureBlockThreshold)
	defer timer.Stop()
	select {
	case e.ch <- ev:
	case <-timer.C:
		e.dropped.Add(1)
		e.logger.Warn("data-flow channel backpressure", zap.String("flow_id", ev.FlowID), zap.String("step", string(ev.Step)))
		e.ch <- ev // the channel itself must not drop — keep blocking until delivered
	}
}

// DroppedCount returns the cumulative backpressure counter, exposed over
// /healthz (spec.md §4.6, SPEC_FULL.md §9).
func (e *Emitter) DroppedCount() int64 { return e.dropped.Load() }

// Run drains the channel on the calling goroutine until ctx is done. It is
// the single consumer referenced throughout spec.md §4.6/§5.
func (e *Emitter) Run(ctx context.Context) {
	for {
		select {
		case ev := <-e.ch:
			e.dispatch(ctx, ev)
		case <-ctx.Done():
			e.drain()
			return
		}
	}
}

// drain flushes whatever is already queued and returns once the channel is
// empty. It applies no deadline of its own; cmd/core bounds the flush by
// waiting Shutdown.FlushFlow (default 2s) after cancelling Run before it
// exits.
func (e *Emitter) drain() {
	for {
		select {
		case ev := <-e.ch:
			e.dispatch(context.Background(), ev)
		default:
			return
		}
	}
}

func (e *Emitter) dispatch(ctx context.Context, ev Event) {
	e.ring.Push(ev)
	e.broadcast(ev)
	if e.collector != nil {
		e.collector.Post(ctx, ev)
	}
}

// Subscribe registers a new WebSocket subscriber, replaying the last n
// ring-buffer events synchronously before returning the live channel
// (spec.md §6.4). The returned cancel func must be called on disconnect.
func (e *Emitter) Subscribe(replayLast int) (events <-chan Event, replay []Event, cancel func()) {
	ch := make(chan Event, subscriberBufferCap)

	e.subsMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = ch
	e.subsMu.Unlock()

	cancel = func() {
		e.subsMu.Lock()
		delete(e.subs, id)
		e.subsMu.Unlock()
		close(ch)
	}

	return ch, e.ring.Last(replayLast), cancel
}

// broadcast fans an event out to every subscriber, dropping the oldest
// undelivered event for a subscriber whose buffer is full rather than
// blocking the consumer (spec.md §4.6 slow-subscriber policy).
func (e *Emitter) broadcast(ev Event) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			// buffer full: drop the oldest, then deliver the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
