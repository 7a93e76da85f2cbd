package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arc-self/amy-core/internal/codec"
)

// Resolver implements the device-identity → patient lookup contract of
// spec.md §4.2.
type Resolver struct {
	store  Store
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
	tracer trace.Tracer
}

// New builds a Resolver. Pass resolver.NewNoopCache() or
// resolver.NewMemoryCache() when no Redis address is configured. ttl <= 0
// means "no caching" regardless of which Cache was supplied.
func New(store Store, cache Cache, ttl time.Duration, logger *zap.Logger) *Resolver {
	if cache == nil {
		cache = NewNoopCache()
	}
	return &Resolver{store: store, cache: cache, ttl: ttl, logger: logger, tracer: otel.Tracer("resolver")}
}

// Resolve maps a reading to a patient per the family-specific lookup rules
// in spec.md §4.2. It never returns an error for a legitimate Unresolved
// outcome — only for store failures, which callers should treat as
// transient and retry the whole message.
func (r *Resolver) Resolve(ctx context.Context, reading codec.Reading) (Result, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.Resolve")
	defer span.End()

	switch reading.Family {
	case codec.FamilyAVA4SubDevice:
		return r.resolveAVA4SubDevice(ctx, reading)
	case codec.FamilyAVA4Gateway:
		return r.resolveBySlot(ctx, SlotGateway, reading.Device)
	case codec.FamilyKatiWatch:
		return r.resolveBySlot(ctx, SlotWatch, reading.Device)
	case codec.FamilyQubeVital:
		return r.resolveQube(ctx, reading)
	default:
		return Result{Outcome: OutcomeUnresolved}, nil
	}
}

// resolveAVA4SubDevice looks up the sub-device BLE MAC in the reading's own
// slot column, falling back to the enclosing gateway MAC's "gateway" slot
// when there is no direct match (spec.md §4.2). AVA4 never auto-provisions
// (I4): an unmatched device identity is Unresolved, not created.
func (r *Resolver) resolveAVA4SubDevice(ctx context.Context, reading codec.Reading) (Result, error) {
	slot, ok := slotForKind(reading.Kind)
	if !ok {
		return Result{Outcome: OutcomeUnresolved}, nil
	}

	res, err := r.resolveBySlot(ctx, slot, reading.Device)
	if err != nil {
		return Result{}, err
	}
	if res.Outcome == OutcomeResolved {
		return res, nil
	}

	if reading.GatewayDevice == "" {
		return Result{Outcome: OutcomeUnresolved}, nil
	}
	return r.resolveBySlot(ctx, SlotGateway, reading.GatewayDevice)
}

// resolveBySlot performs a cache-then-store lookup for a device identity in
// a given slot. AVA4 and Kati both reject unknown identities (I4): a
// store miss becomes Unresolved, never an error.
func (r *Resolver) resolveBySlot(ctx context.Context, slot Slot, identity string) (Result, error) {
	if identity == "" {
		return Result{Outcome: OutcomeUnresolved}, nil
	}

	key := fmt.Sprintf("slot:%s:%s", slot, identity)
	if cached, ok := r.cache.Get(ctx, key); ok {
		return cached, nil
	}

	patientID, err := r.store.FindBySlot(ctx, slot, identity)
	if errors.Is(err, ErrNotFound) {
		return Result{Outcome: OutcomeUnresolved}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("resolver: find by slot %s: %w", slot, err)
	}

	res := Result{Outcome: OutcomeResolved, PatientID: patientID}
	r.maybeCache(ctx, key, res)
	return res, nil
}

// resolveQube looks up by citizen ID, auto-provisioning on first sighting
// (I4: only Qube-Vital is permitted to). Provisioning goes through
// CreateUnregistered, which the store must make idempotent under
// concurrent first-sighting callers (spec.md §4.2, P4).
func (r *Resolver) resolveQube(ctx context.Context, reading codec.Reading) (Result, error) {
	if reading.Hint == nil || reading.Hint.CitizenID == "" {
		return Result{Outcome: OutcomeUnresolved}, nil
	}
	citiz := reading.Hint.CitizenID

	key := "citiz:" + citiz
	if cached, ok := r.cache.Get(ctx, key); ok {
		return cached, nil
	}

	patientID, err := r.store.FindByCitizenID(ctx, citiz)
	if err == nil {
		res := Result{Outcome: OutcomeResolved, PatientID: patientID}
		r.maybeCache(ctx, key, res)
		return res, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Result{}, fmt.Errorf("resolver: find by citizen id: %w", err)
	}

	patientID, err = r.store.CreateUnregistered(ctx, *reading.Hint)
	if err != nil {
		return Result{}, fmt.Errorf("resolver: auto-provision: %w", err)
	}

	res := Result{Outcome: OutcomeAutoProvisioned, PatientID: patientID}
	r.maybeCache(ctx, key, res)
	r.logger.Info("auto-provisioned patient from qube-vital first sighting",
		zap.String("citiz", citiz), zap.String("patient_id", patientID))
	return res, nil
}

func (r *Resolver) maybeCache(ctx context.Context, key string, res Result) {
	if r.ttl <= 0 {
		return
	}
	r.cache.Set(ctx, key, res, r.ttl)
}

// Flush invalidates every cache entry, for an out-of-band admin
// cache-flush signal (spec.md §4.2).
func (r *Resolver) Flush(ctx context.Context) {
	r.cache.Flush(ctx)
}
