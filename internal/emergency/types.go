// Package emergency implements the priority-tagging and fan-out pipeline
// for emergency readings (spec.md §4.5, SPEC_FULL.md §4.5): it writes
// through the same internal/writer as any other reading and always emits
// to internal/flow regardless of resolution (I5).
package emergency

import "github.com/arc-self/amy-core/internal/codec"

// Priority is the elevated-severity tag assigned to an emergency reading
// (spec.md §4.5).
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
)

// PriorityFor assigns a priority per spec.md §4.5: sos→CRITICAL,
// fall→HIGH, low_battery/not_worn/offline→MEDIUM.
func PriorityFor(kind codec.EmergencyKind) Priority {
	switch kind {
	case codec.EmergencySOS:
		return PriorityCritical
	case codec.EmergencyFall:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}
