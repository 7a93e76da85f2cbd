package listener

// WorkerState is the per-worker connection lifecycle (spec.md §4.8):
// Disconnected -> Connecting -> Subscribed -> Running -> Disconnected.
// A shutdown signal is terminal from any state.
type WorkerState string

const (
	StateDisconnected WorkerState = "disconnected"
	StateConnecting   WorkerState = "connecting"
	StateSubscribed   WorkerState = "subscribed"
	StateRunning      WorkerState = "running"
	StateTerminated   WorkerState = "terminated"
)
