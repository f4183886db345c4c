package fleet

// Status is the lifecycle state of a supervised node.
//
// Starting is initial. Running is reached only via an observed readiness
// keyword in the node's output. Failed and Stopped are terminal.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
	StatusStopped  Status = "stopped"
)

// Terminal reports whether no further transition may leave this status.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusStopped
}

// CanTransition reports whether a node may move from s to next.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusStarting:
		return next == StatusRunning || next == StatusFailed || next == StatusStopped
	case StatusRunning:
		return next == StatusFailed || next == StatusStopped
	default:
		return false
	}
}
