// Package fleet holds the shared registry of supervised nodes and their
// runtime state. The registry is the only shared mutable structure in the
// supervisor; every entry carries its own mutex.
package fleet

import (
	"sync"
	"time"

	"github.com/syncmesh/fleetrunner/internal/proc"
	"github.com/syncmesh/fleetrunner/internal/topology"
)

// NodeRuntime is the mutable per-node state. All field access goes through
// methods holding the entry mutex so cross-field reads are consistent.
type NodeRuntime struct {
	mu sync.Mutex

	spec          topology.NodeSpec
	process       proc.Process
	status        Status
	stopRequested bool
	startTime     time.Time
	lastActivity  time.Time
	history       *Ring
}

// NewNodeRuntime creates runtime state for a freshly launched node in
// StatusStarting with an empty log history.
func NewNodeRuntime(spec topology.NodeSpec, process proc.Process, historyCap int) *NodeRuntime {
	now := time.Now()
	return &NodeRuntime{
		spec:         spec,
		process:      process,
		status:       StatusStarting,
		startTime:    now,
		lastActivity: now,
		history:      NewRing(historyCap),
	}
}

// Name returns the node's derived display name.
func (n *NodeRuntime) Name() string { return n.spec.Name() }

// Spec returns the immutable node specification.
func (n *NodeRuntime) Spec() topology.NodeSpec { return n.spec }

// Process returns the node's process handle.
func (n *NodeRuntime) Process() proc.Process { return n.process }

// Status returns the current lifecycle status.
func (n *NodeRuntime) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// Transition moves the node to next if the transition is legal and reports
// whether it was applied. Terminal statuses are never left.
func (n *NodeRuntime) Transition(next Status) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.status.CanTransition(next) {
		return false
	}
	n.status = next
	return true
}

// RequestStop marks the node as deliberately being terminated. Liveness
// paths that reclassify an observed exit as a failure must check this first:
// once a stop is requested, the exit is expected and the shutdown path owns
// the final transition to stopped.
func (n *NodeRuntime) RequestStop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopRequested = true
}

// StopRequested reports whether RequestStop has been called.
func (n *NodeRuntime) StopRequested() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stopRequested
}

// RecordLine appends a formatted line to the bounded history and refreshes
// the last-activity timestamp.
func (n *NodeRuntime) RecordLine(line string, at time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.history.Append(line)
	n.lastActivity = at
}

// History returns the most recent limit buffered lines in arrival order,
// or all of them when limit <= 0.
func (n *NodeRuntime) History(limit int) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if limit <= 0 {
		return n.history.All()
	}
	return n.history.Last(limit)
}

// Snapshot returns a consistent point-in-time copy of the node's state.
func (n *NodeRuntime) Snapshot() NodeSnapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return NodeSnapshot{
		Name:         n.spec.Name(),
		Tier:         n.spec.Tier,
		ID:           n.spec.ID,
		ListenPort:   n.spec.ListenPort,
		Status:       n.status,
		StartTime:    n.startTime,
		LastActivity: n.lastActivity,
	}
}

// NodeSnapshot is an immutable view of one node, safe to hand to the
// reporter and the status API.
type NodeSnapshot struct {
	Name         string        `json:"name"`
	Tier         topology.Tier `json:"tier"`
	ID           int           `json:"id"`
	ListenPort   int           `json:"listen_port,omitempty"`
	Status       Status        `json:"status"`
	StartTime    time.Time     `json:"start_time"`
	LastActivity time.Time     `json:"last_activity"`
}

// Uptime returns how long the node has been up relative to now.
func (s NodeSnapshot) Uptime(now time.Time) time.Duration {
	return now.Sub(s.StartTime).Truncate(time.Second)
}
