package fleet

import (
	"fmt"
	"sync"

	"github.com/syncmesh/fleetrunner/internal/topology"
)

// Registry maps node names to their runtime state. Entries are added
// incrementally during startup and never removed while the supervisor runs.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*NodeRuntime
	order []string // insertion order, for stable iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]*NodeRuntime)}
}

// Add inserts a node runtime. Node names encode (tier, id) so a collision
// means the same node was launched twice.
func (r *Registry) Add(node *NodeRuntime) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := node.Name()
	if _, exists := r.nodes[name]; exists {
		return fmt.Errorf("node %s already registered", name)
	}
	r.nodes[name] = node
	r.order = append(r.order, name)
	return nil
}

// Get returns the runtime for a node name, or nil if unknown.
func (r *Registry) Get(name string) *NodeRuntime {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodes[name]
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// All returns the node runtimes in insertion order.
func (r *Registry) All() []*NodeRuntime {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*NodeRuntime, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.nodes[name])
	}
	return out
}

// ByTier returns the node runtimes of one tier in insertion order.
func (r *Registry) ByTier(tier topology.Tier) []*NodeRuntime {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*NodeRuntime
	for _, name := range r.order {
		if node := r.nodes[name]; node.Spec().Tier == tier {
			out = append(out, node)
		}
	}
	return out
}

// Snapshot returns a consistent per-entry snapshot of every node in
// insertion order. Each entry is internally consistent; the set as a whole
// is as close to point-in-time as per-entry locking allows.
func (r *Registry) Snapshot() []NodeSnapshot {
	nodes := r.All()
	out := make([]NodeSnapshot, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, node.Snapshot())
	}
	return out
}
