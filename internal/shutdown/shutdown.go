// Package shutdown drives graceful fleet termination in reverse dependency
// order: leaves first, then relays, then the coordinator, so no node is
// orphaned on a dead dependency mid-teardown. It also owns signal handling;
// the signal handler only cancels the run context and never touches the
// registry directly.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/syncmesh/fleetrunner/internal/fleet"
	"github.com/syncmesh/fleetrunner/internal/topology"
)

// DefaultTimeout is the default per-process graceful termination timeout.
const DefaultTimeout = 10 * time.Second

// stopOrder is the reverse of the dependency order.
var stopOrder = []topology.Tier{topology.TierLeaf, topology.TierRelay, topology.TierCoordinator}

// Coordinator tears the fleet down node by node with a bounded graceful wait
// and escalation to a forced kill.
type Coordinator struct {
	registry *fleet.Registry
	timeout  time.Duration
	logger   *slog.Logger

	// For testing: allows injecting a custom signal channel.
	signalCh chan os.Signal
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout sets the per-process graceful termination timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithSignalChannel sets a custom signal channel (for testing).
func WithSignalChannel(ch chan os.Signal) Option {
	return func(c *Coordinator) {
		c.signalCh = ch
	}
}

// NewCoordinator creates a shutdown coordinator over the registry.
func NewCoordinator(registry *fleet.Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry: registry,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WatchSignals blocks until SIGINT or SIGTERM is delivered, then cancels the
// run context. Run it on its own goroutine.
func (c *Coordinator) WatchSignals(cancel context.CancelFunc) {
	sigCh := c.signalCh
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}

	sig := <-sigCh
	c.logger.Info("received shutdown signal, initiating graceful shutdown", "signal", sig.String())
	cancel()
}

// ShutdownAll stops every node, leaves before relays before the coordinator.
// Errors while signaling a node are swallowed locally and escalate to a
// forced kill; teardown never aborts partway through the fleet.
func (c *Coordinator) ShutdownAll() {
	c.logger.Info("stopping all nodes", "count", c.registry.Len(), "timeout", c.timeout)

	for _, tier := range stopOrder {
		for _, node := range c.registry.ByTier(tier) {
			c.stopNode(node)
		}
	}

	c.logger.Info("all nodes stopped")
}

// stopNode terminates one node: graceful request, bounded wait, then kill.
// The status becomes stopped whether the exit was voluntary or forced.
func (c *Coordinator) stopNode(node *fleet.NodeRuntime) {
	name := node.Name()
	p := node.Process()

	if p.Exited() {
		// Already dead before we asked: that is a failure, not a stop.
		node.Transition(fleet.StatusFailed)
		return
	}

	// The exit we are about to cause is expected. Marking the intent before
	// Terminate keeps the ingest and monitor paths from racing the observed
	// exit into failed, which is terminal and would block the stopped
	// transition below.
	node.RequestStop()

	c.logger.Info("stopping node", "node", name)

	forced := false
	if err := p.Terminate(); err != nil {
		c.logger.Warn("graceful termination request failed, killing", "node", name, "error", err)
		forced = true
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		err := p.WaitExit(ctx)
		cancel()
		if err != nil {
			c.logger.Warn("node did not stop in time, killing", "node", name, "timeout", c.timeout)
			forced = true
		}
	}

	if forced {
		if err := p.Kill(); err != nil {
			c.logger.Warn("kill failed", "node", name, "error", err)
		}
		// The reaper goroutine closes Done even when the kill raced an
		// exit, so this wait always completes.
		<-p.Done()
	}

	if node.Transition(fleet.StatusStopped) {
		if forced {
			c.logger.Info("node force killed", "node", name)
		} else {
			c.logger.Info("node stopped gracefully", "node", name)
		}
	}
}
