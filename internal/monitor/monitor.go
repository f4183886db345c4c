// Package monitor polls the fleet registry for unexpectedly terminated
// processes and triggers periodic status reporting.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/syncmesh/fleetrunner/internal/fleet"
)

// Monitor runs the periodic liveness check loop.
type Monitor struct {
	registry       *fleet.Registry
	reporter       *Reporter
	checkInterval  time.Duration
	reportInterval time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// New creates a monitor. checkInterval drives the dead-process scan,
// reportInterval the status summaries.
func New(registry *fleet.Registry, reporter *Reporter, checkInterval, reportInterval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		registry:       registry,
		reporter:       reporter,
		checkInterval:  checkInterval,
		reportInterval: reportInterval,
		logger:         logger,
		stopChan:       make(chan struct{}),
	}
}

// Start begins the tick loop and blocks until the context is cancelled or
// Stop is called. This is the supervisor's main wait: its return is the sole
// signal to proceed to shutdown.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	m.logger.Info("starting fleet monitor",
		"check_interval", m.checkInterval,
		"report_interval", m.reportInterval,
	)

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	lastReport := time.Now()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("fleet monitor stopped by context")
			return ctx.Err()
		case <-m.stopChan:
			m.logger.Info("fleet monitor stopped")
			return nil
		case <-ticker.C:
			m.CheckNodes()
			if time.Since(lastReport) >= m.reportInterval {
				m.reporter.Report()
				lastReport = time.Now()
			}
		}
	}
}

// Stop stops the monitor loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		close(m.stopChan)
		m.running = false
	}
}

// CheckNodes reclassifies nodes whose process has terminated while their
// status was still live. A node that exits before ever emitting a readiness
// line goes straight from starting to failed.
func (m *Monitor) CheckNodes() {
	for _, node := range m.registry.All() {
		status := node.Status()
		if status.Terminal() || node.StopRequested() || !node.Process().Exited() {
			continue
		}
		if node.Transition(fleet.StatusFailed) {
			m.logger.Warn("node terminated unexpectedly",
				"node", node.Name(),
				"previous_status", string(status),
			)
		}
	}
}
