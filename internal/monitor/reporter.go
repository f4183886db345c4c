package monitor

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/syncmesh/fleetrunner/internal/fleet"
	"github.com/syncmesh/fleetrunner/internal/topology"
)

// Health is the three-level fleet classification derived from failure counts.
type Health string

const (
	HealthGood     Health = "good"
	HealthDegraded Health = "degraded"
	HealthCritical Health = "critical"
)

// Summary holds fleet-wide counts and the derived health level.
type Summary struct {
	Total   int    `json:"total"`
	Running int    `json:"running"`
	Failed  int    `json:"failed"`
	Health  Health `json:"health"`
}

// Classify reduces failure counts to a health level: good with no failures,
// degraded below half the fleet, critical at half or beyond.
func Classify(total, failed int) Health {
	switch {
	case failed == 0:
		return HealthGood
	case failed < total/2:
		return HealthDegraded
	default:
		return HealthCritical
	}
}

// Summarize computes fleet-wide counts over a registry snapshot.
func Summarize(snapshots []fleet.NodeSnapshot) Summary {
	s := Summary{Total: len(snapshots)}
	for _, snap := range snapshots {
		switch snap.Status {
		case fleet.StatusRunning:
			s.Running++
		case fleet.StatusFailed:
			s.Failed++
		}
	}
	s.Health = Classify(s.Total, s.Failed)
	return s
}

// Reporter renders point-in-time health summaries of the fleet, grouped by
// tier. It only reads registry snapshots and writes to out.
type Reporter struct {
	registry *fleet.Registry
	out      io.Writer
	mu       sync.Mutex
}

// NewReporter creates a reporter writing summaries to out.
func NewReporter(registry *fleet.Registry, out io.Writer) *Reporter {
	return &Reporter{registry: registry, out: out}
}

// Report writes the current fleet summary.
func (r *Reporter) Report() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write(r.registry.Snapshot(), time.Now())
}

// write renders the summary for a fixed snapshot and clock, separated from
// Report so tests can pin both.
func (r *Reporter) write(snapshots []fleet.NodeSnapshot, now time.Time) {
	sep := strings.Repeat("=", 70)
	fmt.Fprintf(r.out, "\n%s\n", sep)
	fmt.Fprintf(r.out, "FLEET STATUS - %s\n", now.Format("15:04:05"))
	fmt.Fprintln(r.out, sep)

	for _, tier := range []topology.Tier{topology.TierCoordinator, topology.TierRelay, topology.TierLeaf} {
		var group []fleet.NodeSnapshot
		for _, snap := range snapshots {
			if snap.Tier == tier {
				group = append(group, snap)
			}
		}

		fmt.Fprintf(r.out, "\n%s NODES (%d):\n", strings.ToUpper(string(tier)), len(group))
		for _, snap := range group {
			fmt.Fprintf(r.out, "   %s: %s (uptime: %s)\n",
				snap.Name, strings.ToUpper(string(snap.Status)), snap.Uptime(now))
			if snap.ListenPort != 0 {
				fmt.Fprintf(r.out, "      port: %d\n", snap.ListenPort)
			}
		}
	}

	s := Summarize(snapshots)
	fmt.Fprintf(r.out, "\nSYSTEM HEALTH:\n")
	fmt.Fprintf(r.out, "   total: %d | running: %d | failed: %d\n", s.Total, s.Running, s.Failed)
	fmt.Fprintf(r.out, "   status: %s\n", strings.ToUpper(string(s.Health)))
	fmt.Fprintln(r.out, sep)
}
