package shutdown

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/syncmesh/fleetrunner/internal/fleet"
	"github.com/syncmesh/fleetrunner/internal/ingest"
	"github.com/syncmesh/fleetrunner/internal/logs"
	"github.com/syncmesh/fleetrunner/internal/topology"
)

// orderedProcess records the order in which nodes are asked to stop.
type orderedProcess struct {
	mu       sync.Mutex
	name     string
	exited   bool
	done     chan struct{}
	sequence *stopSequence
	ignore   bool
}

type stopSequence struct {
	mu    sync.Mutex
	names []string
}

func (s *stopSequence) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
}

func newOrderedProcess(name string, seq *stopSequence) *orderedProcess {
	return &orderedProcess{name: name, done: make(chan struct{}), sequence: seq}
}

func (p *orderedProcess) exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.exited {
		p.exited = true
		close(p.done)
	}
}

func (p *orderedProcess) PID() int { return 1 }

func (p *orderedProcess) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

func (p *orderedProcess) Terminate() error {
	p.sequence.record(p.name)
	if !p.ignore {
		p.exit()
	}
	return nil
}

func (p *orderedProcess) Kill() error {
	p.exit()
	return nil
}

func (p *orderedProcess) Done() <-chan struct{} { return p.done }

func (p *orderedProcess) WaitExit(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func tierOf(name string, registry *fleet.Registry) topology.Tier {
	return registry.Get(name).Spec().Tier
}

func TestPropertyShutdownVisitsLeavesBeforeRelaysBeforeCoordinator(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Reverse dependency order holds for any topology", prop.ForAll(
		func(relays, leavesPerRelay int) bool {
			registry := fleet.NewRegistry()
			seq := &stopSequence{}

			add := func(tier topology.Tier, id int) {
				spec := topology.NodeSpec{Tier: tier, ID: id}
				process := newOrderedProcess(spec.Name(), seq)
				node := fleet.NewNodeRuntime(spec, process, 5)
				node.Transition(fleet.StatusRunning)
				if err := registry.Add(node); err != nil {
					t.Fatal(err)
				}
			}

			// Registration in launch order; teardown must not depend on it.
			add(topology.TierCoordinator, 0)
			for i := 1; i <= relays; i++ {
				add(topology.TierRelay, i)
			}
			for i := 1; i <= relays*leavesPerRelay; i++ {
				add(topology.TierLeaf, i)
			}

			c := NewCoordinator(registry, WithTimeout(time.Second))
			c.ShutdownAll()

			rank := map[topology.Tier]int{
				topology.TierLeaf:        0,
				topology.TierRelay:       1,
				topology.TierCoordinator: 2,
			}
			last := -1
			for _, name := range seq.names {
				r := rank[tierOf(name, registry)]
				if r < last {
					t.Logf("out of order stop sequence: %v", seq.names)
					return false
				}
				last = r
			}
			if len(seq.names) != registry.Len() {
				return false
			}

			for _, node := range registry.All() {
				if node.Status() != fleet.StatusStopped {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 5),
		gen.IntRange(0, 4),
	))

	properties.TestingRun(t)
}

func TestShutdownEscalatesToKillOnTimeout(t *testing.T) {
	registry := fleet.NewRegistry()
	seq := &stopSequence{}

	spec := topology.NodeSpec{Tier: topology.TierLeaf, ID: 1}
	process := newOrderedProcess(spec.Name(), seq)
	process.ignore = true // pretends not to hear SIGTERM
	node := fleet.NewNodeRuntime(spec, process, 5)
	node.Transition(fleet.StatusRunning)
	if err := registry.Add(node); err != nil {
		t.Fatal(err)
	}

	c := NewCoordinator(registry, WithTimeout(50*time.Millisecond))

	start := time.Now()
	c.ShutdownAll()

	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("shutdown returned before the graceful timeout: %v", elapsed)
	}
	if node.Status() != fleet.StatusStopped {
		t.Errorf("status = %s, want stopped", node.Status())
	}
	if !process.Exited() {
		t.Error("process was never killed")
	}
}

func TestShutdownKillsWhenTerminateFails(t *testing.T) {
	registry := fleet.NewRegistry()

	spec := topology.NodeSpec{Tier: topology.TierRelay, ID: 1}
	process := &failingTerminateProcess{orderedProcess: newOrderedProcess(spec.Name(), &stopSequence{})}
	node := fleet.NewNodeRuntime(spec, process, 5)
	node.Transition(fleet.StatusRunning)
	if err := registry.Add(node); err != nil {
		t.Fatal(err)
	}

	NewCoordinator(registry, WithTimeout(time.Second)).ShutdownAll()

	if node.Status() != fleet.StatusStopped {
		t.Errorf("status = %s, want stopped", node.Status())
	}
	if !process.Exited() {
		t.Error("process should have been killed")
	}
}

type failingTerminateProcess struct {
	*orderedProcess
}

func (p *failingTerminateProcess) Terminate() error {
	return errors.New("no such process")
}

func TestShutdownLeavesAlreadyDeadNodesFailed(t *testing.T) {
	registry := fleet.NewRegistry()

	spec := topology.NodeSpec{Tier: topology.TierLeaf, ID: 1}
	process := newOrderedProcess(spec.Name(), &stopSequence{})
	node := fleet.NewNodeRuntime(spec, process, 5)
	node.Transition(fleet.StatusRunning)
	if err := registry.Add(node); err != nil {
		t.Fatal(err)
	}
	process.exit()

	NewCoordinator(registry).ShutdownAll()

	if node.Status() != fleet.StatusFailed {
		t.Errorf("status = %s, want failed", node.Status())
	}
	if process.sequence.names != nil {
		t.Error("dead node should not receive a termination request")
	}
}

// streamClosingProcess models a child whose output stream ends and whose
// exit is reaped while the graceful termination request is still in flight:
// SIGTERM delivery, EOF on the merged stream, and the reap all land on the
// same child exit.
type streamClosingProcess struct {
	*orderedProcess
	closeStream func()
}

func (p *streamClosingProcess) Terminate() error {
	p.closeStream()
	p.exit()
	// Hold the stop path back long enough for the ingest goroutine to
	// observe the ended stream and the reaped exit first.
	time.Sleep(20 * time.Millisecond)
	return nil
}

func TestGracefulStopWinsOverStreamEndReclassification(t *testing.T) {
	registry := fleet.NewRegistry()
	broker := logs.NewBroker(nil)
	ing := ingest.New(broker, ingest.NewMatcher([]string{"ready"}), nil)

	pr, pw := io.Pipe()
	spec := topology.NodeSpec{Tier: topology.TierLeaf, ID: 1}
	process := &streamClosingProcess{
		orderedProcess: newOrderedProcess(spec.Name(), &stopSequence{}),
		closeStream:    func() { pw.Close() },
	}
	node := fleet.NewNodeRuntime(spec, process, 5)
	if err := registry.Add(node); err != nil {
		t.Fatal(err)
	}
	ing.Start(node, pr)

	pw.Write([]byte("ready\n"))
	deadline := time.Now().Add(2 * time.Second)
	for node.Status() != fleet.StatusRunning && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if node.Status() != fleet.StatusRunning {
		t.Fatalf("status = %s, want running before shutdown", node.Status())
	}

	NewCoordinator(registry, WithTimeout(time.Second)).ShutdownAll()

	if node.Status() != fleet.StatusStopped {
		t.Errorf("status = %s, want stopped", node.Status())
	}
}

func TestWatchSignalsCancelsContext(t *testing.T) {
	registry := fleet.NewRegistry()
	sigCh := make(chan os.Signal, 1)
	c := NewCoordinator(registry, WithSignalChannel(sigCh))

	ctx, cancel := context.WithCancel(context.Background())
	go c.WatchSignals(cancel)

	sigCh <- os.Interrupt

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled on signal")
	}
}
