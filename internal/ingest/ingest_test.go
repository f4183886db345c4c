package ingest

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/syncmesh/fleetrunner/internal/fleet"
	"github.com/syncmesh/fleetrunner/internal/logs"
	"github.com/syncmesh/fleetrunner/internal/proc/proctest"
	"github.com/syncmesh/fleetrunner/internal/topology"
)

func newIngestNode(process *proctest.FakeProcess, historyCap int) *fleet.NodeRuntime {
	spec := topology.NodeSpec{Tier: topology.TierRelay, ID: 1}
	return fleet.NewNodeRuntime(spec, process, historyCap)
}

// collect subscribes before ingestion starts and returns the lines received
// until the stream goroutine finishes (signalled by writer close + timeout).
func collect(t *testing.T, sub *logs.Subscriber, want int) []logs.Line {
	t.Helper()
	var got []logs.Line
	deadline := time.After(2 * time.Second)
	for len(got) < want {
		select {
		case line := <-sub.Ch:
			got = append(got, line)
		case <-deadline:
			t.Fatalf("timed out after %d of %d lines", len(got), want)
		}
	}
	return got
}

func waitStatus(t *testing.T, node *fleet.NodeRuntime, want fleet.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if node.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", node.Status(), want)
}

func TestIngestFormatsAndRecordsLines(t *testing.T) {
	broker := logs.NewBroker(nil)
	sub := broker.Subscribe("", 16)
	defer broker.Unsubscribe(sub)

	node := newIngestNode(proctest.New(1), 10)
	ing := New(broker, NewMatcher(nil), nil)

	pr, pw := io.Pipe()
	ing.Start(node, pr)

	pw.Write([]byte("first line  \r\n\nsecond line\n"))
	pw.Close()

	got := collect(t, sub, 2)
	if got[0].Raw != "first line" || got[1].Raw != "second line" {
		t.Errorf("raw lines = %q, %q", got[0].Raw, got[1].Raw)
	}
	if !strings.HasSuffix(got[0].Formatted, "[RELAY-1] first line") {
		t.Errorf("formatted = %q", got[0].Formatted)
	}
	if !strings.HasPrefix(got[0].Formatted, "[") {
		t.Errorf("formatted = %q", got[0].Formatted)
	}

	history := node.History(0)
	if len(history) != 2 {
		t.Errorf("history = %v", history)
	}
}

func TestIngestPromotesOnReadinessKeyword(t *testing.T) {
	broker := logs.NewBroker(nil)
	node := newIngestNode(proctest.New(1), 10)
	ing := New(broker, NewMatcher([]string{"listening"}), nil)

	pr, pw := io.Pipe()
	ing.Start(node, pr)

	pw.Write([]byte("booting\n"))
	pw.Write([]byte("Listening on 127.0.0.1:9090\n"))

	waitStatus(t, node, fleet.StatusRunning)
	pw.Close()
}

func TestIngestNoPromotionWithoutKeyword(t *testing.T) {
	broker := logs.NewBroker(nil)
	sub := broker.Subscribe("", 16)
	defer broker.Unsubscribe(sub)

	node := newIngestNode(proctest.New(1), 10)
	ing := New(broker, NewMatcher([]string{"listening"}), nil)

	pr, pw := io.Pipe()
	ing.Start(node, pr)

	pw.Write([]byte("warming up\n"))
	pw.Close()

	collect(t, sub, 1)
	if node.Status() != fleet.StatusStarting {
		t.Errorf("status = %s, want starting", node.Status())
	}
}

func TestIngestMarksFailedWhenRunningStreamEnds(t *testing.T) {
	broker := logs.NewBroker(nil)
	process := proctest.New(1)
	node := newIngestNode(process, 10)
	ing := New(broker, NewMatcher([]string{"ready"}), nil)

	pr, pw := io.Pipe()
	ing.Start(node, pr)

	pw.Write([]byte("node ready\n"))
	waitStatus(t, node, fleet.StatusRunning)

	// The process dies and its stream ends.
	process.Exit()
	pw.Close()

	waitStatus(t, node, fleet.StatusFailed)
}

func TestIngestSkipsFailureWhenStopRequested(t *testing.T) {
	broker := logs.NewBroker(nil)
	process := proctest.New(1)
	node := newIngestNode(process, 10)
	ing := New(broker, NewMatcher([]string{"ready"}), nil)

	pr, pw := io.Pipe()
	ing.Start(node, pr)

	pw.Write([]byte("node ready\n"))
	waitStatus(t, node, fleet.StatusRunning)

	// A requested stop makes the coming exit expected: the stream ending
	// must not reclassify the node as failed.
	node.RequestStop()
	process.Exit()
	pw.Close()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if got := node.Status(); got != fleet.StatusRunning {
			t.Fatalf("status = %s, want running until the stop completes", got)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestIngestHistoryStaysBounded(t *testing.T) {
	broker := logs.NewBroker(nil)
	sub := broker.Subscribe("", 64)
	defer broker.Unsubscribe(sub)

	node := newIngestNode(proctest.New(1), 5)
	ing := New(broker, NewMatcher(nil), nil)

	pr, pw := io.Pipe()
	ing.Start(node, pr)

	for i := 0; i < 20; i++ {
		pw.Write([]byte("line\n"))
	}
	pw.Close()

	collect(t, sub, 20)
	if got := len(node.History(0)); got != 5 {
		t.Errorf("history length = %d, want 5", got)
	}
}
