// Package ingest reads the merged output stream of each node, maintains the
// node's bounded log history, fans lines out through the broker, and promotes
// nodes from starting to running when a readiness keyword is observed.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/syncmesh/fleetrunner/internal/fleet"
	"github.com/syncmesh/fleetrunner/internal/logs"
	"github.com/syncmesh/fleetrunner/pkg/logger"
)

// maxLineSize bounds a single child output line. A longer line stops the
// scan with bufio.ErrTooLong, which ends ingestion for that node the same
// way end of stream does.
const maxLineSize = 256 * 1024

// Ingestor runs one reader goroutine per node for the lifetime of the node's
// output stream.
type Ingestor struct {
	broker    *logs.Broker
	readiness *Matcher
	logger    *logger.Logger
}

// New creates an ingestor publishing to broker and promoting nodes whose
// output matches the readiness matcher.
func New(broker *logs.Broker, readiness *Matcher, log *logger.Logger) *Ingestor {
	if log == nil {
		log = logger.Default()
	}
	return &Ingestor{
		broker:    broker,
		readiness: readiness,
		logger:    log,
	}
}

// Start begins ingesting the node's stream on a new goroutine. The goroutine
// exits when the stream ends; it is not otherwise cancellable, matching the
// lifetime of the child process output.
func (ing *Ingestor) Start(node *fleet.NodeRuntime, stream io.ReadCloser) {
	go ing.run(node, stream)
}

func (ing *Ingestor) run(node *fleet.NodeRuntime, stream io.ReadCloser) {
	defer stream.Close()

	name := node.Name()
	nodeLog := ing.logger.WithNode(name)
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		raw := strings.TrimRight(scanner.Text(), " \t\r")
		if raw == "" {
			continue
		}

		now := time.Now()
		formatted := fmt.Sprintf("[%s] [%s] %s", now.Format("15:04:05"), strings.ToUpper(name), raw)
		node.RecordLine(formatted, now)

		ing.broker.Publish(logs.Line{
			Node:      name,
			Tier:      node.Spec().Tier,
			Raw:       raw,
			Formatted: formatted,
			Timestamp: now,
		})

		if node.Status() == fleet.StatusStarting && ing.readiness.Match(raw) {
			if node.Transition(fleet.StatusRunning) {
				nodeLog.Info("node is ready")
			}
		}
	}

	// Read errors are treated as stream end; a pty returns EIO once the
	// child hangs up, which is the normal end-of-stream there.
	if err := scanner.Err(); err != nil {
		nodeLog.Debug("log stream ended with error", "error", err)
	}

	// Output ending while the node is nominally running is a failure
	// signal: node processes run until told to stop. An exit caused by a
	// requested stop is expected; the shutdown path owns that transition.
	if node.Status() == fleet.StatusRunning && node.Process().Exited() && !node.StopRequested() {
		if node.Transition(fleet.StatusFailed) {
			nodeLog.Warn("node output ended unexpectedly")
		}
	}
}
