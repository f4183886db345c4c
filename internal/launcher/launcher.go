// Package launcher starts one external node executable per specification,
// wiring its combined output stream into the log ingestor.
package launcher

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/creack/pty"
	"github.com/syncmesh/fleetrunner/internal/fleet"
	"github.com/syncmesh/fleetrunner/internal/ingest"
	"github.com/syncmesh/fleetrunner/internal/proc"
	"github.com/syncmesh/fleetrunner/internal/topology"
	"github.com/syncmesh/fleetrunner/pkg/config"
	"github.com/syncmesh/fleetrunner/pkg/logger"
)

// LaunchError reports a node executable that failed to start. A single
// launch failure is not fatal to the fleet; the caller logs and continues.
type LaunchError struct {
	Node string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching %s: %v", e.Node, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Launcher starts node processes with their stdout and stderr merged into a
// single captured stream.
type Launcher struct {
	cfg      *config.Config
	ingestor *ingest.Ingestor
	logger   *logger.Logger
}

// New creates a launcher. Every successful launch hands the node's output
// stream to the ingestor.
func New(cfg *config.Config, ingestor *ingest.Ingestor, log *logger.Logger) *Launcher {
	if log == nil {
		log = logger.Default()
	}
	return &Launcher{
		cfg:      cfg,
		ingestor: ingestor,
		logger:   log,
	}
}

// Launch starts the executable for the spec's tier with the spec's launch
// arguments, working directory fixed to the workspace root. On success the
// returned runtime is in StatusStarting with an empty history and a log
// ingestion goroutine already attached.
func (l *Launcher) Launch(spec topology.NodeSpec) (*fleet.NodeRuntime, error) {
	name := spec.Name()

	bin, err := l.binaryFor(spec.Tier)
	if err != nil {
		return nil, &LaunchError{Node: name, Err: err}
	}

	cmd := exec.Command(bin, spec.Args...)
	cmd.Dir = l.cfg.WorkspaceRoot

	var stream io.ReadCloser
	if l.cfg.UsePTY {
		// A pty keeps libc line buffering off in the child, so readiness
		// lines arrive as soon as they are printed.
		f, err := pty.Start(cmd)
		if err != nil {
			return nil, &LaunchError{Node: name, Err: err}
		}
		stream = f
	} else {
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, &LaunchError{Node: name, Err: err}
		}
		cmd.Stdout = pw
		cmd.Stderr = pw

		if err := cmd.Start(); err != nil {
			pr.Close()
			pw.Close()
			return nil, &LaunchError{Node: name, Err: err}
		}
		// The parent's copy of the write end must be closed so the read
		// end sees EOF once the child exits.
		pw.Close()
		stream = pr
	}

	l.logger.WithNode(name).Info("node launched",
		"tier", string(spec.Tier),
		"pid", cmd.Process.Pid,
		"command", bin+" "+strings.Join(spec.Args, " "),
	)

	node := fleet.NewNodeRuntime(spec, proc.NewOSProcess(cmd), l.cfg.LogHistory)
	l.ingestor.Start(node, stream)
	return node, nil
}

// binaryFor resolves the executable path for a tier. Paths containing a
// separator are resolved against the workspace root; bare names go through
// PATH lookup.
func (l *Launcher) binaryFor(tier topology.Tier) (string, error) {
	var bin string
	switch tier {
	case topology.TierCoordinator:
		bin = l.cfg.CoordinatorCmd
	case topology.TierRelay:
		bin = l.cfg.RelayCmd
	case topology.TierLeaf:
		bin = l.cfg.LeafCmd
	default:
		return "", fmt.Errorf("unknown tier %q", tier)
	}
	if bin == "" {
		return "", fmt.Errorf("no executable configured for tier %q", tier)
	}
	if !filepath.IsAbs(bin) && strings.ContainsRune(bin, filepath.Separator) {
		abs, err := filepath.Abs(filepath.Join(l.cfg.WorkspaceRoot, bin))
		if err != nil {
			return "", err
		}
		bin = abs
	}
	return bin, nil
}
