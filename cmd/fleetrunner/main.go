// Command fleetrunner launches and supervises a three-tier fleet of
// time-sync node executables: one coordinator, R relays, and D leaves per
// relay. It tracks readiness through child output, prints periodic health
// summaries, optionally serves a status API, and tears the fleet down in
// reverse dependency order on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/syncmesh/fleetrunner/internal/api"
	"github.com/syncmesh/fleetrunner/internal/fleet"
	"github.com/syncmesh/fleetrunner/internal/ingest"
	"github.com/syncmesh/fleetrunner/internal/launcher"
	"github.com/syncmesh/fleetrunner/internal/logs"
	"github.com/syncmesh/fleetrunner/internal/monitor"
	"github.com/syncmesh/fleetrunner/internal/shutdown"
	"github.com/syncmesh/fleetrunner/internal/topology"
	"github.com/syncmesh/fleetrunner/pkg/config"
	"github.com/syncmesh/fleetrunner/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	flags := flag.NewFlagSet("fleetrunner", flag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "path to a YAML config file")
	relays := flags.Int("relays", cfg.Relays, "number of relay nodes")
	leaves := flags.Int("leaves-per-relay", cfg.LeavesPerRelay, "number of leaf nodes per relay")
	coordinatorPort := flags.Int("coordinator-port", cfg.CoordinatorPort, "coordinator listen port")
	relayBasePort := flags.Int("relay-base-port", cfg.RelayBasePort, "base port for relays, incremented per relay")
	syncInterval := flags.Duration("sync-interval", cfg.RelaySyncInterval, "relay-to-coordinator sync interval")
	leafSyncInterval := flags.Duration("leaf-sync-interval", cfg.LeafSyncInterval, "leaf sync request interval")
	leafStatusInterval := flags.Duration("leaf-status-interval", cfg.LeafStatusInterval, "leaf status report interval")
	workspace := flags.String("workspace", cfg.WorkspaceRoot, "workspace root the node executables run in")
	httpAddr := flags.String("http-addr", cfg.HTTPAddr, "listen address for the status API (disabled when empty)")
	usePTY := flags.Bool("pty", cfg.UsePTY, "run node processes under a pseudo terminal")
	verbose := flags.BoolP("verbose", "v", cfg.Verbose, "show every child log line instead of important ones only")
	jsonLogs := flags.Bool("json-logs", cfg.LogJSON, "emit supervisor logs as JSON")
	flags.Parse(os.Args[1:])

	if *configPath != "" {
		if err := cfg.ApplyFile(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	// Flags win over file and environment values, but only when set.
	applyFlag := map[string]func(){
		"relays":               func() { cfg.Relays = *relays },
		"leaves-per-relay":     func() { cfg.LeavesPerRelay = *leaves },
		"coordinator-port":     func() { cfg.CoordinatorPort = *coordinatorPort },
		"relay-base-port":      func() { cfg.RelayBasePort = *relayBasePort },
		"sync-interval":        func() { cfg.RelaySyncInterval = *syncInterval },
		"leaf-sync-interval":   func() { cfg.LeafSyncInterval = *leafSyncInterval },
		"leaf-status-interval": func() { cfg.LeafStatusInterval = *leafStatusInterval },
		"workspace":            func() { cfg.WorkspaceRoot = *workspace },
		"http-addr":            func() { cfg.HTTPAddr = *httpAddr },
		"pty":                  func() { cfg.UsePTY = *usePTY },
		"verbose":              func() { cfg.Verbose = *verbose },
		"json-logs":            func() { cfg.LogJSON = *jsonLogs },
	}
	flags.Visit(func(f *flag.Flag) {
		if apply, ok := applyFlag[f.Name]; ok {
			apply()
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 1
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	runID := uuid.NewString()[:8]
	log := logger.New(level, cfg.LogJSON).WithRunID(runID)

	// Precondition: the workspace must look like a fleet project before any
	// node is launched.
	manifest := filepath.Join(cfg.WorkspaceRoot, cfg.ManifestName)
	if _, err := os.Stat(manifest); err != nil {
		log.Error("project manifest not found, refusing to start", "manifest", manifest)
		return 1
	}

	return supervise(cfg, log, runID)
}

// supervise runs one full fleet session: launch, monitor, teardown.
func supervise(cfg *config.Config, log *logger.Logger, runID string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := fleet.NewRegistry()
	broker := logs.NewBroker(log.WithComponent("broker").Logger)
	ingestor := ingest.New(broker, ingest.NewMatcher(cfg.ReadinessKeywords), log.WithComponent("ingest"))
	launch := launcher.New(cfg, ingestor, log.WithComponent("launcher"))
	reporter := monitor.NewReporter(registry, os.Stdout)
	mon := monitor.New(registry, reporter, cfg.MonitorInterval, cfg.ReportInterval, log.WithComponent("monitor").Logger)
	stopper := shutdown.NewCoordinator(registry,
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.WithComponent("shutdown").Logger),
	)

	go stopper.WatchSignals(cancel)
	go displayLines(ctx, broker, ingest.NewMatcher(cfg.ImportanceKeywords), cfg.Verbose)

	var statusSrv *api.Server
	if cfg.HTTPAddr != "" {
		statusSrv = api.NewServer(cfg.HTTPAddr, registry, broker, runID, log.WithComponent("api").Logger)
		go func() {
			if err := statusSrv.Start(); err != nil {
				log.WithError(err).Error("status API failed")
			}
		}()
	}

	specs := topology.Build(cfg)
	log.Info("starting fleet",
		"relays", cfg.Relays,
		"leaves_per_relay", cfg.LeavesPerRelay,
		"total_nodes", len(specs),
	)

	startTiers(ctx, cfg, specs, launch, registry, log)
	log.Info("all nodes started", "count", registry.Len())

	// Give the fleet a moment to come up before the first summary.
	if sleepCtx(ctx, cfg.CoordinatorPause) {
		reporter.Report()
		log.Info("fleet is running, press Ctrl+C to stop")
		mon.Start(ctx)
	}

	// Teardown. Stop the status API first so new requests never observe a
	// half-stopped fleet.
	if statusSrv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("status API shutdown failed", "error", err)
		}
		cancelShutdown()
	}
	stopper.ShutdownAll()
	return 0
}

// startTiers launches the fleet in strict dependency order with pauses
// between tiers so each tier's peers are reachable before dependents
// connect. A single launch failure is logged and skipped.
func startTiers(ctx context.Context, cfg *config.Config, specs []topology.NodeSpec, launch *launcher.Launcher, registry *fleet.Registry, log *logger.Logger) {
	byTier := func(tier topology.Tier) []topology.NodeSpec {
		var out []topology.NodeSpec
		for _, spec := range specs {
			if spec.Tier == tier {
				out = append(out, spec)
			}
		}
		return out
	}

	launchAll := func(specs []topology.NodeSpec) {
		for _, spec := range specs {
			node, err := launch.Launch(spec)
			if err != nil {
				log.WithError(err).Error("failed to start node", "node", spec.Name())
				continue
			}
			if err := registry.Add(node); err != nil {
				log.WithError(err).Error("failed to register node", "node", spec.Name())
			}
		}
	}

	launchAll(byTier(topology.TierCoordinator))
	if !sleepCtx(ctx, cfg.CoordinatorPause) {
		return
	}
	launchAll(byTier(topology.TierRelay))
	if !sleepCtx(ctx, cfg.RelayPause) {
		return
	}
	launchAll(byTier(topology.TierLeaf))
}

// displayLines drains the shared log channel to stdout, filtering by the
// importance keywords unless verbose.
func displayLines(ctx context.Context, broker *logs.Broker, important *ingest.Matcher, verbose bool) {
	sub := broker.Subscribe("", 1024)
	defer broker.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-sub.Ch:
			if !ok {
				return
			}
			if verbose || important.Match(line.Raw) {
				fmt.Println(line.Formatted)
			}
		}
	}
}

// sleepCtx sleeps for d and reports whether the context is still live.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
