// Package topology turns tier cardinalities into a concrete ordered list of
// node specifications with assigned identities, addresses, and launch arguments.
package topology

import (
	"fmt"
	"strconv"
	"time"

	"github.com/syncmesh/fleetrunner/pkg/config"
)

// Tier identifies a node's position in the dependency hierarchy.
// Leaves report to relays, relays report to the coordinator.
type Tier string

const (
	TierCoordinator Tier = "coordinator"
	TierRelay       Tier = "relay"
	TierLeaf        Tier = "leaf"
)

// NodeSpec describes a single node to launch. It is created once by Build
// and never mutated.
type NodeSpec struct {
	Tier       Tier
	ID         int
	ListenPort int    // 0 when the tier does not listen
	TargetAddr string // address of the node this one reports to, "" for the coordinator
	Token      string // hardware-style identity token, leaves only
	Args       []string
}

// Name derives the unique display name for a spec. The derivation is a pure
// function of (tier, id): the coordinator is a singleton, relays and leaves
// carry their id.
func (s NodeSpec) Name() string {
	if s.Tier == TierCoordinator {
		return string(TierCoordinator)
	}
	return fmt.Sprintf("%s-%d", s.Tier, s.ID)
}

// LeafToken generates the identity token for a leaf from its global id.
// The token is a 6-byte MAC-style address whose low byte encodes the id,
// so tokens are unique and stable for ids 1-255.
func LeafToken(id int) string {
	return fmt.Sprintf("DE:AD:BE:EF:00:%02X", id&0xFF)
}

// Build produces the full ordered node list: coordinator first, then relays
// in id order, then leaves grouped by owning relay with globally increasing
// ids. Port and interval validation is owned by config.Validate and assumed
// already satisfied here.
func Build(cfg *config.Config) []NodeSpec {
	specs := make([]NodeSpec, 0, 1+cfg.Relays+cfg.Relays*cfg.LeavesPerRelay)

	specs = append(specs, NodeSpec{
		Tier:       TierCoordinator,
		ID:         0,
		ListenPort: cfg.CoordinatorPort,
		Args:       []string{"--port", strconv.Itoa(cfg.CoordinatorPort)},
	})

	coordinatorAddr := fmt.Sprintf("127.0.0.1:%d", cfg.CoordinatorPort)
	for relayID := 1; relayID <= cfg.Relays; relayID++ {
		relayPort := cfg.RelayBasePort + relayID - 1
		specs = append(specs, NodeSpec{
			Tier:       TierRelay,
			ID:         relayID,
			ListenPort: relayPort,
			TargetAddr: coordinatorAddr,
			Args: []string{
				"--relay-id", strconv.Itoa(relayID),
				"--coordinator-addr", coordinatorAddr,
				"--listen-port", strconv.Itoa(relayPort),
				"--sync-interval", seconds(cfg.RelaySyncInterval),
			},
		})
	}

	leafID := 1
	for relayID := 1; relayID <= cfg.Relays; relayID++ {
		relayAddr := fmt.Sprintf("127.0.0.1:%d", cfg.RelayBasePort+relayID-1)
		for i := 0; i < cfg.LeavesPerRelay; i++ {
			token := LeafToken(leafID)
			specs = append(specs, NodeSpec{
				Tier:       TierLeaf,
				ID:         leafID,
				TargetAddr: relayAddr,
				Token:      token,
				Args: []string{
					"--relay-addr", relayAddr,
					"--node-token", token,
					"--sync-interval", seconds(cfg.LeafSyncInterval),
					"--status-interval", seconds(cfg.LeafStatusInterval),
				},
			})
			leafID++
		}
	}

	return specs
}

// seconds renders a duration as whole seconds for the child argument contract.
func seconds(d time.Duration) string {
	return strconv.Itoa(int(d / time.Second))
}
