// Package cli wires the cobra commands that start a seed or a peer node.
// Command/flag layout follows the teacher's internal/cli/agent.go
// (formerly in this package; superseded by seed.go and peer.go below).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "overlay",
	Short: "Run a gossip overlay network seed or peer node",
	Long: `overlay runs one node of a gossip overlay network.

A seed anchors membership consensus: seeds vote to admit and remove
peers and answer REGISTER requests with the current live-peer list. A
peer bootstraps against the seed directory, attaches to a preferential
set of neighbors, gossips originated messages, and monitors its
neighbors for liveness.`,
}

// Execute runs the root command; cmd/overlay/main.go is the sole caller.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
