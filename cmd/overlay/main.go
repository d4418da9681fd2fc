// Command overlay runs a gossip overlay network node, either as a seed
// or as a peer.
package main

import "github.com/meshlink/overlay/internal/cli"

func main() {
	cli.Execute()
}
