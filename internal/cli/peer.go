package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meshlink/overlay/internal/api"
	"github.com/meshlink/overlay/internal/config"
	"github.com/meshlink/overlay/internal/domain"
	"github.com/meshlink/overlay/internal/logging"
	"github.com/meshlink/overlay/internal/node"
)

func init() {
	rootCmd.AddCommand(peerCmd)
	peerCmd.Flags().StringP("listen", "l", "", "this peer's IP:PORT (required)")
	peerCmd.Flags().StringP("seeds", "s", "config.csv", "path to the seed directory CSV")
	peerCmd.Flags().StringP("config", "c", "", "path to overlay.toml (optional)")
	peerCmd.Flags().StringP("log", "L", "", "path to the log file (default outputfile_peer_<port>.txt, per §6)")
	peerCmd.MarkFlagRequired("listen")
}

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Run a gossiping, liveness-monitoring peer node",
	RunE:  runPeer,
}

func runPeer(cmd *cobra.Command, args []string) error {
	listenAddr, _ := cmd.Flags().GetString("listen")
	seedsPath, _ := cmd.Flags().GetString("seeds")
	configPath, _ := cmd.Flags().GetString("config")
	logPath, _ := cmd.Flags().GetString("log")

	self, err := domain.ParsePeerID(listenAddr)
	if err != nil {
		return fmt.Errorf("--listen: %w", err)
	}
	seeds, err := config.LoadSeedDirectory(seedsPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if logPath == "" {
		logPath = fmt.Sprintf("outputfile_peer_%d.txt", self.Port)
	}
	log, closeLog, err := logging.Open(logPath)
	if err != nil {
		return err
	}
	defer closeLog()
	log = log.With("peer")

	p := node.NewPeer(self, seeds, cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Start(ctx); err != nil {
		return err
	}
	log.Printf("peer %s started, bootstrapping against %d seeds", self, len(seeds))

	srv := runHTTPAPI(ctx, cfg.API, p, log)

	<-ctx.Done()
	log.Printf("shutting down")
	p.Stop()
	if srv != nil {
		shutdownHTTPAPI(srv, log)
	}
	return nil
}

var _ api.StatusProvider = (*node.Peer)(nil)
