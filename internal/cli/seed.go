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
	"github.com/meshlink/overlay/internal/infra/auditlog"
	"github.com/meshlink/overlay/internal/logging"
	"github.com/meshlink/overlay/internal/node"
)

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringP("listen", "l", "", "this seed's IP:PORT, must appear in --seeds (required)")
	seedCmd.Flags().StringP("seeds", "s", "config.csv", "path to the seed directory CSV")
	seedCmd.Flags().StringP("config", "c", "", "path to overlay.toml (optional)")
	seedCmd.Flags().StringP("log", "L", "", "path to the log file (default outputfile_seed_<port>.txt, per §6)")
	seedCmd.Flags().String("audit-db", "", "path to the audit trail sqlite database (optional)")
	seedCmd.MarkFlagRequired("listen")
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Run a membership-consensus seed node",
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	listenAddr, _ := cmd.Flags().GetString("listen")
	seedsPath, _ := cmd.Flags().GetString("seeds")
	configPath, _ := cmd.Flags().GetString("config")
	logPath, _ := cmd.Flags().GetString("log")
	auditPath, _ := cmd.Flags().GetString("audit-db")

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
		logPath = fmt.Sprintf("outputfile_seed_%d.txt", self.Port)
	}
	log, closeLog, err := logging.Open(logPath)
	if err != nil {
		return err
	}
	defer closeLog()
	log = log.With("seed")

	var audit *auditlog.DB
	if auditPath != "" {
		audit, err = auditlog.Open(auditPath)
		if err != nil {
			return fmt.Errorf("open audit db: %w", err)
		}
		defer audit.Close()
	}

	seed := node.NewSeed(self, seeds, cfg, log, audit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seed.Start(ctx); err != nil {
		return err
	}
	log.Printf("seed %s listening, %d seeds in directory", self, len(seeds))

	srv := runHTTPAPI(ctx, cfg.API, seed, log)

	<-ctx.Done()
	log.Printf("shutting down")
	seed.Stop()
	if srv != nil {
		shutdownHTTPAPI(srv, log)
	}
	return nil
}

var _ api.StatusProvider = (*node.Seed)(nil)
