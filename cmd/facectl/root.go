package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/your-org/classcam/internal/config"
	"github.com/your-org/classcam/internal/engine"
	"github.com/your-org/classcam/internal/facedb"
	"github.com/your-org/classcam/internal/observability"
	"github.com/your-org/classcam/internal/storage"
	"github.com/your-org/classcam/internal/vision"
)

const Version = "0.1.0"

var (
	configPath string

	cfg        *config.Config
	store      facedb.Store
	closeStore = func() {}
)

var rootCmd = &cobra.Command{
	Use:     "facectl",
	Short:   "Manage classcam sections and enrolled identities",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		observability.SetupLogger(cfg.Logging.Level, "text")

		store, closeStore, err = storage.OpenSnapshotStore(cmd.Context(), cfg.Database, cfg.Postgres, cfg.MinIO)
		if err != nil {
			return fmt.Errorf("open face database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeStore()
	},
}

// Execute runs the CLI with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
}

// loadEngine restores the configured database into an engine. det may be nil
// for commands that never look at images.
func loadEngine(ctx context.Context, det vision.Detector) (*engine.Engine, error) {
	eng := engine.New(engine.Options{
		Detector:       det,
		Store:          store,
		Matcher:        cfg.Matcher(),
		Tracking:       cfg.Tracker(),
		Enrollment:     cfg.Enroller(),
		ProvisionalIoU: float32(cfg.Tracking.ProvisionalIoU),
	})
	if err := eng.Load(ctx); err != nil {
		return nil, err
	}
	return eng, nil
}
