package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mediastore/internal/config"
	"mediastore/internal/database"
	"mediastore/internal/domain/asset"
	"mediastore/internal/pkg/lock"
	"mediastore/internal/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		batch int
		loop  bool
	)

	cmd := &cobra.Command{
		Use:   "asset_cleanup",
		Short: "Purge expired media assets from disk and the catalog",
		Long: "Runs the TTL reaper without the HTTP server. By default a single sweep is run;\n" +
			"with --loop it keeps sweeping on MEDIA_REAPER_INTERVAL_MINUTES until interrupted.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if batch <= 0 {
				batch = cfg.Media.ReaperBatch
			}

			logg, err := logger.New(cfg.AppEnv)
			if err != nil {
				return err
			}
			defer logg.Sync()

			db, err := database.Connect(cfg.DatabaseURL, logg)
			if err != nil {
				return fmt.Errorf("db connect failed: %w", err)
			}
			if err := database.Migrate(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			root, err := asset.NewRoot(cfg.Media.StorageRoot)
			if err != nil {
				return err
			}

			locker := lock.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, "mediastore:")
			reaper := asset.NewReaper(asset.NewRepository(db), root, locker, cfg.Media.ReaperInterval, batch, logg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if loop {
				reaper.Start(ctx)
				<-ctx.Done()
				reaper.Stop()
				return nil
			}

			start := time.Now()
			res, err := reaper.SweepOnce(ctx)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"asset cleanup completed: selected=%d unlinked=%d missing=%d unlink_failed=%d deleted=%d skipped=%t in %s\n",
				res.Selected, res.Unlinked, res.Missing, res.UnlinkFailed, res.Deleted, res.Skipped, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().IntVar(&batch, "batch", 0, "max rows per sweep (default MEDIA_REAPER_BATCH)")
	cmd.Flags().BoolVar(&loop, "loop", false, "keep sweeping on the configured interval")
	return cmd
}
