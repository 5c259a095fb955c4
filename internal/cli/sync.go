package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tmmirror/internal/config"
	"tmmirror/internal/storage"
	"tmmirror/internal/sync"
	"tmmirror/internal/tiles"
	"tmmirror/internal/tm"
)

var syncInterval time.Duration

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the mirror pipeline",
	Long: `Fetches the project listing, re-syncs projects whose timestamp
changed, and rewrites the combined artifacts. With --interval the
pipeline reruns on a fixed schedule until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(settingsPath)
		if err != nil {
			return err
		}
		log, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		defer closeLog()

		store, err := storage.New(cfg.Storage, log)
		if err != nil {
			return err
		}
		cached, err := storage.NewCached(store, cfg.Sync.CacheEntries)
		if err != nil {
			return err
		}

		api := tm.NewClient(tm.Options{
			BaseURL:  cfg.API.BaseURL,
			Statuses: cfg.API.Statuses,
			Timeout:  cfg.API.Timeout,
		}, log)

		tileOpts := cfg.Tiles
		orch := sync.New(sync.Deps{
			API:   api,
			Store: cached,
			Tiler: func(ctx context.Context, inPath, outPath string) error {
				return tiles.Generate(ctx, tileOpts, inPath, outPath)
			},
			Log:     log,
			Workers: cfg.Sync.Workers,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		for {
			res, err := orch.Run(ctx)
			if err != nil {
				if syncInterval <= 0 {
					return err
				}
				log.Error("sync run failed", "error", err)
			} else if res.ShortCircuited {
				log.Info("nothing to do", "candidates", res.Candidates)
			}

			if syncInterval <= 0 {
				return nil
			}
			log.Info("sleeping until next run", "interval", syncInterval.String())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(syncInterval):
			}
		}
	},
}

func init() {
	syncCmd.Flags().DurationVar(&syncInterval, "interval", 0, fmt.Sprintf("rerun the pipeline every interval (e.g. %s); run once when unset", time.Hour))
}
