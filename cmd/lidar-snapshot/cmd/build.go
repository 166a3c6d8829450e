package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/app"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/config"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/metrics"
	"github.com/opengeos/maplibre-gl-noaa-lidar/internal/snapshot"
)

type buildOptions struct {
	out        string
	catalogURL string
	eptBaseURL string
	batchSize  int
	noCache    bool
}

func newBuildCmd(root *rootOptions) *cobra.Command {
	opts := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Crawl the remote catalog and write a snapshot file",
		Long: `Fetches the root STAC catalog and every item document, flattens them into
index records and writes a snapshot file that the server can embed or load
through catalog.snapshot_path.

Unless --no-cache is given, the configured cache store is refreshed too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.config()
			if err != nil {
				return err
			}
			logger, err := root.logger()
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			return runBuild(cmd.Context(), cmd.ErrOrStderr(), cfg, opts, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "catalog.json", "Snapshot output path")
	cmd.Flags().StringVar(&opts.catalogURL, "catalog-url", "", "Override catalog.url")
	cmd.Flags().StringVar(&opts.eptBaseURL, "ept-base-url", "", "Override catalog.ept_base_url")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Override catalog.batch_size")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Do not write the result to the cache store")

	return cmd
}

func runBuild(ctx context.Context, progress io.Writer, cfg config.Config, opts *buildOptions, logger *zap.Logger) error {
	if opts.catalogURL != "" {
		cfg.Catalog.URL = opts.catalogURL
	}
	if opts.eptBaseURL != "" {
		cfg.Catalog.EPTBaseURL = opts.eptBaseURL
	}
	if opts.batchSize > 0 {
		cfg.Catalog.BatchSize = opts.batchSize
	}
	if opts.noCache {
		cfg.Storage.Driver = "memory"
	}

	store, err := app.OpenStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics.RegisterCatalogMetrics()
	catalog := app.NewCatalog(cfg.Catalog, cfg.Storage, store, logger)

	start := time.Now()
	records, err := catalog.Loader.Rebuild(ctx, func(processed, total int) {
		_, _ = fmt.Fprintf(progress, "\rfetched %d/%d items", processed, total)
	})
	_, _ = fmt.Fprintln(progress)
	if err != nil {
		return fmt.Errorf("rebuild catalog: %w", err)
	}

	snap := snapshot.New(records, time.Now())
	if err := snapshot.WriteFile(opts.out, snap); err != nil {
		return err
	}

	logger.Info("Snapshot written",
		zap.String("path", opts.out),
		zap.Int("items", snap.ItemCount),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
