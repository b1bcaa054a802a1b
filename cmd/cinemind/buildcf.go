package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/cinemind/cinemind/internal/logging"
	"github.com/cinemind/cinemind/internal/movielens"
	"github.com/cinemind/cinemind/internal/recommend/cf"
	"github.com/cinemind/cinemind/internal/recommend/storage"
)

func newBuildCFCmd(configPath *string) *cobra.Command {
	var (
		datasetDir     string
		topK           int
		minItemRatings int
		blockSize      int
		workers        int
	)

	cmd := &cobra.Command{
		Use:   "build-cf",
		Short: "Build the item-item CF model from a MovieLens dataset",
		Long: `Reads ratings.csv and links.csv from the dataset directory, computes
top-K cosine neighbors per item block-wise, and saves a new versioned
model artifact. The running server picks it up on its next reload tick.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			bc := cf.BuilderConfig{
				TopK:           cfg.Builder.TopK,
				MinItemRatings: cfg.Builder.MinItemRatings,
				BlockSize:      cfg.Builder.BlockSize,
				Workers:        cfg.Builder.Workers,
			}
			if cmd.Flags().Changed("top-k") {
				bc.TopK = topK
			}
			if cmd.Flags().Changed("min-item-ratings") {
				bc.MinItemRatings = minItemRatings
			}
			if cmd.Flags().Changed("block-size") {
				bc.BlockSize = blockSize
			}
			if cmd.Flags().Changed("workers") {
				bc.Workers = workers
			}

			return runBuildCF(cmd, datasetDir, cfg.Model.Dir, bc)
		},
	}

	cmd.Flags().StringVar(&datasetDir, "dataset", "", "MovieLens dataset directory (ratings.csv, links.csv)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "neighbors retained per item")
	cmd.Flags().IntVar(&minItemRatings, "min-item-ratings", 0, "prune items with fewer ratings")
	cmd.Flags().IntVar(&blockSize, "block-size", 0, "item rows per similarity block")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel workers per block (0 = all CPUs)")
	_ = cmd.MarkFlagRequired("dataset")

	return cmd
}

func runBuildCF(cmd *cobra.Command, datasetDir, modelDir string, bc cf.BuilderConfig) error {
	ctx := cmd.Context()
	logger := logging.Component("build-cf")
	start := time.Now()

	ds, err := movielens.Open(datasetDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logger.Error().Err(err).Msg("closing dataset")
		}
	}()

	ratings, err := ds.Ratings(ctx, bc.MinItemRatings)
	if err != nil {
		return err
	}
	links, err := ds.Links(ctx)
	if err != nil {
		return err
	}
	logger.Info().
		Int("ratings", len(ratings)).
		Int("links", len(links)).
		Dur("elapsed", time.Since(start)).
		Msg("dataset loaded")

	model, err := cf.Build(ctx, ratings, links, bc)
	if err != nil {
		return err
	}

	store, err := storage.NewStore(modelDir)
	if err != nil {
		return err
	}
	meta, err := store.Save(cf.ArtifactName, model)
	if err != nil {
		return err
	}

	logger.Info().
		Int("version", meta.Version).
		Int("items", len(model.Items)).
		Int("users", model.Meta.UserCount).
		Str("checksum", meta.Checksum).
		Int64("size_bytes", meta.SizeBytes).
		Dur("elapsed", time.Since(start)).
		Msg("model built")
	return nil
}
