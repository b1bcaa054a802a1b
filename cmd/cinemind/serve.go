package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cinemind/cinemind/internal/api"
	"github.com/cinemind/cinemind/internal/config"
	"github.com/cinemind/cinemind/internal/logging"
	"github.com/cinemind/cinemind/internal/personalize"
	"github.com/cinemind/cinemind/internal/recommend"
	"github.com/cinemind/cinemind/internal/recommend/cf"
	"github.com/cinemind/cinemind/internal/recommend/storage"
	"github.com/cinemind/cinemind/internal/supervisor"
	"github.com/cinemind/cinemind/internal/tmdb"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the recommendation API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.TMDB.APIKey == "" {
				return errors.New("tmdb api key is required to serve (set CINEMIND_TMDB_API_KEY)")
			}
			return runServe(cmd, cfg)
		},
	}
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	logger := logging.Component("serve")

	store, err := storage.NewStore(cfg.Model.Dir)
	if err != nil {
		return err
	}
	cfSource := cf.NewSource(store)

	profiles, err := personalize.OpenStore(cfg.Profiles.Dir)
	if err != nil {
		return err
	}
	defer func() {
		if err := profiles.Close(); err != nil {
			logger.Error().Err(err).Msg("closing profile store")
		}
	}()

	client := tmdb.NewClient(&cfg.TMDB)
	engine := recommend.NewEngine(client, client, profiles, cfSource, cfg.Engine)
	handler := api.NewHandler(engine, profiles, client, cfSource)
	router := api.NewRouter(handler, &cfg.Server)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddAPIService(supervisor.NewHTTPService(
		srv, cfg.Server.Addr, cfg.Server.ShutdownTimeout, logging.Component("http"),
	))
	tree.AddModelService(supervisor.NewModelReloadService(
		cfSource, cfg.Model.ReloadInterval, logging.Component("model-reload"),
	))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("addr", cfg.Server.Addr).Str("model_dir", cfg.Model.Dir).Msg("starting")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("stopped")
	return nil
}
