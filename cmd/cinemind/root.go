package main

import (
	"github.com/spf13/cobra"

	"github.com/cinemind/cinemind/internal/config"
	"github.com/cinemind/cinemind/internal/logging"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "cinemind",
		Short:         "Hybrid movie recommendation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (optional)")

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newBuildCFCmd(&configPath))
	return cmd
}

// loadConfig merges defaults, the optional YAML file and the
// environment, then initializes logging from the result.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logging.Init(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Timestamp: true,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}
