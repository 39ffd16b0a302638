package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eringen/gallery"
	"github.com/eringen/gallery/logging"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Server-rendered photo gallery backed by Cloudinary",
		Long: `Gallery serves a grid of photos from a Cloudinary folder, with category
filters, a lightbox and a single-photo carousel.

Configuration comes from the environment; a .env file in the working
directory is loaded first when present.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newServeCmd(), newCatalogCmd())

	return cmd
}

// setup loads the configuration and builds the logger every command needs.
func setup() (gallery.Config, *zap.Logger, error) {
	cfg, err := gallery.LoadConfig()
	if err != nil {
		return cfg, nil, err
	}
	log, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Development: cfg.LogDev,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}
