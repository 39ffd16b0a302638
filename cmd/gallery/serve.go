package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eringen/gallery"
)

func newServeCmd() *cobra.Command {
	var (
		addr string
		warm bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gallery web server",
		Long: `Starts the gallery HTTP server.

The catalog is fetched from Cloudinary on the first request (or at startup
with --warm) and kept in memory. Send SIGHUP to drop it so the next request
fetches a fresh copy.`,
		Example: `  # Serve on the address from ADDR (default :3000)
  gallery serve

  # Serve on a custom address and fetch the catalog immediately
  gallery serve --addr :8080 --warm`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}

			app, err := gallery.NewFromConfig(cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			go func() {
				for range hup {
					log.Info("SIGHUP received, invalidating catalog")
					app.Catalog.Invalidate()
				}
			}()

			ctx := cmd.Context()
			if warm {
				app.Warm(ctx)
			}
			if err := app.Start(ctx); err != nil {
				log.Error("server stopped", zap.Error(err))
				return err
			}
			log.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides ADDR)")
	cmd.Flags().BoolVar(&warm, "warm", false, "Fetch the catalog at startup")

	return cmd
}
