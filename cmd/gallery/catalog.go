package main

import (
	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eringen/gallery"
	"github.com/eringen/gallery/catalog"
)

func newCatalogCmd() *cobra.Command {
	var (
		folders []string
		preview string
	)

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Fetch the catalog once and print it as JSON",
		Example: `  # Every entry
  gallery catalog

  # Only entries whose folder contains "street" or "portraits", no placeholders
  gallery catalog --folder street --folder portraits --preview none`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if preview != "" {
				cfg.Preview.Policy = preview
			}

			cache, _, err := gallery.NewCatalog(cfg, log, nil)
			if err != nil {
				return err
			}
			cat, err := cache.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			entries := catalog.FilterByFolders(cat.Entries, folders)
			log.Info("catalog fetched",
				zap.Int("entries", len(entries)),
				zap.Int("skipped", cat.Skipped),
				zap.Int("preview_failures", cat.PreviewFailures))

			out, err := sonic.ConfigStd.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(out, '\n'))
			return err
		},
	}

	cmd.Flags().StringArrayVar(&folders, "folder", nil, "Keep entries whose folder contains this value (repeatable)")
	cmd.Flags().StringVar(&preview, "preview", "", "Placeholder policy: per-entry, shared or none")

	return cmd
}
