package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ecodigital/baas"
	"ecodigital/config"
	"ecodigital/models"
	"ecodigital/services"
)

func newMigrateCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.setup(config.NeedDatabase)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			if err := models.Migrate(db.WithContext(cmd.Context())); err != nil {
				return err
			}
			log.Info("database migrated", zap.String("dialect", db.Dialector.Name()))
			return nil
		},
	}
}

func newSweepCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete evidence objects no completed mission references",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.setup(config.NeedStorage)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			s3c, err := baas.NewS3Client(cmd.Context(), cfg.StorageEndpoint, cfg.StorageRegion, cfg.StorageAccessKeyID, cfg.StorageSecretKey)
			if err != nil {
				return fmt.Errorf("object storage: %w", err)
			}
			evidence := baas.NewBucket(s3c, cfg.EvidenceBucket, cfg.StoragePublicBaseURL)

			n, err := services.NewEvidenceSweeper(db, evidence, cfg.OrphanGracePeriod, log, nil).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d orphan evidence object(s)\n", n)
			return nil
		},
	}
}

func newPatentsCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "patents",
		Short: "Print the active patent table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				file = cfg.PatentsFile
			}
			table, err := patentTable(file)
			if err != nil {
				return err
			}
			out, err := table.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "patent table YAML (defaults to PATENTS_FILE, then the built-in table)")
	return cmd
}
