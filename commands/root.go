// Package commands is the ecodigital command line: the API server, its
// maintenance jobs and a small client for the mobile endpoints.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ecodigital/config"
	"ecodigital/logger"
	"ecodigital/ranks"
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globals struct {
	logLevel string
}

func NewRootCommand() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "ecodigital",
		Short:         "Corporate sustainability missions API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCommand(g),
		newMigrateCommand(g),
		newSweepCommand(g),
		newPatentsCommand(),
		newClientCommand(),
	)
	return cmd
}

// setup loads the configuration, checks it for need and builds the logger.
func (g *globals) setup(need config.Requirement) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(need); err != nil {
		return nil, nil, err
	}
	level := cfg.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}
	log, err := logger.New(level, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.EnvFileLoaded {
		log.Debug("no .env file found, reading environment variables directly")
	}
	return cfg, log, nil
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// patentTable returns the table in PATENTS_FILE, or the built-in one.
func patentTable(path string) (*ranks.Table, error) {
	if path == "" {
		return ranks.Default, nil
	}
	return ranks.LoadFile(path)
}
