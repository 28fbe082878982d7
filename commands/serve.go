package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ecodigital/baas"
	"ecodigital/config"
	"ecodigital/handlers"
	"ecodigital/logger"
	"ecodigital/metrics"
	"ecodigital/models"
	"ecodigital/services"
	"ecodigital/workers"
)

const (
	feedSourceListen = "listen"
	feedSourcePoll   = "poll"
)

func newServeCommand(g *globals) *cobra.Command {
	var (
		migrate    bool
		feedSource string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if feedSource != feedSourceListen && feedSource != feedSourcePoll {
				return fmt.Errorf("--feed-source: want %s or %s, got %q", feedSourceListen, feedSourcePoll, feedSource)
			}
			cfg, log, err := g.setup(config.NeedServer)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log, migrate, feedSource)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "run migrations before serving")
	cmd.Flags().StringVar(&feedSource, "feed-source", feedSourceListen, "feed change source: listen (Postgres NOTIFY) or poll")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger, migrate bool, feedSource string) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	if migrate {
		if err := models.Migrate(db); err != nil {
			return err
		}
		log.Info("database migrated")
	}

	table, err := patentTable(cfg.PatentsFile)
	if err != nil {
		return err
	}
	m := metrics.New()

	s3c, err := baas.NewS3Client(ctx, cfg.StorageEndpoint, cfg.StorageRegion, cfg.StorageAccessKeyID, cfg.StorageSecretKey)
	if err != nil {
		return fmt.Errorf("object storage: %w", err)
	}
	evidence := baas.NewBucket(s3c, cfg.EvidenceBucket, cfg.StoragePublicBaseURL)
	avatars := baas.NewBucket(s3c, cfg.AvatarBucket, cfg.StoragePublicBaseURL)
	auth := baas.NewAuthClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.SupabaseServiceRoleKey, log.Named("gotrue"))

	progression := services.NewProgressionService(db, table, log, m)
	ranking := services.NewRankingService(db, table)
	hub := services.NewFeedHub(m)
	deps := &handlers.Deps{
		DB:            db,
		Ranks:         table,
		Accounts:      services.NewAccountService(db, auth, log),
		Profiles:      services.NewProfileService(db, table, ranking, avatars, log),
		Missions:      services.NewMissionService(db, evidence, progression, log, m),
		Ranking:       ranking,
		Feed:          services.NewFeedService(db, table),
		Hub:           hub,
		Engagement:    services.NewEngagementService(db, table),
		Collaborators: services.NewCollaboratorService(db, table),
		Provisioning:  services.NewProvisioningService(db, auth, log, m),
		Progression:   progression,
		Metrics:       m,
		Log:           log,
	}

	var feedDone <-chan struct{}
	switch feedSource {
	case feedSourcePoll:
		feedDone = workers.NewFeedPoller(db, hub, cfg.FeedPollInterval, logger.Component(log, "feed")).Start(ctx)
	default:
		feedDone = workers.NewFeedListener(cfg.DatabaseURL, hub, logger.Component(log, "feed")).Start(ctx)
	}

	sweeper := services.NewEvidenceSweeper(db, evidence, cfg.OrphanGracePeriod, logger.Component(log, "sweep"), m)
	sched, err := sweeper.StartSweepScheduler(ctx, cfg.OrphanSweepInterval)
	if err != nil {
		return fmt.Errorf("sweep scheduler: %w", err)
	}

	app := handlers.NewApp(handlers.AppConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		MetricsToken:   cfg.MetricsToken,
	}, deps)

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(cfg.ListenAddr())
	}()
	log.Info("server running",
		zap.String("addr", cfg.ListenAddr()),
		zap.Strings("origins", cfg.AllowedOrigins),
		zap.String("feed_source", feedSource),
		zap.Int("patents", len(table.Tiers())),
	)

	select {
	case <-ctx.Done():
	case err = <-listenErr:
		log.Error("server stopped", zap.Error(err))
	}

	log.Info("shutting down")
	if shutdownErr := app.ShutdownWithTimeout(10 * time.Second); shutdownErr != nil {
		log.Warn("http shutdown", zap.Error(shutdownErr))
	}
	if shutdownErr := sched.Shutdown(); shutdownErr != nil {
		log.Warn("scheduler shutdown", zap.Error(shutdownErr))
	}
	stopWorkers(ctx, feedDone)
	return err
}

// stopWorkers waits for the feed worker after ctx ends. When the server
// failed on its own, ctx is still live and the worker is left to the exit.
func stopWorkers(ctx context.Context, done <-chan struct{}) {
	if ctx.Err() == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}
