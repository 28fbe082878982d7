package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ecodigital/metrics"
	"ecodigital/middleware"
	"ecodigital/models"
	"ecodigital/ranks"
	"ecodigital/services"
)

// Deps is everything the HTTP layer talks to.
type Deps struct {
	DB            *gorm.DB
	Ranks         *ranks.Table
	Accounts      *services.AccountService
	Profiles      *services.ProfileService
	Missions      *services.MissionService
	Ranking       *services.RankingService
	Feed          *services.FeedService
	Hub           *services.FeedHub
	Engagement    *services.EngagementService
	Collaborators *services.CollaboratorService
	Provisioning  *services.ProvisioningService
	Progression   *services.ProgressionService
	Metrics       *metrics.Metrics
	Log           *zap.Logger
}

type AppConfig struct {
	AllowedOrigins []string
	MetricsToken   string
	// StreamKeepAlive is how often an idle feed stream sends a comment line.
	StreamKeepAlive time.Duration
}

// NewApp builds the fiber app with every route mounted under /api.
func NewApp(cfg AppConfig, d *Deps) *fiber.App {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if cfg.StreamKeepAlive <= 0 {
		cfg.StreamKeepAlive = 15 * time.Second
	}

	app := fiber.New(fiber.Config{
		AppName:      "ecodigital",
		BodyLimit:    bodyLimit,
		ErrorHandler: ErrorHandler,
	})

	app.Use(middleware.RequestLogger(d.Log.Named("http"), d.Metrics))

	origins := strings.Join(cfg.AllowedOrigins, ",")
	if origins == "" {
		origins = "http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "cause": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if d.Metrics != nil {
		app.Get("/metrics", middleware.ServiceToken(cfg.MetricsToken), adaptor.HTTPHandler(d.Metrics.Handler()))
	}

	api := app.Group("/api")
	requireUser := middleware.RequireUser(d.Accounts, d.Log)

	SetupAuthRoutes(api, d, requireUser)
	SetupProfileRoutes(api, d, requireUser)
	SetupMissionRoutes(api, d, requireUser)
	SetupRankingRoutes(api, d, requireUser)
	SetupFeedRoutes(api, d, cfg.StreamKeepAlive)
	SetupAdminRoutes(api, d, requireUser)
	SetupProvisioningRoutes(api, d)

	return app
}

// Slightly above the largest accepted image so the size check can report it.
const bodyLimit = 6 * 1024 * 1024

// chain prepends guards to h.
func chain(h fiber.Handler, guards ...fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(guards)+1)
	out = append(out, guards...)
	return append(out, h)
}

func caller(c *fiber.Ctx) *models.Profile { return middleware.Profile(c) }

// companyID is the caller's company; RequireCompany guarantees it is set.
func companyID(c *fiber.Ctx) string { return *caller(c).CompanyID }
