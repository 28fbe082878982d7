package handlers

import (
	"github.com/gofiber/fiber/v2"

	"ecodigital/middleware"
)

func SetupRankingRoutes(api fiber.Router, d *Deps, requireUser fiber.Handler) {
	ranking := api.Group("/ranking", requireUser, middleware.RequireCompany())

	// GET /api/ranking?limit=10
	ranking.Get("/", func(c *fiber.Ctx) error {
		top, err := d.Ranking.Top(c.UserContext(), companyID(c), c.QueryInt("limit", 10))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"ranking": top})
	})

	ranking.Get("/me", func(c *fiber.Ctx) error {
		pos, err := d.Ranking.PositionOf(c.UserContext(), caller(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(pos)
	})
}
