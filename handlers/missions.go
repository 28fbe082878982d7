package handlers

import (
	"github.com/gofiber/fiber/v2"

	"ecodigital/apperr"
	"ecodigital/utils"
)

func SetupMissionRoutes(api fiber.Router, d *Deps, requireUser fiber.Handler) {
	missions := api.Group("/missions", requireUser)

	// GET /api/missions?status=new|in_progress|completed
	missions.Get("/", func(c *fiber.Ctx) error {
		list, err := d.Missions.List(c.UserContext(), caller(c).ID, c.Query("status"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"missions": list})
	})

	missions.Get("/:id", func(c *fiber.Ctx) error {
		m, err := d.Missions.Get(c.UserContext(), caller(c).ID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(m)
	})

	missions.Post("/:id/start", func(c *fiber.Ctx) error {
		um, started, err := d.Missions.Start(c.UserContext(), caller(c).ID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		status := fiber.StatusOK
		if started {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(fiber.Map{"user_mission": um, "started": started})
	})

	// multipart field "evidence"
	missions.Post("/:id/complete", func(c *fiber.Ctx) error {
		fh, err := c.FormFile("evidence")
		if err != nil {
			return respondError(c, apperr.Invalid("Por favor, selecione uma imagem como prova antes de finalizar."))
		}
		img, err := utils.ReadImage(fh, utils.MaxEvidenceBytes)
		if err != nil {
			return respondError(c, imageError(err))
		}

		award, err := d.Missions.Complete(c.UserContext(), caller(c).ID, c.Params("id"), img)
		if err != nil {
			return respondError(c, err)
		}
		body := fiber.Map{
			"message":   "Missão concluída com sucesso!",
			"xp_earned": award.XP,
			"xp_points": award.Profile.XPPoints,
			"patent":    award.After,
			"rank_up":   award.RankedUp(),
		}
		return c.JSON(body)
	})
}
