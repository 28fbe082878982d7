package handlers

import (
	"github.com/gofiber/fiber/v2"

	"ecodigital/middleware"
	"ecodigital/models"
	"ecodigital/services"
)

// SetupAdminRoutes mounts the company dashboard. Every route needs an admin
// linked to a company; the guards are attached per route because
// /api/admin/create-account shares the prefix with different rules.
func SetupAdminRoutes(api fiber.Router, d *Deps, requireUser fiber.Handler) {
	admin := api.Group("/admin")
	guards := []fiber.Handler{requireUser, middleware.RequireRole(models.RoleAdmin), middleware.RequireCompany()}

	admin.Get("/kpis", chain(func(c *fiber.Ctx) error {
		k, err := d.Engagement.KPIs(c.UserContext(), companyID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(k)
	}, guards...)...)

	admin.Get("/engagement/ranking", chain(func(c *fiber.Ctx) error {
		rows, err := d.Engagement.Ranking(c.UserContext(), companyID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"ranking": rows})
	}, guards...)...)

	admin.Get("/engagement/weekly", chain(func(c *fiber.Ctx) error {
		points, err := d.Engagement.Weekly(c.UserContext(), companyID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"weeks": points})
	}, guards...)...)

	// GET /api/admin/collaborators?q=&page=
	admin.Get("/collaborators", chain(func(c *fiber.Ctx) error {
		page, err := d.Collaborators.List(c.UserContext(), caller(c), c.Query("q"), c.QueryInt("page", 1))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(page)
	}, guards...)...)

	admin.Post("/collaborators", chain(func(c *fiber.Ctx) error {
		var in services.CollaboratorInput
		if err := c.BodyParser(&in); err != nil {
			return respondError(c, errBadBody)
		}
		p, err := d.Provisioning.AddCollaborator(c.UserContext(), caller(c), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	}, guards...)...)

	admin.Delete("/collaborators/:id", chain(func(c *fiber.Ctx) error {
		if err := d.Provisioning.RemoveCollaborator(c.UserContext(), caller(c), c.Params("id")); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}, guards...)...)

	SetupProgressionRoutes(admin, d, guards)
}
