package handlers

import (
	"github.com/gofiber/fiber/v2"

	"ecodigital/apperr"
	"ecodigital/middleware"
	"ecodigital/models"
	"ecodigital/services"
)

// SetupProvisioningRoutes mounts the sales-only account creation. Unlike the
// rest of the API, every failure here is a 400 with {"error": msg}.
func SetupProvisioningRoutes(api fiber.Router, d *Deps) {
	requireUser := middleware.RequireUser(d.Accounts, d.Log,
		middleware.WithFailure(fiber.StatusBadRequest, "Falha na autenticação."))

	api.Post("/admin/create-account", requireUser, func(c *fiber.Ctx) error {
		if caller(c).Role != models.RoleSales {
			return badRequest(c, services.ErrSalesOnly)
		}
		var in services.CreateAccountInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, services.ErrInvalidForm)
		}
		if _, err := d.Provisioning.CreateAccount(c.UserContext(), caller(c), in); err != nil {
			return badRequest(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Conta provisionada com sucesso!"})
	})
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": apperr.Message(err)})
}
