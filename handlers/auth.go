package handlers

import (
	"github.com/gofiber/fiber/v2"

	"ecodigital/apperr"
	"ecodigital/middleware"
	"ecodigital/services"
	"ecodigital/utils"
)

func SetupAuthRoutes(api fiber.Router, d *Deps, requireUser fiber.Handler) {
	auth := api.Group("/auth")

	// POST /api/auth/login?app=dashboard
	auth.Post("/login", func(c *fiber.Ctx) error {
		var in services.LoginInput
		if err := c.BodyParser(&in); err != nil {
			return respondError(c, errBadBody)
		}
		if in.App == "" {
			in.App = c.Query("app", services.AppMobile)
		}
		if err := utils.ValidateStruct(in); err != nil {
			return respondError(c, apperr.Wrap(apperr.KindInvalid, err.Error(), err))
		}

		res, err := d.Accounts.Login(c.UserContext(), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	auth.Post("/logout", requireUser, func(c *fiber.Ctx) error {
		if err := d.Accounts.Logout(c.UserContext(), middleware.AccessToken(c)); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	// Forced password change. The session is signed out on success, so the
	// client must log in again.
	auth.Post("/password", requireUser, func(c *fiber.Ctx) error {
		var in services.ChangePasswordInput
		if err := c.BodyParser(&in); err != nil {
			return respondError(c, errBadBody)
		}
		err := d.Accounts.ChangePassword(c.UserContext(), middleware.AccessToken(c), caller(c).ID, in)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": "Senha atualizada com sucesso! Por favor, faça login novamente."})
	})
}
