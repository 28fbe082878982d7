package handlers

import (
	"github.com/gofiber/fiber/v2"

	"ecodigital/apperr"
	"ecodigital/services"
	"ecodigital/utils"
)

func SetupProfileRoutes(api fiber.Router, d *Deps, requireUser fiber.Handler) {
	// The patent table is static client data.
	api.Get("/patents", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"patents": d.Ranks.Tiers()})
	})

	me := api.Group("/me", requireUser)

	me.Get("/", func(c *fiber.Ctx) error {
		sum, err := d.Profiles.Summary(c.UserContext(), caller(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(sum)
	})

	me.Patch("/", func(c *fiber.Ctx) error {
		var in services.UpdateProfileInput
		if err := c.BodyParser(&in); err != nil {
			return respondError(c, errBadBody)
		}
		p, err := d.Profiles.Update(c.UserContext(), caller(c).ID, in)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(p)
	})

	// multipart field "avatar"
	me.Post("/avatar", func(c *fiber.Ctx) error {
		fh, err := c.FormFile("avatar")
		if err != nil {
			return respondError(c, apperr.Invalid("Selecione uma imagem para fazer upload."))
		}
		img, err := utils.ReadImage(fh, utils.MaxAvatarBytes)
		if err != nil {
			return respondError(c, imageError(err))
		}
		p, err := d.Profiles.SetAvatar(c.UserContext(), caller(c).ID, img)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(p)
	})
}
