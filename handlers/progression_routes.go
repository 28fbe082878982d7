package handlers

import (
	"github.com/gofiber/fiber/v2"

	"ecodigital/apperr"
	"ecodigital/utils"
)

type grantRequest struct {
	ProfileID string `json:"profile_id" validate:"required,uuid"`
	Amount    int64  `json:"amount" validate:"required,min=1,max=100000"`
	Reason    string `json:"reason" validate:"max=255"`
}

// SetupProgressionRoutes mounts manual XP grants on the admin group.
func SetupProgressionRoutes(admin fiber.Router, d *Deps, guards []fiber.Handler) {
	admin.Post("/xp/grant", chain(func(c *fiber.Ctx) error {
		var req grantRequest
		if err := c.BodyParser(&req); err != nil {
			return respondError(c, errBadBody)
		}
		if err := utils.ValidateStruct(req); err != nil {
			return respondError(c, apperr.Wrap(apperr.KindInvalid, err.Error(), err))
		}

		target, err := d.Profiles.Get(c.UserContext(), req.ProfileID)
		if err != nil {
			return respondError(c, err)
		}
		if !target.InCompany(companyID(c)) {
			return respondError(c, apperr.NotFound("Colaborador não encontrado."))
		}

		award, err := d.Progression.AwardXP(c.UserContext(), target.ID, req.Amount, req.Reason)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"message":    "XP concedido com sucesso.",
			"profile_id": target.ID,
			"xp":         req.Amount,
			"xp_points":  award.Profile.XPPoints,
			"patent":     award.After,
			"rank_up":    award.RankedUp(),
		})
	}, guards...)...)
}
