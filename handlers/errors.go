package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"ecodigital/apperr"
	"ecodigital/utils"
)

var errBadBody = apperr.Invalid("Corpo da requisição inválido.")

// respondError writes err as {"error": msg}. Validation failures add the
// per-field list and backend failures add the underlying cause.
func respondError(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	body := fiber.Map{"error": apperr.Message(err)}

	var verr *utils.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}
	if kind == apperr.KindBackend || kind == apperr.KindUpload {
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Err != nil {
			body["cause"] = ae.Err.Error()
		}
	}
	return c.Status(kind.Status()).JSON(body)
}

// ErrorHandler is the app-wide fallback for errors returned by handlers.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return respondError(c, err)
}

// imageError classifies a multipart image read failure.
func imageError(err error) error {
	switch {
	case errors.Is(err, utils.ErrFileTooLarge):
		return apperr.Wrap(apperr.KindInvalid, "A imagem excede o tamanho máximo permitido.", err)
	case errors.Is(err, utils.ErrUnsupportedImage):
		return apperr.Wrap(apperr.KindInvalid, "Formato de imagem não suportado.", err)
	}
	return apperr.Upload("Não foi possível ler a imagem enviada.", err)
}
