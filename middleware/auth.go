package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"ecodigital/apperr"
	"ecodigital/models"
)

// Locals keys set by the auth middlewares.
const (
	UserIDKey      = "user_id"
	ProfileKey     = "profile"
	AccessTokenKey = "access_token"
)

// Authenticator resolves a bearer token to the caller's profile.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.Profile, error)
}

type authConfig struct {
	status  int
	message string
}

type Option func(*authConfig)

// WithFailure replaces the status and message sent when authentication fails.
func WithFailure(status int, message string) Option {
	return func(c *authConfig) {
		c.status = status
		c.message = message
	}
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(c *fiber.Ctx) string {
	h := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireUser validates the bearer token and attaches the caller's profile.
func RequireUser(auth Authenticator, log *zap.Logger, opts ...Option) fiber.Handler {
	return authenticate(auth, log, BearerToken, opts)
}

// RequireStreamUser is RequireUser for EventSource clients, which cannot set
// headers: the token may also come as the `token` query parameter.
func RequireStreamUser(auth Authenticator, log *zap.Logger) fiber.Handler {
	return authenticate(auth, log, func(c *fiber.Ctx) string {
		if t := BearerToken(c); t != "" {
			return t
		}
		return strings.TrimSpace(c.Query("token"))
	}, nil)
}

func authenticate(auth Authenticator, log *zap.Logger, token func(*fiber.Ctx) string, opts []Option) fiber.Handler {
	cfg := &authConfig{}
	for _, o := range opts {
		o(cfg)
	}
	return func(c *fiber.Ctx) error {
		tok := token(c)
		profile, err := auth.Authenticate(c.UserContext(), tok)
		if err != nil {
			log.Debug("authentication failed", zap.String("path", c.Path()), zap.Error(err))
			status, msg := apperr.KindOf(err).Status(), apperr.Message(err)
			if apperr.KindOf(err) == apperr.KindNotFound {
				// A valid identity without a profile cannot use the API.
				status = fiber.StatusForbidden
			}
			if cfg.status != 0 {
				status, msg = cfg.status, cfg.message
			}
			return c.Status(status).JSON(fiber.Map{"error": msg})
		}

		c.Locals(UserIDKey, profile.ID)
		c.Locals(ProfileKey, profile)
		c.Locals(AccessTokenKey, tok)
		return c.Next()
	}
}

// RequireRole lets only the given roles through. It must run after RequireUser.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := Profile(c)
		if p != nil {
			for _, r := range roles {
				if p.Role == r {
					return c.Next()
				}
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Acesso negado. Você não tem permissão para acessar esta página.",
		})
	}
}

// RequireCompany rejects callers that are not linked to a company.
func RequireCompany() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if p := Profile(c); p == nil || p.CompanyID == nil {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": apperr.ErrNoCompany.Msg})
		}
		return c.Next()
	}
}

// Profile returns the authenticated caller, or nil.
func Profile(c *fiber.Ctx) *models.Profile {
	p, _ := c.Locals(ProfileKey).(*models.Profile)
	return p
}

func AccessToken(c *fiber.Ctx) string {
	t, _ := c.Locals(AccessTokenKey).(string)
	return t
}
