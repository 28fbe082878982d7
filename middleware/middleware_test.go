package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ecodigital/apperr"
	"ecodigital/metrics"
	"ecodigital/models"
)

type stubAuth map[string]*models.Profile

func (s stubAuth) Authenticate(_ context.Context, token string) (*models.Profile, error) {
	if token == "" {
		return nil, apperr.ErrMissingToken
	}
	if p, ok := s[token]; ok {
		return p, nil
	}
	if token == "orphan" {
		return nil, apperr.ErrProfileMissing
	}
	return nil, apperr.ErrInvalidSession
}

func call(t *testing.T, app *fiber.App, path, auth string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestRequireUser(t *testing.T) {
	cid := "c1"
	auth := stubAuth{
		"emp":   {ID: "u1", Role: models.RoleEmployee, CompanyID: &cid},
		"sales": {ID: "u2", Role: models.RoleSales},
	}
	app := fiber.New()
	app.Get("/me", RequireUser(auth, zap.NewNop()), func(c *fiber.Ctx) error {
		return c.SendString(Profile(c).ID + ":" + AccessToken(c) + ":" + c.Locals(UserIDKey).(string))
	})
	app.Get("/admin", RequireUser(auth, zap.NewNop()), RequireRole(models.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/company", RequireUser(auth, zap.NewNop()), RequireCompany(), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/sales", RequireUser(auth, zap.NewNop(), WithFailure(http.StatusBadRequest, "Falha na autenticação.")), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/stream", RequireStreamUser(auth, zap.NewNop()), func(c *fiber.Ctx) error {
		return c.SendString(Profile(c).ID)
	})

	status, body := call(t, app, "/me", "Bearer emp")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "u1:emp:u1", body)

	status, _ = call(t, app, "/me", "bearer  emp ")
	assert.Equal(t, http.StatusOK, status)

	status, body = call(t, app, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, body, apperr.ErrMissingToken.Msg)

	status, _ = call(t, app, "/me", "Basic emp")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, app, "/me", "Bearer orphan")
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, app, "/admin", "Bearer emp")
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, app, "/company", "Bearer sales")
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = call(t, app, "/company", "Bearer emp")
	assert.Equal(t, http.StatusOK, status)

	status, body = call(t, app, "/sales", "Bearer expired")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"Falha na autenticação."}`, body)

	status, body = call(t, app, "/stream?token=emp", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "u1", body)
}

func TestServiceTokenAndRequestLogger(t *testing.T) {
	m := metrics.New()
	app := fiber.New()
	app.Use(RequestLogger(zap.NewNop(), m))
	app.Get("/open", ServiceToken(""), func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/closed", ServiceToken("s3cret"), func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/boom", func(c *fiber.Ctx) error { return fiber.NewError(http.StatusTeapot, "nope") })

	status, _ := call(t, app, "/open", "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = call(t, app, "/closed", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = call(t, app, "/closed", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = call(t, app, "/closed", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, status)
	status, _ = call(t, app, "/boom", "")
	assert.Equal(t, http.StatusTeapot, status)

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	var observed uint64
	for _, f := range families {
		if f.GetName() == "ecodigital_http_request_duration_seconds" {
			for _, metric := range f.GetMetric() {
				observed += metric.GetHistogram().GetSampleCount()
			}
		}
	}
	assert.Equal(t, uint64(5), observed)
}
