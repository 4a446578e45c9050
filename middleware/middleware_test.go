package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(GatewayAuthMiddleware("gw-token", "/metrics"))
	api := app.Group("/", UserContextMiddleware())
	api.Get("/metrics", func(c *fiber.Ctx) error { return c.SendString("ok") })
	api.Get("/whoami", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": c.Locals("user_id"), "roles": c.Locals("user_roles")})
	})
	api.Get("/s/private", func(c *fiber.Ctx) error { return c.SendString("private") })
	api.Get("/s/admin/panel", RequireRole("admin"), func(c *fiber.Ctx) error { return c.SendString("admin") })
	return app
}

func TestGatewayAuth(t *testing.T) {
	app := newApp()

	cases := []struct {
		name   string
		path   string
		auth   string
		status int
	}{
		{"missing header", "/whoami", "", fiber.StatusUnauthorized},
		{"wrong token", "/whoami", "Bearer nope", fiber.StatusUnauthorized},
		{"bearer token", "/whoami", "Bearer gw-token", fiber.StatusOK},
		{"raw token", "/whoami", "gw-token", fiber.StatusOK},
		{"skipped path", "/metrics", "", fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestUserContextAndRoles(t *testing.T) {
	app := newApp()
	send := func(path, user, roles string) int {
		req := httptest.NewRequest("GET", path, nil)
		req.Header.Set("Authorization", "Bearer gw-token")
		if user != "" {
			req.Header.Set("X-User-ID", user)
		}
		if roles != "" {
			req.Header.Set("X-User-Roles", roles)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusUnauthorized, send("/s/private", "", ""))
	assert.Equal(t, fiber.StatusOK, send("/s/private", "u1", ""))
	assert.Equal(t, fiber.StatusForbidden, send("/s/admin/panel", "u1", "user"))
	assert.Equal(t, fiber.StatusOK, send("/s/admin/panel", "u1", "user, admin"))

	req := httptest.NewRequest("GET", "/whoami", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer gw-token")
	req.Header.Set("X-User-ID", "u7")
	req.Header.Set("X-User-Roles", "coach,,admin ")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":"u7","roles":["coach","admin"]}`, string(body))
}
