package handler

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"order-tracker/internal/core/auth"
	"order-tracker/internal/features/realtime/hub"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type allowAllAuthorizer struct{}

func (allowAllAuthorizer) AuthorizeSubscription(context.Context, *auth.Claims, string) error {
	return nil
}

func newUpgradeApp(t *testing.T) (*fiber.App, *auth.TokenManager) {
	t.Helper()

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	h := NewWSHandler(hub.New(zap.NewNop()), allowAllAuthorizer{}, tokens, time.Minute, time.Second)

	app := fiber.New()
	app.Use("/ws", h.Upgrade)
	app.Get("/ws", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusSwitchingProtocols)
	})
	return app, tokens
}

func TestWSHandler_UpgradeRequiresWebsocket(t *testing.T) {
	app, _ := newUpgradeApp(t)

	req := httptest.NewRequest("GET", "/ws", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestWSHandler_UpgradeRejectsBadToken(t *testing.T) {
	app, _ := newUpgradeApp(t)

	req := httptest.NewRequest("GET", "/ws?token=garbage", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWSHandler_UpgradePassesValidToken(t *testing.T) {
	app, tokens := newUpgradeApp(t)

	token, err := tokens.Issue("cust-1", auth.RoleCustomer)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/ws?token="+token, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusSwitchingProtocols, resp.StatusCode)
}
