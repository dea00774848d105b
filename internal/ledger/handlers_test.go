package ledger

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"stockdesk-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLedgerApp(t *testing.T) (*fiber.App, *Service) {
	svc, _ := setupLedgerTest(t)
	h := &Handlers{Service: svc}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", auth.SessionMap(agentA))
		return c.Next()
	})
	app.Get("/api/v1/units", h.ListUnits)
	app.Get("/api/v1/units/summary", h.Summary)
	app.Get("/api/v1/units/:id", h.GetUnit)
	app.Post("/api/v1/units/import", h.Import)
	return app, svc
}

func TestGetUnit_InvalidID(t *testing.T) {
	app, _ := setupLedgerApp(t)
	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/units/not-a-uuid", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestListUnits_BadState(t *testing.T) {
	app, _ := setupLedgerApp(t)
	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/units?state=lost", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestImportThenList(t *testing.T) {
	app, _ := setupLedgerApp(t)
	body, _ := json.Marshal(map[string]interface{}{"rows": []ImportRow{
		{Agency: "Centro", Brand: "Apple", Model: "iPhone 15", IMEI: "356000000000020"},
	}})
	req := httptest.NewRequest("POST", "/api/v1/units/import", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/units?category=phone", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Data, 1)
	assert.Equal(t, "phone", out.Data[0]["category"])
	assert.Equal(t, "available", out.Data[0]["state"])
}
