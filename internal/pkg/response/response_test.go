package response

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"stockdesk-backend/internal/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderError(t *testing.T, err error) (int, map[string]interface{}) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return FromError(c, err) })
	resp, e := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, e)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestFromError_ConflictIsWarning(t *testing.T) {
	code, out := renderError(t, apperr.Conflict("already held").WithIDs("u1"))
	assert.Equal(t, fiber.StatusConflict, code)
	assert.Equal(t, "warning", out["status"])
	detail := out["error"].(map[string]interface{})
	assert.Equal(t, "conflict", detail["reason"])
	assert.Equal(t, []interface{}{"u1"}, detail["ids"])
}

func TestFromError_ValidationIsError(t *testing.T) {
	code, out := renderError(t, apperr.Validation("order ref is required"))
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "error", out["status"])
}

func TestFromError_AlreadyTerminal(t *testing.T) {
	code, out := renderError(t, apperr.AlreadyTerminal("request already approved"))
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "warning", out["status"])
}

func TestFromError_InternalHidesMessage(t *testing.T) {
	code, out := renderError(t, errors.New("pq: connection refused"))
	assert.Equal(t, fiber.StatusInternalServerError, code)
	assert.Equal(t, "Internal Server Error", out["error"].(map[string]interface{})["message"])
}
