package locks

import (
	"stockdesk-backend/internal/ledger"
	"stockdesk-backend/internal/middleware"
	"stockdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// Handlers bundles lock handlers.
type Handlers struct {
	Service *Service
}

// Acquire POST /api/v1/units/:id/lock
func (h *Handlers) Acquire(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, ok := ledger.ParseID(c, "id", "unit")
	if !ok {
		return nil
	}
	u, err := h.Service.Acquire(c.UserContext(), id, *actor)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Unit locked", u, nil)
}

// Release DELETE /api/v1/units/:id/lock
func (h *Handlers) Release(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, ok := ledger.ParseID(c, "id", "unit")
	if !ok {
		return nil
	}
	u, err := h.Service.Release(c.UserContext(), id, *actor)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Unit released", u, nil)
}

// Mine GET /api/v1/locks/mine
func (h *Handlers) Mine(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	units, err := h.Service.HeldBy(c.UserContext(), *actor)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Locked units fetched successfully", ledger.Views(units), nil)
}
