package reconcile

import (
	"stockdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// Handlers exposes on-demand reconciliation.
type Handlers struct {
	Service *Service
}

// Run POST /api/v1/reconcile
func (h *Handlers) Run(c *fiber.Ctx) error {
	rep, err := h.Service.Run(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Reconciliation complete", rep, map[string]interface{}{"repairs": len(rep.Repairs)})
}
