package ledger

import (
	"stockdesk-backend/internal/middleware"
	"stockdesk-backend/internal/models"
	"stockdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles unit ledger handlers.
type Handlers struct {
	Service *Service
}

// ParseID reads a uuid route param, writing a 400 on failure.
func ParseID(c *fiber.Ctx, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		_ = response.Error(c, "Invalid "+label+" ID format (must be a valid UUID)", fiber.StatusBadRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}

// ListUnits GET /api/v1/units
func (h *Handlers) ListUnits(c *fiber.Ctx) error {
	f := Filter{
		Identifier: c.Query("q"),
		Brand:      c.Query("brand"),
		Model:      c.Query("model"),
		Agency:     c.Query("agency"),
		State:      models.UnitState(c.Query("state")),
		Category:   Category(c.Query("category")),
		HeldBy:     c.Query("held_by"),
	}
	if f.State != "" && !f.State.Valid() {
		return response.Error(c, "Invalid state filter", fiber.StatusBadRequest, nil)
	}
	if ev := c.Query("event"); ev != "" {
		id, err := uuid.Parse(ev)
		if err != nil {
			return response.Error(c, "Invalid event ID format (must be a valid UUID)", fiber.StatusBadRequest, nil)
		}
		f.Event = &id
	}
	units, err := h.Service.List(c.UserContext(), f)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Units fetched successfully", Views(units), map[string]interface{}{"count": len(units)})
}

// GetUnit GET /api/v1/units/:id
func (h *Handlers) GetUnit(c *fiber.Ctx) error {
	id, ok := ParseID(c, "id", "unit")
	if !ok {
		return nil
	}
	u, err := h.Service.Get(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Unit fetched successfully", View{Unit: *u, Category: Categorize(u)}, nil)
}

// Summary GET /api/v1/units/summary
func (h *Handlers) Summary(c *fiber.Ctx) error {
	counts, err := h.Service.CountByState(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Unit summary fetched successfully", counts, nil)
}

type importRequest struct {
	Rows []ImportRow `json:"rows"`
}

// Import POST /api/v1/units/import
func (h *Handlers) Import(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req importRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	res, err := h.Service.Import(c.UserContext(), *actor, req.Rows)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Inventory imported", res, nil)
}

// DeleteByIdentifier DELETE /api/v1/units/by-identifier/:identifier
func (h *Handlers) DeleteByIdentifier(c *fiber.Ctx) error {
	n, err := h.Service.DeleteByIdentifier(c.UserContext(), c.Params("identifier"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Units deleted", map[string]int{"deleted": n}, nil)
}

// Purge POST /api/v1/units/purge
func (h *Handlers) Purge(c *fiber.Ctx) error {
	n, err := h.Service.Purge(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Unit ledger purged", map[string]int{"deleted": n}, nil)
}
