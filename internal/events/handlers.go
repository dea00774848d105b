package events

import (
	"time"

	"stockdesk-backend/internal/ledger"
	"stockdesk-backend/internal/middleware"
	"stockdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles event reservation handlers.
type Handlers struct {
	Service *Service
}

type eventBody struct {
	Title         string   `json:"title"`
	Date          string   `json:"date"`
	Location      string   `json:"location"`
	Description   string   `json:"description"`
	InvitedAgents []string `json:"invited_agents"`
}

// input accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
func (b eventBody) input() (EventInput, bool) {
	in := EventInput{Title: b.Title, Location: b.Location, Description: b.Description, InvitedAgents: b.InvitedAgents}
	if b.Date == "" {
		return in, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if d, err := time.Parse(layout, b.Date); err == nil {
			in.Date = d
			return in, true
		}
	}
	return in, false
}

// Create POST /api/v1/events
func (h *Handlers) Create(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	var body eventBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	in, ok := body.input()
	if !ok {
		return response.Error(c, "date must be RFC 3339 or YYYY-MM-DD", fiber.StatusBadRequest, nil)
	}
	ev, err := h.Service.Create(c.UserContext(), *actor, in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Event created", ev, nil)
}

// Update PUT /api/v1/events/:id
func (h *Handlers) Update(c *fiber.Ctx) error {
	id, ok := ledger.ParseID(c, "id", "event")
	if !ok {
		return nil
	}
	var body eventBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	in, ok := body.input()
	if !ok {
		return response.Error(c, "date must be RFC 3339 or YYYY-MM-DD", fiber.StatusBadRequest, nil)
	}
	ev, err := h.Service.Update(c.UserContext(), id, in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Event updated", ev, nil)
}

// List GET /api/v1/events
func (h *Handlers) List(c *fiber.Ctx) error {
	out, err := h.Service.List(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Events fetched successfully", out, map[string]interface{}{"count": len(out)})
}

// Mine GET /api/v1/events/mine
func (h *Handlers) Mine(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	out, err := h.Service.ForAgent(c.UserContext(), *actor)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Events fetched successfully", out, map[string]interface{}{"count": len(out)})
}

// Get GET /api/v1/events/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, ok := ledger.ParseID(c, "id", "event")
	if !ok {
		return nil
	}
	ev, err := h.Service.Get(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Event fetched successfully", ev, nil)
}

type reserveRequest struct {
	UnitIDs []string `json:"unit_ids"`
}

// Reserve POST /api/v1/events/:id/reserve
func (h *Handlers) Reserve(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, ok := ledger.ParseID(c, "id", "event")
	if !ok {
		return nil
	}
	var req reserveRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	ids := make([]uuid.UUID, 0, len(req.UnitIDs))
	for _, raw := range req.UnitIDs {
		uid, err := uuid.Parse(raw)
		if err != nil {
			return response.Error(c, "Invalid unit ID format (must be a valid UUID)", fiber.StatusBadRequest, nil)
		}
		ids = append(ids, uid)
	}
	res, err := h.Service.ReserveBatch(c.UserContext(), *actor, id, ids)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Units reserved", res, nil)
}

// Release DELETE /api/v1/events/:id/units/:unitId
func (h *Handlers) Release(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, ok := ledger.ParseID(c, "id", "event")
	if !ok {
		return nil
	}
	unitID, ok := ledger.ParseID(c, "unitId", "unit")
	if !ok {
		return nil
	}
	u, err := h.Service.Release(c.UserContext(), *actor, id, unitID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Unit released from event", u, nil)
}

// VisibleUnits GET /api/v1/events/visible-units
func (h *Handlers) VisibleUnits(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	units, err := h.Service.VisibleUnits(c.UserContext(), *actor)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Reserved units fetched successfully", ledger.Views(units), map[string]interface{}{"count": len(units)})
}
