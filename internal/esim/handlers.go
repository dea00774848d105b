package esim

import (
	"time"

	"stockdesk-backend/internal/ledger"
	"stockdesk-backend/internal/middleware"
	"stockdesk-backend/internal/models"
	"stockdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// Handlers bundles eSIM pool handlers.
type Handlers struct {
	Service *Service
}

type loadRequest struct {
	Text string `json:"text"`
}

// Load POST /api/v1/esims/load
func (h *Handlers) Load(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req loadRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	res, err := h.Service.LoadBatch(c.UserContext(), *actor, req.Text)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "eSIM batch loaded", res, nil)
}

// Allocate POST /api/v1/esims/allocate
func (h *Handlers) Allocate(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	var in AllocationInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	out, err := h.Service.Allocate(c.UserContext(), *actor, in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "eSIM issued", out, nil)
}

// Return POST /api/v1/esims/:id/return
func (h *Handlers) Return(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, ok := ledger.ParseID(c, "id", "eSIM")
	if !ok {
		return nil
	}
	t, err := h.Service.ReturnToPool(c.UserContext(), id, *actor)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "eSIM returned to pool", t, nil)
}

type serialRequest struct {
	Serial string `json:"serial"`
}

// ReturnBySerial POST /api/v1/esims/return-by-serial
func (h *Handlers) ReturnBySerial(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req serialRequest
	if err := c.BodyParser(&req); err != nil || req.Serial == "" {
		return response.Error(c, "A serial is required", fiber.StatusBadRequest, nil)
	}
	t, err := h.Service.ReturnBySerial(c.UserContext(), req.Serial, *actor)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "eSIM returned to pool", t, nil)
}

// List GET /api/v1/esims
func (h *Handlers) List(c *fiber.Ctx) error {
	f := TokenFilter{
		State:    models.TokenState(c.Query("state")),
		IssuedTo: c.Query("issued_to"),
		OrderRef: c.Query("order_ref"),
	}
	out, err := h.Service.Tokens(c.UserContext(), f)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "eSIMs fetched successfully", out, map[string]interface{}{"count": len(out)})
}

// Mine GET /api/v1/esims/mine
func (h *Handlers) Mine(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	out, err := h.Service.MyTokens(c.UserContext(), *actor)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "eSIMs fetched successfully", out, map[string]interface{}{"count": len(out)})
}

// Stats GET /api/v1/esims/stats
func (h *Handlers) Stats(c *fiber.Ctx) error {
	st, err := h.Service.Stats(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "eSIM pool stats", st, nil)
}

type purgeRequest struct {
	Date string `json:"date"`
}

// PurgeLoad POST /api/v1/esims/purge-load
func (h *Handlers) PurgeLoad(c *fiber.Ctx) error {
	var req purgeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	day, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return response.Error(c, "date must be YYYY-MM-DD", fiber.StatusBadRequest, nil)
	}
	n, err := h.Service.PurgeLoad(c.UserContext(), day)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "eSIM load purged", map[string]int{"deleted": n}, nil)
}
