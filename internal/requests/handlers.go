package requests

import (
	"time"

	"stockdesk-backend/internal/ledger"
	"stockdesk-backend/internal/middleware"
	"stockdesk-backend/internal/models"
	"stockdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles request engine handlers.
type Handlers struct {
	Service *Service
}

type submitRequest struct {
	UnitIDs  []string     `json:"unit_ids"`
	Customer CustomerInfo `json:"customer"`
}

// Submit POST /api/v1/requests
func (h *Handlers) Submit(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	ids := make([]uuid.UUID, 0, len(req.UnitIDs))
	for _, raw := range req.UnitIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return response.Error(c, "Invalid unit ID format (must be a valid UUID)", fiber.StatusBadRequest, nil)
		}
		ids = append(ids, id)
	}
	created, err := h.Service.Submit(c.UserContext(), ids, *actor, req.Customer)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Sale request submitted", created, nil)
}

// List GET /api/v1/requests
func (h *Handlers) List(c *fiber.Ctx) error {
	f := RequestFilter{
		State:       models.RequestState(c.Query("state")),
		RequestedBy: c.Query("requested_by"),
		OrderRef:    c.Query("order_ref"),
	}
	out, err := h.Service.List(c.UserContext(), f)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Requests fetched successfully", out, map[string]interface{}{"count": len(out)})
}

// Mine GET /api/v1/requests/mine
func (h *Handlers) Mine(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	out, err := h.Service.MyRequests(c.UserContext(), *actor)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Requests fetched successfully", out, map[string]interface{}{"count": len(out)})
}

// Get GET /api/v1/requests/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, ok := ledger.ParseID(c, "id", "request")
	if !ok {
		return nil
	}
	r, err := h.Service.Get(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Request fetched successfully", r, nil)
}

// Approve POST /api/v1/requests/:id/approve
func (h *Handlers) Approve(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, ok := ledger.ParseID(c, "id", "request")
	if !ok {
		return nil
	}
	out, err := h.Service.Approve(c.UserContext(), id, *actor)
	if err != nil {
		return response.FromError(c, err)
	}
	msg := "Request approved"
	if len(out.Failed) > 0 {
		msg = "Request approved with unit failures"
	}
	return response.Success(c, msg, out, nil)
}

type rejectRequest struct {
	Note string `json:"note"`
}

// Reject POST /api/v1/requests/:id/reject
func (h *Handlers) Reject(c *fiber.Ctx) error {
	actor, err := middleware.GetActor(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, ok := ledger.ParseID(c, "id", "request")
	if !ok {
		return nil
	}
	var body rejectRequest
	_ = c.BodyParser(&body)
	out, err := h.Service.Reject(c.UserContext(), id, *actor, body.Note)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Request rejected", out, nil)
}

// Detail GET /api/v1/requests/:id/detail
func (h *Handlers) Detail(c *fiber.Ctx) error {
	id, ok := ledger.ParseID(c, "id", "request")
	if !ok {
		return nil
	}
	d, err := h.Service.ApprovedDetail(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Request detail fetched successfully", d, nil)
}

// Sales GET /api/v1/sales?agent_id=&order_ref=&from=2026-01-01&to=2026-02-01
func (h *Handlers) Sales(c *fiber.Ctx) error {
	f := SalesFilter{AgentID: c.Query("agent_id"), OrderRef: c.Query("order_ref")}
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return response.Error(c, "Invalid "+key+" date (expected YYYY-MM-DD)", fiber.StatusBadRequest, nil)
		}
		*dst = &t
	}
	out, err := h.Service.SalesLedger(c.UserContext(), f)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Sales fetched successfully", out, map[string]interface{}{"count": len(out)})
}

// Purge POST /api/v1/requests/purge
func (h *Handlers) Purge(c *fiber.Ctx) error {
	n, err := h.Service.Purge(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Requests purged", map[string]int{"deleted": n}, nil)
}
