package events

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"stockdesk-backend/internal/auth"
	"stockdesk-backend/internal/clock"
	"stockdesk-backend/internal/guard"
	"stockdesk-backend/internal/ledger"
	"stockdesk-backend/internal/models"
	"stockdesk-backend/internal/pkg/apperr"
	"stockdesk-backend/internal/pkg/constants"
	"stockdesk-backend/internal/requests"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	agentA     = auth.Actor{ID: "agent-a", Email: "ana@shop.com", Name: "Ana", Role: constants.Agent}
	agentB     = auth.Actor{ID: "agent-b", Email: "beto@shop.com", Name: "Beto", Role: constants.Agent}
	supervisor = auth.Actor{ID: "sup-1", Email: "sara@shop.com", Name: "Sara", Role: constants.Supervisor}
	eventDay   = time.Date(2026, 4, 18, 0, 0, 0, 0, time.UTC)
)

func setupEventsTest(t *testing.T) *Service {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Unit{}, &models.MarketingEvent{}, &models.SaleRequest{}, &models.SaleRecord{}))
	clk := clock.NewFixed(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	return &Service{DB: db, Ledger: &ledger.Service{DB: db, Clock: clk}, Clock: clk}
}

func seedUnit(t *testing.T, svc *Service, ident string) *models.Unit {
	u := &models.Unit{Identifier: ident, Brand: "Motorola", Model: "G24", Agency: "Norte", State: models.UnitAvailable}
	require.NoError(t, svc.DB.Create(u).Error)
	return u
}

func seedEvent(t *testing.T, svc *Service, title string, invited ...string) *models.MarketingEvent {
	ev, err := svc.Create(context.Background(), supervisor, EventInput{Title: title, Date: eventDay, InvitedAgents: invited})
	require.NoError(t, err)
	return ev
}

func TestCreate_Validation(t *testing.T) {
	svc := setupEventsTest(t)
	_, err := svc.Create(context.Background(), supervisor, EventInput{Title: "  "})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreate_NormalizesInvites(t *testing.T) {
	svc := setupEventsTest(t)
	ev := seedEvent(t, svc, "Feria", " ana@shop.com", "ANA@shop.com", "", "agent-b")
	assert.Equal(t, []string{"ana@shop.com", "agent-b"}, []string(ev.InvitedAgents))
	assert.True(t, ev.Invites(agentA.ID, agentA.Email))
}

func TestCreate_RejectsMalformedInvite(t *testing.T) {
	svc := setupEventsTest(t)
	_, err := svc.Create(context.Background(), supervisor, EventInput{Title: "Feria", Date: eventDay, InvitedAgents: []string{"ana@shop"}})
	assert.ErrorIs(t, err, ErrBadInvite)
}

func TestReserveBatch_AppendsAndSkips(t *testing.T) {
	svc := setupEventsTest(t)
	ctx := context.Background()
	ev := seedEvent(t, svc, "Feria", agentA.Email)
	u1, u2 := seedUnit(t, svc, "U1"), seedUnit(t, svc, "U2")

	res, err := svc.ReserveBatch(ctx, supervisor, ev.ID, []uuid.UUID{u1.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{u1.ID.String()}, res.Reserved)

	res, err = svc.ReserveBatch(ctx, supervisor, ev.ID, []uuid.UUID{u1.ID, u2.ID, u2.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{u2.ID.String()}, res.Reserved)
	assert.Equal(t, []string{u1.ID.String()}, res.Skipped)

	got, err := svc.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{u1.ID.String(), u2.ID.String()}, []string(got.AssignedUnitIDs))

	u, err := svc.Ledger.Get(ctx, u2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UnitReserved, u.State)
	require.NotNil(t, u.AssignedEvent)
	assert.Equal(t, ev.ID, *u.AssignedEvent)
}

func TestReserveBatch_CrossEventIsAllOrNothing(t *testing.T) {
	svc := setupEventsTest(t)
	ctx := context.Background()
	e1, e2 := seedEvent(t, svc, "Feria"), seedEvent(t, svc, "Expo")
	u1, u3 := seedUnit(t, svc, "U1"), seedUnit(t, svc, "U3")
	_, err := svc.ReserveBatch(ctx, supervisor, e1.ID, []uuid.UUID{u1.ID})
	require.NoError(t, err)

	_, err = svc.ReserveBatch(ctx, supervisor, e2.ID, []uuid.UUID{u3.ID, u1.ID})
	require.ErrorIs(t, err, ErrCrossEvent)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, []string{u1.ID.String()}, ae.IDs)

	u, err := svc.Ledger.Get(ctx, u3.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UnitAvailable, u.State)
	got, err := svc.Get(ctx, e2.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AssignedUnitIDs)
}

func TestReserveBatch_UnavailableUnit(t *testing.T) {
	svc := setupEventsTest(t)
	ctx := context.Background()
	ev := seedEvent(t, svc, "Feria")
	u1, u2 := seedUnit(t, svc, "U1"), seedUnit(t, svc, "U2")
	_, err := svc.Ledger.Transition(ctx, u2.ID, ledger.Expect{States: []models.UnitState{models.UnitAvailable}}, ledger.LockedBy(agentB, svc.now()))
	require.NoError(t, err)

	_, err = svc.ReserveBatch(ctx, supervisor, ev.ID, []uuid.UUID{u1.ID, u2.ID})
	assert.ErrorIs(t, err, ErrUnitsUnavailable)
	u, err := svc.Ledger.Get(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UnitAvailable, u.State)

	_, err = svc.ReserveBatch(ctx, supervisor, ev.ID, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.ReserveBatch(ctx, supervisor, ev.ID, nil)
	assert.ErrorIs(t, err, ErrNoUnits)
}

func TestRelease(t *testing.T) {
	svc := setupEventsTest(t)
	ctx := context.Background()
	ev := seedEvent(t, svc, "Feria", agentA.Email)
	u1 := seedUnit(t, svc, "U1")
	_, err := svc.ReserveBatch(ctx, supervisor, ev.ID, []uuid.UUID{u1.ID})
	require.NoError(t, err)

	_, err = svc.Release(ctx, agentB, ev.ID, u1.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	u, err := svc.Release(ctx, agentA, ev.ID, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UnitAvailable, u.State)
	assert.Nil(t, u.AssignedEvent)

	got, err := svc.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AssignedUnitIDs)

	_, err = svc.Release(ctx, agentA, ev.ID, u1.ID)
	assert.ErrorIs(t, err, ErrNotInEvent)
}

func TestRelease_SoldDropsStaleEntry(t *testing.T) {
	svc := setupEventsTest(t)
	ctx := context.Background()
	ev := seedEvent(t, svc, "Feria")
	u1 := seedUnit(t, svc, "U1")
	_, err := svc.ReserveBatch(ctx, supervisor, ev.ID, []uuid.UUID{u1.ID})
	require.NoError(t, err)
	_, err = svc.Ledger.Transition(ctx, u1.ID, ledger.Expect{States: ledger.NotSold, Force: true}, ledger.SoldOut(uuid.New()))
	require.NoError(t, err)

	_, err = svc.Release(ctx, supervisor, ev.ID, u1.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyTerminal)
	got, err := svc.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AssignedUnitIDs)
}

func TestReservationFlowsThroughRequests(t *testing.T) {
	svc := setupEventsTest(t)
	ctx := context.Background()
	ev := seedEvent(t, svc, "Feria", agentA.ID)
	u1 := seedUnit(t, svc, "U1")
	_, err := svc.ReserveBatch(ctx, supervisor, ev.ID, []uuid.UUID{u1.ID})
	require.NoError(t, err)

	reqs := &requests.Service{DB: svc.DB, Ledger: svc.Ledger, Guard: guard.NewLocal(), Events: svc, Clock: svc.Clock}
	info := requests.CustomerInfo{Name: "Ana", TaxID: "1-2345", OrderRef: "KO-7"}

	_, err = reqs.Submit(ctx, []uuid.UUID{u1.ID}, agentB, info)
	assert.ErrorIs(t, err, requests.ErrUnitsNotHeld)

	r, err := reqs.Submit(ctx, []uuid.UUID{u1.ID}, agentA, info)
	require.NoError(t, err)

	_, err = svc.Release(ctx, agentA, ev.ID, u1.ID)
	assert.ErrorIs(t, err, ErrUnitInRequest)

	_, err = reqs.Reject(ctx, r.ID, supervisor, "no stock")
	require.NoError(t, err)
	u, err := svc.Ledger.Get(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UnitAvailable, u.State)
	got, err := svc.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AssignedUnitIDs)
}

func TestVisibleUnitsAndForAgent(t *testing.T) {
	svc := setupEventsTest(t)
	ctx := context.Background()
	e1 := seedEvent(t, svc, "Feria", "ANA@shop.com")
	e2 := seedEvent(t, svc, "Expo", agentB.ID)
	seedEvent(t, svc, "Vacía", agentA.ID)
	u1, u2 := seedUnit(t, svc, "U1"), seedUnit(t, svc, "U2")
	_, err := svc.ReserveBatch(ctx, supervisor, e1.ID, []uuid.UUID{u1.ID})
	require.NoError(t, err)
	_, err = svc.ReserveBatch(ctx, supervisor, e2.ID, []uuid.UUID{u2.ID})
	require.NoError(t, err)

	units, err := svc.VisibleUnits(ctx, agentA)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, u1.ID, units[0].ID)

	units, err = svc.VisibleUnits(ctx, supervisor)
	require.NoError(t, err)
	assert.Len(t, units, 2)

	mine, err := svc.ForAgent(ctx, agentA)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, e1.ID, mine[0].ID)
}

func TestHandlers_CreateAndReserve(t *testing.T) {
	svc := setupEventsTest(t)
	h := &Handlers{Service: svc}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", auth.SessionMap(supervisor))
		return c.Next()
	})
	app.Post("/api/v1/events", h.Create)
	app.Post("/api/v1/events/:id/reserve", h.Reserve)

	send := func(path string, body interface{}) (int, map[string]interface{}) {
		b, _ := json.Marshal(body)
		req := httptest.NewRequest("POST", path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		var out map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	code, _ := send("/api/v1/events", map[string]interface{}{"title": "Feria", "date": "18/04/2026"})
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, out := send("/api/v1/events", map[string]interface{}{"title": "Feria", "date": "2026-04-18", "invited_agents": []string{agentA.Email}})
	require.Equal(t, fiber.StatusCreated, code)
	evID := out["data"].(map[string]interface{})["id"].(string)

	u := seedUnit(t, svc, "U1")
	code, _ = send("/api/v1/events/"+evID+"/reserve", map[string]interface{}{"unit_ids": []string{u.ID.String()}})
	assert.Equal(t, fiber.StatusOK, code)
	code, _ = send("/api/v1/events/"+evID+"/reserve", map[string]interface{}{"unit_ids": []string{"nope"}})
	assert.Equal(t, fiber.StatusBadRequest, code)
}
