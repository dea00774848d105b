package reconcile

import (
	"context"
	"testing"
	"time"

	"stockdesk-backend/internal/auth"
	"stockdesk-backend/internal/clock"
	"stockdesk-backend/internal/guard"
	"stockdesk-backend/internal/ledger"
	"stockdesk-backend/internal/locks"
	"stockdesk-backend/internal/models"
	"stockdesk-backend/internal/pkg/constants"
	"stockdesk-backend/internal/requests"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	agentA     = auth.Actor{ID: "agent-a", Email: "ana@shop.com", Name: "Ana", Role: constants.Agent}
	supervisor = auth.Actor{ID: "sup-1", Email: "sara@shop.com", Name: "Sara", Role: constants.Supervisor}
	customer   = requests.CustomerInfo{Name: "Ana", TaxID: "1-2345", OrderRef: "KO-1"}
)

type testEnv struct {
	db    *gorm.DB
	svc   *Service
	reqs  *requests.Service
	locks *locks.Service
	guard *guard.Local
}

func setupReconcileTest(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Unit{}, &models.SaleRequest{}, &models.SaleRecord{}))
	clk := clock.NewFixed(time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC))
	led := &ledger.Service{DB: db, Clock: clk}
	g := guard.NewLocal()
	reqs := &requests.Service{DB: db, Ledger: led, Guard: g, Clock: clk}
	return &testEnv{
		db:    db,
		svc:   &Service{Requests: reqs, Ledger: led, Guard: g},
		reqs:  reqs,
		locks: &locks.Service{Ledger: led},
		guard: g,
	}
}

// submitted returns a Pending request over n freshly locked units.
func (e *testEnv) submitted(t *testing.T, idents ...string) (*models.SaleRequest, []uuid.UUID) {
	ctx := context.Background()
	ids := make([]uuid.UUID, 0, len(idents))
	for _, ident := range idents {
		u := &models.Unit{Identifier: ident, Brand: "Xiaomi", Model: "Redmi 13", Agency: "Sur", State: models.UnitAvailable}
		require.NoError(t, e.db.Create(u).Error)
		_, err := e.locks.Acquire(ctx, u.ID, agentA)
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}
	r, err := e.reqs.Submit(ctx, ids, agentA, customer)
	require.NoError(t, err)
	return r, ids
}

func (e *testEnv) forceState(t *testing.T, id uuid.UUID, state models.RequestState) {
	require.NoError(t, e.db.Model(&models.SaleRequest{}).Where("id = ?", id).Update("state", state).Error)
}

func (e *testEnv) unitState(t *testing.T, id uuid.UUID) models.UnitState {
	u, err := e.svc.Ledger.Get(context.Background(), id)
	require.NoError(t, err)
	return u.State
}

func TestRun_FinishesInterruptedApproval(t *testing.T) {
	env := setupReconcileTest(t)
	ctx := context.Background()
	r, ids := env.submitted(t, "356000000000101", "356000000000102")
	// approval flag written, unit writes lost
	env.forceState(t, r.ID, models.RequestApproved)

	rep, err := env.svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Requests)
	assert.Equal(t, 2, rep.Checked)
	require.Len(t, rep.Repairs, 2)
	for _, rp := range rep.Repairs {
		assert.Equal(t, ActionSold, rp.Action)
		assert.Equal(t, models.UnitRequested, rp.From)
	}
	for _, id := range ids {
		assert.Equal(t, models.UnitSold, env.unitState(t, id))
	}

	sales, err := env.reqs.SalesLedger(ctx, requests.SalesFilter{})
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, models.SaleFromReconciliation, sales[0].Source)
	assert.Equal(t, "KO-1", sales[0].OrderRef)

	again, err := env.svc.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Repairs)
}

func TestRun_EmitsMissingSaleRecord(t *testing.T) {
	env := setupReconcileTest(t)
	ctx := context.Background()
	r, ids := env.submitted(t, "356000000000201")
	_, err := env.reqs.Approve(ctx, r.ID, supervisor)
	require.NoError(t, err)
	require.NoError(t, env.db.Where("unit_id = ?", ids[0]).Delete(&models.SaleRecord{}).Error)

	rep, err := env.svc.Run(ctx)
	require.NoError(t, err)
	require.Len(t, rep.Repairs, 1)
	assert.Equal(t, ActionRecorded, rep.Repairs[0].Action)

	has, err := env.reqs.HasSale(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, has)

	again, err := env.svc.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Repairs)
}

func TestRun_CleanApprovalNeedsNothing(t *testing.T) {
	env := setupReconcileTest(t)
	r, _ := env.submitted(t, "356000000000301")
	_, err := env.reqs.Approve(context.Background(), r.ID, supervisor)
	require.NoError(t, err)

	rep, err := env.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Checked)
	assert.Empty(t, rep.Repairs)
}

func TestRun_ReleasesOrphansOfRejectedRequests(t *testing.T) {
	env := setupReconcileTest(t)
	ctx := context.Background()
	r, ids := env.submitted(t, "356000000000401")
	env.forceState(t, r.ID, models.RequestRejected)

	rep, err := env.svc.Run(ctx)
	require.NoError(t, err)
	require.Len(t, rep.Repairs, 1)
	assert.Equal(t, ActionReleased, rep.Repairs[0].Action)
	assert.Equal(t, models.UnitAvailable, env.unitState(t, ids[0]))

	again, err := env.svc.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Repairs)
}

func TestRun_LeavesPendingRequestsAlone(t *testing.T) {
	env := setupReconcileTest(t)
	_, ids := env.submitted(t, "356000000000501")

	rep, err := env.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Repairs)
	assert.Equal(t, models.UnitRequested, env.unitState(t, ids[0]))
}

func TestRun_SkipsRequestUnderApproval(t *testing.T) {
	env := setupReconcileTest(t)
	ctx := context.Background()
	r, ids := env.submitted(t, "356000000000601")
	env.forceState(t, r.ID, models.RequestApproved)

	release, err := env.guard.TryAcquire(ctx, requests.GuardKey(r.ID))
	require.NoError(t, err)
	rep, err := env.svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{r.ID.String()}, rep.Skipped)
	assert.Empty(t, rep.Repairs)
	assert.Equal(t, models.UnitRequested, env.unitState(t, ids[0]))
	release()

	rep, err = env.svc.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, rep.Repairs, 1)
}

func TestRunner_ZeroIntervalRunsOnce(t *testing.T) {
	env := setupReconcileTest(t)
	r, ids := env.submitted(t, "356000000000701")
	env.forceState(t, r.ID, models.RequestApproved)

	done := make(chan struct{})
	go func() {
		(&Runner{Service: env.svc}).Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not return")
	}
	assert.Equal(t, models.UnitSold, env.unitState(t, ids[0]))
}
