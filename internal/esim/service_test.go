package esim

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stockdesk-backend/internal/auth"
	"stockdesk-backend/internal/clock"
	"stockdesk-backend/internal/models"
	"stockdesk-backend/internal/pkg/apperr"
	"stockdesk-backend/internal/pkg/constants"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	agentA     = auth.Actor{ID: "agent-a", Email: "ana@shop.com", Name: "Ana", Role: constants.Agent}
	agentB     = auth.Actor{ID: "agent-b", Email: "beto@shop.com", Name: "Beto", Role: constants.Agent}
	supervisor = auth.Actor{ID: "sup-1", Email: "sara@shop.com", Name: "Sara", Role: constants.Supervisor}
	order      = AllocationInput{OrderRef: "KO-9", CustomerName: "Carla", CustomerTaxID: "9-8765"}
)

const serialA = "89506010325111624994"

func setupEsimTest(t *testing.T) (*Service, *clock.Manual) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.EsimToken{}, &models.EsimAllocation{}, &models.EsimMovement{}))
	clk := clock.NewFixed(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return &Service{DB: db, Clock: clk}, clk
}

func TestExtract_CountsStrayCharacters(t *testing.T) {
	stray := []string{"abc", "x1", "lote", "#7", "ok!"}
	raw := "header " + serialA + "\n" + strings.Join(stray, " ")
	matches, discarded, total := Extract(raw, 20)
	assert.Equal(t, []string{serialA}, matches)
	assert.Equal(t, len("header")+len(strings.Join(stray, "")), discarded)
	assert.Equal(t, discarded+20, total)
}

func TestExtract_IgnoresLongerDigitRuns(t *testing.T) {
	matches, _, _ := Extract(serialA+"1 "+serialA, 20)
	assert.Equal(t, []string{serialA}, matches)
}

func TestLoadBatch_OneSerialFifteenStrays(t *testing.T) {
	svc, _ := setupEsimTest(t)
	stray := []string{"SIM", "lote3", "abc", "x", "chip", "ref:", "A1", "B2", "pack", "ok", "no", "ver", "z9", "tag", "end"}
	raw := strings.Join(stray[:7], " ") + " " + serialA + " " + strings.Join(stray[7:], "\t")

	res, err := svc.LoadBatch(context.Background(), supervisor, raw)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 0, res.Duplicates)
	assert.Equal(t, 0, res.RejectedRows)
	assert.Equal(t, len(strings.Join(stray, "")), res.DiscardedChars)
}

func TestLoadBatch_NoSerials(t *testing.T) {
	svc, _ := setupEsimTest(t)
	_, err := svc.LoadBatch(context.Background(), supervisor, "nothing to see 1234")
	assert.ErrorIs(t, err, ErrNoSerials)
}

func TestLoadBatch_SerialsStayUniqueAcrossReloads(t *testing.T) {
	svc, _ := setupEsimTest(t)
	ctx := context.Background()
	serialB := "89506010325111624995"

	res, err := svc.LoadBatch(ctx, supervisor, serialA+" "+serialA+" "+serialB)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.BatchDuplicates)

	res, err = svc.LoadBatch(ctx, supervisor, serialB+"\n"+serialA)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 2, res.Duplicates)

	var n int64
	require.NoError(t, svc.DB.Model(&models.EsimToken{}).Count(&n).Error)
	assert.EqualValues(t, 2, n)
}

func TestLoadBatch_OverLimit(t *testing.T) {
	svc, _ := setupEsimTest(t)
	svc.BatchLimit = 1
	_, err := svc.LoadBatch(context.Background(), supervisor, serialA+" 89506010325111624995")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	var n int64
	require.NoError(t, svc.DB.Model(&models.EsimToken{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestAllocate_EmptyPoolExhausted(t *testing.T) {
	svc, _ := setupEsimTest(t)
	ctx := context.Background()
	_, err := svc.Allocate(ctx, agentA, order)
	assert.ErrorIs(t, err, apperr.ErrExhausted)
	_, err = svc.Allocate(ctx, agentA, order)
	assert.ErrorIs(t, err, apperr.ErrExhausted)
}

func TestAllocate_OncePerOrder(t *testing.T) {
	svc, _ := setupEsimTest(t)
	ctx := context.Background()
	_, err := svc.LoadBatch(ctx, supervisor, serialA+" 89506010325111624995")
	require.NoError(t, err)

	out, err := svc.Allocate(ctx, agentA, order)
	require.NoError(t, err)
	assert.Equal(t, models.TokenIssued, out.Token.State)
	require.NotNil(t, out.Token.OrderRef)
	assert.Equal(t, "KO-9", *out.Token.OrderRef)
	assert.Equal(t, models.AllocationCompleted, out.Record.Status)

	_, err = svc.Allocate(ctx, agentB, order)
	assert.ErrorIs(t, err, ErrOrderHasEsim)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Available: 1, Issued: 1, Total: 2}, st)
}

func TestAllocate_MissingFields(t *testing.T) {
	svc, _ := setupEsimTest(t)
	_, err := svc.Allocate(context.Background(), agentA, AllocationInput{OrderRef: "KO-1"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, []string{"customer_name", "customer_tax_id"}, ae.IDs)
}

func TestReturnToPool(t *testing.T) {
	svc, _ := setupEsimTest(t)
	ctx := context.Background()
	_, err := svc.LoadBatch(ctx, supervisor, serialA)
	require.NoError(t, err)
	out, err := svc.Allocate(ctx, agentA, order)
	require.NoError(t, err)

	_, err = svc.ReturnToPool(ctx, out.Token.ID, agentB)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	back, err := svc.ReturnToPool(ctx, out.Token.ID, agentA)
	require.NoError(t, err)
	assert.Equal(t, models.TokenAvailable, back.State)
	assert.Nil(t, back.IssuedTo)
	assert.Nil(t, back.OrderRef)

	_, err = svc.ReturnToPool(ctx, out.Token.ID, agentA)
	assert.ErrorIs(t, err, apperr.ErrAlreadyTerminal)

	var rec models.EsimAllocation
	require.NoError(t, svc.DB.First(&rec, "id = ?", out.Record.ID).Error)
	assert.Equal(t, models.AllocationReturned, rec.Status)
	require.NotNil(t, rec.ReturnedBy)
	assert.Equal(t, agentA.ID, *rec.ReturnedBy)

	// The order may be served again once its token is back.
	_, err = svc.Allocate(ctx, agentA, order)
	assert.NoError(t, err)
}

func TestReturnToPool_ConcurrentReturnsOnce(t *testing.T) {
	svc, _ := setupEsimTest(t)
	ctx := context.Background()
	_, err := svc.LoadBatch(ctx, supervisor, serialA)
	require.NoError(t, err)
	out, err := svc.Allocate(ctx, agentA, order)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var returned int32
	for i := 0; i < 8; i++ {
		by := agentA
		if i%2 == 1 {
			by = supervisor
		}
		wg.Add(1)
		go func(by auth.Actor) {
			defer wg.Done()
			if _, err := svc.ReturnToPool(ctx, out.Token.ID, by); err == nil {
				atomic.AddInt32(&returned, 1)
			}
		}(by)
	}
	wg.Wait()
	assert.Equal(t, int32(1), returned)

	var moves int64
	require.NoError(t, svc.DB.Model(&models.EsimMovement{}).Where("token_id = ? AND action = ?", out.Token.ID, models.MovementReturn).Count(&moves).Error)
	assert.Equal(t, int64(1), moves)
}

func TestReturnBySerial_Supervisor(t *testing.T) {
	svc, _ := setupEsimTest(t)
	ctx := context.Background()
	_, err := svc.LoadBatch(ctx, supervisor, serialA)
	require.NoError(t, err)
	_, err = svc.Allocate(ctx, agentA, order)
	require.NoError(t, err)

	back, err := svc.ReturnBySerial(ctx, " "+serialA+" ", supervisor)
	require.NoError(t, err)
	assert.Equal(t, models.TokenAvailable, back.State)

	_, err = svc.ReturnBySerial(ctx, "00000000000000000000", supervisor)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMovementsAudited(t *testing.T) {
	svc, _ := setupEsimTest(t)
	ctx := context.Background()
	_, err := svc.LoadBatch(ctx, supervisor, serialA)
	require.NoError(t, err)
	out, err := svc.Allocate(ctx, agentA, order)
	require.NoError(t, err)
	_, err = svc.ReturnToPool(ctx, out.Token.ID, agentA)
	require.NoError(t, err)

	var actions []string
	require.NoError(t, svc.DB.Model(&models.EsimMovement{}).Order("created_at ASC").Pluck("action", &actions).Error)
	assert.ElementsMatch(t, []string{"load", "issue", "return"}, actions)
}

func TestPurgeLoad_KeepsIssued(t *testing.T) {
	svc, clk := setupEsimTest(t)
	ctx := context.Background()
	_, err := svc.LoadBatch(ctx, supervisor, serialA+" 89506010325111624995")
	require.NoError(t, err)
	_, err = svc.Allocate(ctx, agentA, order)
	require.NoError(t, err)

	clk.Advance(48 * time.Hour)
	_, err = svc.LoadBatch(ctx, supervisor, "89506010325111624996")
	require.NoError(t, err)

	n, err := svc.PurgeLoad(ctx, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Available: 1, Issued: 1, Total: 2}, st)
}

func setupEsimApp(t *testing.T, actor auth.Actor) (*fiber.App, *Service) {
	svc, _ := setupEsimTest(t)
	h := &Handlers{Service: svc}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", auth.SessionMap(actor))
		return c.Next()
	})
	app.Post("/api/v1/esims/load", h.Load)
	app.Post("/api/v1/esims/allocate", h.Allocate)
	app.Post("/api/v1/esims/purge-load", h.PurgeLoad)
	app.Get("/api/v1/esims/mine", h.Mine)
	return app, svc
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) int {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestHandlers_LoadAllocateMine(t *testing.T) {
	app, _ := setupEsimApp(t, agentA)
	assert.Equal(t, fiber.StatusCreated, postJSON(t, app, "/api/v1/esims/load", map[string]string{"text": serialA}))
	assert.Equal(t, fiber.StatusCreated, postJSON(t, app, "/api/v1/esims/allocate", order))
	assert.Equal(t, fiber.StatusConflict, postJSON(t, app, "/api/v1/esims/allocate", AllocationInput{OrderRef: "KO-10", CustomerName: "Luis", CustomerTaxID: "1-1"}))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/esims/mine", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Data, 1)
	assert.Equal(t, serialA, out.Data[0]["serial"])
}

func TestHandlers_PurgeBadDate(t *testing.T) {
	app, _ := setupEsimApp(t, supervisor)
	assert.Equal(t, fiber.StatusBadRequest, postJSON(t, app, "/api/v1/esims/purge-load", map[string]string{"date": "01/03/2026"}))
}
