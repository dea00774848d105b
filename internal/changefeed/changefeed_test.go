package changefeed

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "channel closed")
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no change received")
	}
	return Change{}
}

func TestHub_FiltersByCollection(t *testing.T) {
	hub := NewHub(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	units, err := hub.Subscribe(ctx, Units)
	require.NoError(t, err)
	all, err := hub.Subscribe(ctx)
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, hub.Publish(ctx, Of(Tokens, "t1", OpUpdate, map[string]string{"state": "issued"}, at)))
	require.NoError(t, hub.Publish(ctx, Of(Units, "u1", OpUpdate, map[string]string{"state": "locked"}, at)))

	got := receive(t, units)
	assert.Equal(t, "u1", got.ID)
	assert.JSONEq(t, `{"state":"locked"}`, string(got.Fields))

	assert.Equal(t, "t1", receive(t, all).ID)
	assert.Equal(t, "u1", receive(t, all).ID)
}

func TestHub_UnsubscribesOnCancel(t *testing.T) {
	hub := NewHub(1)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := hub.Subscribe(ctx, Units)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers())

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers())
}

func TestRedis_PublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	feed := &Redis{Rdb: rdb}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := feed.Subscribe(ctx, Requests)
	require.NoError(t, err)

	require.NoError(t, feed.Publish(ctx, Of(Units, "u1", OpUpdate, nil, time.Now())))
	require.NoError(t, feed.Publish(ctx, Of(Requests, "r1", OpCreate, map[string]string{"state": "pending"}, time.Now())))

	got := receive(t, ch)
	assert.Equal(t, Requests, got.Collection)
	assert.Equal(t, "r1", got.ID)
	assert.Equal(t, OpCreate, got.Op)
}

func TestWatch_AppliesMatch(t *testing.T) {
	hub := NewHub(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs, err := Watch(ctx, hub, Units, func(c Change) bool { return c.ID == "u2" })
	require.NoError(t, err)
	items := obs.Observe()

	require.NoError(t, hub.Publish(ctx, Of(Units, "u1", OpUpdate, nil, time.Now())))
	require.NoError(t, hub.Publish(ctx, Of(Units, "u2", OpUpdate, nil, time.Now())))

	select {
	case item := <-items:
		require.NoError(t, item.E)
		assert.Equal(t, "u2", item.V.(Change).ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no item observed")
	}
}

func TestEmit_NilPublisherIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(context.Background(), nil, Of(Units, "u1", OpDelete, nil, time.Now()))
	})
}

func TestStream_UnknownCollection(t *testing.T) {
	h := &Handlers{Feed: NewHub(1)}
	app := fiber.New()
	app.Get("/api/v1/changes", h.Stream)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/changes?collection=users", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
