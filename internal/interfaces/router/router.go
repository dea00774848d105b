package router

import (
	"errors"
	"time"

	"stockdesk-backend/internal/changefeed"
	"stockdesk-backend/internal/clock"
	"stockdesk-backend/internal/config"
	"stockdesk-backend/internal/database"
	"stockdesk-backend/internal/esim"
	"stockdesk-backend/internal/events"
	"stockdesk-backend/internal/guard"
	"stockdesk-backend/internal/health"
	"stockdesk-backend/internal/ledger"
	"stockdesk-backend/internal/locks"
	"stockdesk-backend/internal/middleware"
	"stockdesk-backend/internal/pkg/constants"
	"stockdesk-backend/internal/reconcile"
	"stockdesk-backend/internal/requests"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// App is the HTTP app plus the services background loops need.
type App struct {
	Fiber     *fiber.App
	DB        *gorm.DB
	Rdb       *redis.Client
	Feed      changefeed.Feed
	Locks     *locks.Service
	Reconcile *reconcile.Service
}

var ErrNoDatabase = errors.New("DATABASE_URL is required")

// CreateApp wires stores, engine services and routes.
func CreateApp(cfg *config.Config) (*App, error) {
	if cfg.DatabaseURL == "" {
		return nil, ErrNoDatabase
	}
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}

	// Background callers without a request logger still log globally.
	zerolog.DefaultContextLogger = &log.Logger

	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})
	app.Use(recover.New())
	app.Use(middleware.Tracing())
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
		AllowLocal:    cfg.AllowCrossSiteDev || cfg.Env == "development",
	}))

	// Redis is optional: without it the session cookie is not read, traffic
	// stats are off and the feed and reentrancy flags stay in-process.
	var rdb *redis.Client
	var feed changefeed.Feed
	var flags guard.Guard
	if cfg.RedisURL != "" {
		sessionHandler, client, err := middleware.Session(middleware.SessionConfig{RedisURL: cfg.RedisURL})
		if err != nil {
			return nil, err
		}
		rdb = client
		app.Use(sessionHandler)
		feed = &changefeed.Redis{Rdb: rdb}
		flags = &guard.Redis{Rdb: rdb, TTL: cfg.GuardTTL}
	} else {
		feed = changefeed.NewHub(64)
		flags = guard.NewLocal()
	}
	app.Use(middleware.BearerIdentity(cfg.IdentityTokenSecret))
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.RouteLogger())

	hh := &health.Handlers{Rdb: rdb, DB: health.GormPinger{DB: db}, HealthAdminKey: cfg.HealthAdminKey}
	app.Get("/health/json", hh.JSON)
	app.Get("/health/reset", hh.Reset)

	clk := clock.NewSystem()
	led := &ledger.Service{DB: db, Feed: feed, Clock: clk}
	ls := &locks.Service{Ledger: led, TTL: cfg.LockTTL}
	evs := &events.Service{DB: db, Ledger: led, Feed: feed, Clock: clk}
	rs := &requests.Service{DB: db, Ledger: led, Guard: flags, Events: evs, Feed: feed, Clock: clk}
	es := &esim.Service{DB: db, Feed: feed, Clock: clk, BatchLimit: cfg.EsimBatchLimit, SerialLength: cfg.EsimSerialLength}
	rec := &reconcile.Service{Requests: rs, Ledger: led, Guard: flags}

	api := app.Group("/api/v1", middleware.RequireAuth())

	// Units
	uh := &ledger.Handlers{Service: led}
	api.Get("/units", uh.ListUnits)
	api.Get("/units/summary", uh.Summary)
	api.Get("/units/:id", uh.GetUnit)
	api.Post("/units/import", middleware.AuthorizePermission(constants.ImportUnits), uh.Import)
	api.Delete("/units/by-identifier/:identifier", middleware.AuthorizePermission(constants.PurgeData), uh.DeleteByIdentifier)
	api.Post("/units/purge", middleware.AuthorizePermission(constants.PurgeData), uh.Purge)

	// Locks
	lh := &locks.Handlers{Service: ls}
	api.Post("/units/:id/lock", lh.Acquire)
	api.Delete("/units/:id/lock", lh.Release)
	api.Get("/locks/mine", lh.Mine)

	// Requests
	rh := &requests.Handlers{Service: rs}
	api.Post("/requests", rh.Submit)
	api.Get("/requests", rh.List)
	api.Get("/requests/mine", rh.Mine)
	api.Post("/requests/purge", middleware.AuthorizePermission(constants.PurgeData), rh.Purge)
	api.Get("/requests/:id", rh.Get)
	api.Get("/requests/:id/detail", rh.Detail)
	api.Post("/requests/:id/approve", middleware.AuthorizePermission(constants.ResolveRequests), rh.Approve)
	api.Post("/requests/:id/reject", middleware.AuthorizePermission(constants.ResolveRequests), rh.Reject)
	api.Get("/sales", rh.Sales)

	// eSIM pool
	eh := &esim.Handlers{Service: es}
	api.Post("/esims/load", middleware.AuthorizePermission(constants.LoadEsims), eh.Load)
	api.Post("/esims/allocate", eh.Allocate)
	api.Post("/esims/return-by-serial", eh.ReturnBySerial)
	api.Post("/esims/purge-load", middleware.AuthorizePermission(constants.PurgeData), eh.PurgeLoad)
	api.Post("/esims/:id/return", eh.Return)
	api.Get("/esims", eh.List)
	api.Get("/esims/mine", eh.Mine)
	api.Get("/esims/stats", eh.Stats)

	// Events
	evh := &events.Handlers{Service: evs}
	api.Post("/events", middleware.AuthorizePermission(constants.ManageEvents), evh.Create)
	api.Get("/events", evh.List)
	api.Get("/events/mine", evh.Mine)
	api.Get("/events/visible-units", evh.VisibleUnits)
	api.Get("/events/:id", evh.Get)
	api.Put("/events/:id", middleware.AuthorizePermission(constants.ManageEvents), evh.Update)
	api.Post("/events/:id/reserve", middleware.AuthorizePermission(constants.ReserveUnits), evh.Reserve)
	api.Delete("/events/:id/units/:unitId", evh.Release)

	// Reconciliation
	rch := &reconcile.Handlers{Service: rec}
	api.Post("/reconcile", middleware.AuthorizePermission(constants.RunReconciliation), rch.Run)

	// Change stream
	ch := &changefeed.Handlers{Feed: feed, KeepAlive: 25 * time.Second}
	api.Get("/changes", ch.Stream)

	return &App{Fiber: app, DB: db, Rdb: rdb, Feed: feed, Locks: ls, Reconcile: rec}, nil
}
