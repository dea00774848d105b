package bootstrap

import (
	"context"

	"stockdesk-backend/internal/config"
	"stockdesk-backend/internal/interfaces/router"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// New creates the Fiber app for serverless entry points. The lock sweeper
// and the reconciliation ticker do not run there; only the startup
// reconciliation pass does, when enabled.
func New() (*fiber.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a, err := router.CreateApp(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.ReconcileOnStartup {
		if _, err := a.Reconcile.Run(context.Background()); err != nil {
			log.Error().Err(err).Msg("Startup reconciliation failed")
		}
	}
	return a.Fiber, nil
}
