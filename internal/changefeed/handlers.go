package changefeed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stockdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Handlers serves the live query surface as Server-Sent Events.
type Handlers struct {
	Feed      Subscriber
	KeepAlive time.Duration
}

// Stream GET /api/v1/changes?collection=units[&id=<doc id>]
func (h *Handlers) Stream(c *fiber.Ctx) error {
	collection := c.Query("collection")
	if !Known(collection) {
		return response.Error(c, "Unknown collection", fiber.StatusBadRequest, nil)
	}
	docID := c.Query("id")
	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	obs, err := Watch(ctx, h.Feed, collection, func(ch Change) bool {
		return docID == "" || ch.ID == docID
	})
	if err != nil {
		cancel()
		log.Error().Err(err).Str("collection", collection).Msg("Change stream subscribe failed")
		return response.Error(c, "Change stream unavailable", fiber.StatusServiceUnavailable, nil)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		fmt.Fprintf(w, "event: connection\ndata: %q\n\n", "ok")
		if err := w.Flush(); err != nil {
			return
		}
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		items := obs.Observe()
		for {
			select {
			case item, ok := <-items:
				if !ok {
					return
				}
				if item.E != nil {
					continue
				}
				b, err := json.Marshal(item.V)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", collection, b)
				if err := w.Flush(); err != nil {
					return
				}
			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}
