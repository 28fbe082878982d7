package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"ecodigital/activity"
	"ecodigital/middleware"
)

func SetupFeedRoutes(api fiber.Router, d *Deps, keepAlive time.Duration) {
	api.Get("/feed", chain(func(c *fiber.Ctx) error {
		items, err := d.Feed.Latest(c.UserContext(), companyID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"items": items})
	}, middleware.RequireUser(d.Accounts, d.Log), middleware.RequireCompany())...)

	// GET /api/feed/stream?token=...
	// Each change to the company's feed pushes the full rendered snapshot.
	api.Get("/feed/stream", chain(func(c *fiber.Ctx) error {
		return streamFeed(c, d, keepAlive)
	}, middleware.RequireStreamUser(d.Accounts, d.Log), middleware.RequireCompany())...)
}

func streamFeed(c *fiber.Ctx, d *Deps, keepAlive time.Duration) error {
	company := companyID(c)
	userID := caller(c).ID
	log := d.Log.With(zap.String("company_id", company), zap.String("user_id", userID))
	done := c.Context().Done()

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	changed, unsubscribe := d.Hub.Subscribe(company)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		send := func() bool {
			items, err := d.Feed.Latest(context.Background(), company)
			if err != nil {
				log.Warn("feed snapshot failed", zap.Error(err))
				return true
			}
			if err := writeEvent(w, "feed", items); err != nil {
				return false
			}
			return w.Flush() == nil
		}

		if !send() {
			return
		}
		for {
			select {
			case _, ok := <-changed:
				if !ok || !send() {
					return
				}
			case <-ticker.C:
				// Comment line; a failed flush means the client is gone.
				if _, err := w.WriteString(":\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					log.Debug("feed stream closed")
					return
				}
			case <-done:
				return
			}
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, event string, items []activity.Item) error {
	payload, err := json.Marshal(fiber.Map{"items": items})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
