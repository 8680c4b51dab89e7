package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/inspirecraft/realtime/internal/middleware"
	"github.com/inspirecraft/realtime/internal/ws"
)

// Register mounts the REST surface and the realtime channel. limiter is nil
// when Redis is disabled (dev mode); write routes then run unlimited.
func Register(app *fiber.App, h *Handlers, wsSrv *ws.Server, jwtMw fiber.Handler, limiter *middleware.RateLimiter) {
	app.Use(recover.New())
	app.Use(logger.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(wsSrv.HandleWS()))

	api := app.Group("/api/v1", jwtMw)

	writeGuard := func(c *fiber.Ctx) error { return c.Next() }
	if limiter != nil {
		writeGuard = limiter.MiddlewareByKey(func(c *fiber.Ctx) string {
			if id, ok := c.Locals("user_id").(string); ok {
				return id
			}
			return c.IP()
		})
	}

	api.Get("/conversations", h.listConversations)
	api.Post("/conversations", writeGuard, h.createConversation)
	api.Patch("/conversations/:conversation_id", writeGuard, h.renameConversation)
	api.Post("/conversations/:conversation_id/participants", writeGuard, h.addParticipant)
	api.Delete("/conversations/:conversation_id/participants/:user_id", writeGuard, h.removeParticipant)

	api.Get("/messages", h.listMessages)
	api.Post("/messages", writeGuard, h.sendMessage)
	api.Post("/messages/:message_id/reactions", writeGuard, h.toggleReaction)
	api.Post("/messages/:message_id/seen", h.markSeen)
	api.Post("/messages/:message_id/delivered", h.markDelivered)
	api.Post("/messages/:message_id/unsend", writeGuard, h.unsendMessage)

	api.Post("/like/:target_type/:target_id", writeGuard, h.toggleLike)
	api.Post("/users/:user_id/toggle-follow", writeGuard, h.toggleFollow)
	api.Get("/users/:user_id", h.getUser)
	api.Get("/presence", h.getPresence)
	api.Get("/presence/:user_id", h.getUserPresence)

	api.Post("/reconcile/likes/:target_type/:target_id", h.reconcileLikes)
	api.Post("/reconcile/follows/:user_id", h.reconcileFollows)
}
