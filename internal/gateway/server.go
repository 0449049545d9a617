package gateway

import (
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
)

// NewApp builds the fiber app: health, the websocket upgrade route, and the
// internal emit API the CRUD collaborators call to deliver their events.
func NewApp(g *Gateway, sockOpts SocketOptions) *fiber.App {
	app := fiber.New()
	app.Use(fiberlogger.New())

	api := app.Group("/v1")
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api.Get("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws", websocket.New(g.HandleWS(sockOpts)))

	app.Post("/internal/emit", emitHandler(g))

	return app
}

type emitRequest struct {
	Event   string         `json:"event"`
	UserIDs []string       `json:"user_ids,omitempty"`
	ChatID  string         `json:"chat_id,omitempty"`
	Data    map[string]any `json:"data"`
}

var deliverableEvents = map[string]struct{}{
	EvNewFriendRequest:      {},
	EvFriendRequestAccepted: {},
	EvGroupCreated:          {},
	EvGroupUpdated:          {},
	EvGroupDeleted:          {},
	EvAddedToGroup:          {},
}

// Deliverable reports whether collaborators may push the event to clients
// through this gateway. Both the HTTP emit API and the NATS subscriber
// check it; socket-originated event names are never deliverable.
func (g *Gateway) Deliverable(event string) bool {
	_, ok := deliverableEvents[event]
	return ok
}

// emitHandler accepts collaborator-triggered events (friend requests, group
// lifecycle) and delivers them through the gateway. It is mounted outside
// /v1 and expected to be reachable only on the internal network.
func emitHandler(g *Gateway) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req emitRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
		}
		if !g.Deliverable(req.Event) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown event"})
		}
		if len(req.UserIDs) == 0 && req.ChatID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_ids or chat_id required"})
		}
		if len(req.UserIDs) > 0 {
			g.EmitToUsers(req.Event, req.UserIDs, req.Data)
		}
		if req.ChatID != "" {
			g.EmitToChat(req.Event, req.ChatID, req.Data)
		}
		return c.JSON(fiber.Map{"status": "delivered"})
	}
}
