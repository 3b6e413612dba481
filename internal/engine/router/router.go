package router

import (
	"context"

	"chat_sync_service/internal/engine/app"
	"chat_sync_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 掛上 websocket 入口，身份從 JWT middleware 來
func RegisterRoutes(r *fiber.App, handler *app.EngineWebsocketHandler) {
	r.Use(middlewares.JWTMiddleware())

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		handler.HandleConnection(context.Background(), c)
	}))
}
