package server

import (
	"github.com/nlp-tlp/quickgraph-sub001/internal/server/middleware"
	"github.com/nlp-tlp/quickgraph-sub001/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Markup routes
	apiRoutes.POST("/markup", routes.ApplyMarkupHandler, middleware.RequirePermission("markup.apply"))
	apiRoutes.PATCH("/markup/:id/accept", routes.AcceptMarkupHandler, middleware.RequirePermission("markup.accept"))
	apiRoutes.PATCH("/markup/:id/relabel", routes.RelabelMarkupHandler, middleware.RequirePermission("markup.relabel"))
	apiRoutes.DELETE("/markup/:id", routes.DeleteMarkupHandler, middleware.RequirePermission("markup.delete"))

	// Item markup listing
	apiRoutes.GET("/items/:item_id/markup", routes.GetItemMarkupHandler, middleware.RequirePermission("markup.view"))
}
