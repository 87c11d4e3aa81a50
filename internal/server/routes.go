package server

import (
	"github.com/OFFIS-RIT/diarygraph/internal/server/middleware"
	"github.com/OFFIS-RIT/diarygraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Segment routes
	apiRoutes.POST("/segments", routes.SubmitSegmentHandler)

	// Record routes
	apiRoutes.GET("/records/:id", routes.GetRecordHandler)
	apiRoutes.GET("/records/:id/connections", routes.GetRecordConnectionsHandler)
}
