package server

import (
	"catalog/internal/handler"
	"catalog/internal/middleware"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Products        *handler.ProductHandler
	ProductCommands *handler.ProductCommandHandler
	DeadLetters     *handler.DeadLetterHandler
	Health          *handler.HealthHandler
}

func RegisterRoutes(e *echo.Echo, jwtSecret string, h Handlers) {
	h.Health.RegisterRoutes(e)

	// テナント必須のAPI
	api := e.Group("", middleware.AuthJWT(jwtSecret))
	h.ProductCommands.RegisterRoutes(api)
	h.Products.RegisterRoutes(api)

	admin := e.Group("/admin", middleware.AuthJWT(jwtSecret), middleware.AdminRoleGuard())
	h.DeadLetters.RegisterRoutes(admin)
}
