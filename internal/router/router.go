// Package router registers the HTTP routes of the service.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hostel-bed-holds/internal/handler"
	"github.com/iliyamo/hostel-bed-holds/internal/middleware"
	"github.com/iliyamo/hostel-bed-holds/internal/utils"
)

// RegisterRoutes registers the unauthenticated probe routes.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterGuest registers the guest hold and availability routes.  limit
// is applied to every guest route; nil means no rate limiting.
func RegisterGuest(e *echo.Echo, h *handler.HoldHandler, a *handler.AvailabilityHandler, limit echo.MiddlewareFunc) {
	var mw []echo.MiddlewareFunc
	if limit != nil {
		mw = append(mw, limit)
	}

	g := e.Group("/holds", mw...)
	g.POST("/start", h.Start)
	g.GET("/list", h.List)
	g.POST("/confirm", h.Confirm)
	g.POST("/release", h.Release)
	g.GET("/:id", h.Get)

	e.GET("/availability", a.Get, mw...)
	e.GET("/rooms", a.Rooms, mw...)
}

// RegisterAdmin registers login and the admin routes.  Everything except
// login requires an ADMIN access token signed with jwtSecret.
func RegisterAdmin(e *echo.Echo, auth *handler.AuthHandler, h *handler.HoldHandler, a *handler.AdminHandler, jwtSecret string) {
	e.POST("/admin/login", auth.Login)

	g := e.Group("/admin", middleware.JWTAuth(jwtSecret), middleware.RequireRole(utils.RoleAdmin))
	g.GET("/me", auth.Me)

	g.DELETE("/holds/cleanup", h.Cleanup)

	g.POST("/block-dates", a.BlockDates)
	g.GET("/block-dates", a.ListBlocks)
	g.DELETE("/block-dates/:id", a.UnblockDates)
	g.POST("/block-dates/unblock-range", a.UnblockRange)

	g.POST("/bookings/import", a.ImportBooking)
	g.GET("/bookings/conflicts", a.Conflicts)
	g.GET("/bookings/duplicates", a.Duplicates)

	g.GET("/occupancy/export", a.ExportOccupancy)
}
