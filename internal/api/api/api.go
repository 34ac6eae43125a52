package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"activityhub/cmd/middleware"
	"activityhub/internal/service"
)

type Routers struct {
	Service service.Service
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())
	apiGroup := app.Group("/v1")

	apiGroup.GET("/events", r.Service.GetAllEvents)
	apiGroup.GET("/events/watch", r.Service.WatchEvents)
	apiGroup.POST("/events", r.Service.CreateEvent)
	apiGroup.PUT("/events/:id", r.Service.UpdateEvent)
	apiGroup.DELETE("/events/:id", r.Service.DeleteEvent)
	apiGroup.GET("/events/:id/roster", r.Service.GetRoster)
	apiGroup.PUT("/series/:id", r.Service.UpdateSeries)
	apiGroup.DELETE("/series/:id", r.Service.DeleteSeries)

	apiGroup.GET("/registrations", r.Service.GetMyRegistrations)
	apiGroup.PUT("/registrations/:id/status", r.Service.UpdateRegistrationStatus)
	apiGroup.PUT("/registrations/:id/attendance", r.Service.SetAttendance)

	apiGroup.GET("/basket", r.Service.GetBasket)
	apiGroup.POST("/basket/items", r.Service.AddBasketItem)
	apiGroup.DELETE("/basket/items/:eventId", r.Service.RemoveBasketItem)
	apiGroup.PUT("/basket/items/:eventId/meeting", r.Service.SetMeetingPreference)
	apiGroup.POST("/basket/checkout", r.Service.CheckoutBasket)
	apiGroup.POST("/basket/confirm", r.Service.ConfirmBasket)

	return app
}
