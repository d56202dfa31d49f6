package server

import (
	"github.com/FASALGAF00R/Campuscore-backend/middleware"
	"github.com/FASALGAF00R/Campuscore-backend/models"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) SetupRoutes() {
	e := s.Echo
	e.GET("/healthz", s.healthz)

	gatherer := s.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := e.Group("/api/v1")
	// authenticated
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(s.deps.Auth, s.deps.Directory))
	{
		createMiddleware := []echo.MiddlewareFunc{middleware.RequireRoles(models.RoleStudent)}
		if s.deps.Limiter != nil {
			createMiddleware = append(createMiddleware, middleware.NewRateLimitMiddleware(s.deps.Limiter, middleware.RateLimitConfig{
				KeyFunc: middleware.UserKey,
				Logger:  s.logger,
			}))
		}

		requests := protected.Group("/requests/:kind")
		{
			requests.POST("", s.RequestHandler.Create, createMiddleware...)
			requests.GET("", s.RequestHandler.List)
			requests.GET("/mine", s.RequestHandler.ListMine)
			requests.GET("/stats", s.RequestHandler.Stats, middleware.RequireRoles(models.RoleAdmin))
			requests.GET("/:id", s.RequestHandler.Get)
			requests.GET("/:id/messages", s.RequestHandler.Messages)
			requests.POST("/:id/messages", s.RequestHandler.AppendMessage)
			requests.PUT("/:id/assign", s.RequestHandler.Assign)
			requests.PUT("/:id/status", s.RequestHandler.UpdateStatus)
			requests.PUT("/:id/rate", s.RequestHandler.Rate)
		}

		notifications := protected.Group("/notifications")
		{
			notifications.GET("", s.NotificationHandler.List)
			notifications.GET("/unread-count", s.NotificationHandler.UnreadCount)
			notifications.PUT("/read-all", s.NotificationHandler.MarkAllRead)
			notifications.PUT("/:id/read", s.NotificationHandler.MarkRead)
		}

		live := protected.Group("/live")
		{
			live.GET("/ws", s.LiveWebSocketHandler.HandleWebSocket)
			live.GET("/pods/:id/online", s.LiveWebSocketHandler.OnlineUsers)
		}
	}
}
