package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/FASALGAF00R/Campuscore-backend/config"
	"github.com/FASALGAF00R/Campuscore-backend/handlers"
	"github.com/FASALGAF00R/Campuscore-backend/limiter"
	"github.com/FASALGAF00R/Campuscore-backend/services"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps is everything the HTTP layer needs. Limiter and Online may be nil.
type Deps struct {
	Config      *config.Config
	DB          *gorm.DB
	Logger      *zap.Logger
	Auth        *services.AuthService
	Directory   *services.Directory
	Engine      *services.Engine
	Ledger      *services.Ledger
	Registry    *services.PresenceRegistry
	Broadcaster services.Broadcaster
	Online      handlers.OnlineLister
	Limiter     *limiter.Manager
	Gatherer    prometheus.Gatherer
}

type Server struct {
	Echo                 *echo.Echo
	DB                   *gorm.DB
	Config               *config.Config
	RequestHandler       *handlers.RequestHandler
	NotificationHandler  *handlers.NotificationHandler
	LiveWebSocketHandler *handlers.LiveWebSocketHandler

	deps   Deps
	logger *zap.Logger
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Warn("http_request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("http_request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     d.Config.Server.AllowOrigins,
		AllowMethods:     []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.PATCH},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		ExposeHeaders:    []string{echo.HeaderContentLength},
		MaxAge:           86400,
	}))

	broadcaster := d.Broadcaster
	if broadcaster == nil {
		broadcaster = d.Registry
	}

	s := &Server{
		Echo:                e,
		DB:                  d.DB,
		Config:              d.Config,
		RequestHandler:      handlers.NewRequestHandler(d.Engine, logger),
		NotificationHandler: handlers.NewNotificationHandler(d.Ledger, logger),
		LiveWebSocketHandler: handlers.NewLiveWebSocketHandler(d.Registry, broadcaster, d.Online, handlers.LiveConfig{
			AllowOrigins: d.Config.Server.AllowOrigins,
			FrameRate:    d.Config.Server.LiveFrameRate,
			FrameBurst:   d.Config.Server.LiveFrameBurst,
		}, logger.Named("live")),
		deps:   d,
		logger: logger,
	}
	s.SetupRoutes()
	return s
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http_listening", zap.String("addr", s.Config.Server.Addr))
	if err := s.Echo.Start(s.Config.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func (s *Server) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := s.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		s.logger.Warn("healthz_db_unreachable", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.deps.Registry.SessionCount(),
	})
}
