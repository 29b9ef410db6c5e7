package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/tirumala-karthikeya/chat-pro/internal/api"
	"github.com/tirumala-karthikeya/chat-pro/internal/ws"
	"github.com/tirumala-karthikeya/chat-pro/pkg/di"
	"github.com/tirumala-karthikeya/chat-pro/pkg/errors"
	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
	"github.com/tirumala-karthikeya/chat-pro/pkg/middleware"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger

	limiter *middleware.RateLimiter
}

// New creates the gin engine with the common middleware chain.
func New(container *di.Container) *Router {
	cfg := container.Config
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	if container.Validator != nil {
		engine.Use(container.Validator.Middleware())
	}

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		limiter: middleware.NewRateLimiter(container.Logger, middleware.RateLimiterOptions{
			Limit: rate.Limit(cfg.Security.RateLimit),
			Burst: cfg.Security.RateLimitBurst,
		}),
	}
}

// SetupRoutes registers all application routes. ctx bounds background
// work started for them.
func (r *Router) SetupRoutes(ctx context.Context) {
	c := r.Container
	go r.limiter.Cleanup(ctx, time.Minute)

	healthHandler := api.NewHealthHandler(c.Gateway, c.Hub)
	r.Engine.GET("/", api.Root)
	r.Engine.GET("/health", healthHandler.Health)
	r.Engine.GET("/health/components", gin.WrapF(c.Health.HTTPHandler()))
	if c.MetricsHandler != nil {
		r.Engine.GET("/metrics", gin.WrapH(c.MetricsHandler))
	}
	if c.Validator != nil {
		r.Engine.GET("/openapi.json", c.Validator.Handler())
	}

	limited := r.Engine.Group("/")
	limited.Use(r.limiter.Middleware())

	var guard gin.HandlerFunc
	if c.JWTService != nil {
		guard = middleware.RequireAdmin(c.JWTService, r.Logger)
	}
	api.NewChatbotHandler(c.Gateway).RegisterRoutes(limited, guard)

	limited.POST("/chat", api.NewChatHandler(c.Relay, r.Logger).Chat)
	limited.POST("/upload", api.NewUploadHandler(c.Upstream, c.Config.Server.UploadDir, r.Logger).Upload)

	r.Engine.GET("/ws/:client_id", ws.NewHandler(ctx, c.Hub, c.Relay, c.Config.Relay.SendBuffer).Serve)
}

// Handler returns the engine wrapped with CORS handling.
func (r *Router) Handler() http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   r.Container.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Upgrade", "Connection", "Cache-Control"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           86400,
	})(r.Engine)
}
