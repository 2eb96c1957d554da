package app

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cabpool/internal/domain"
	"cabpool/internal/handler"
	"cabpool/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	PoolHandler   *handler.PoolHandler
	GroupHandler  *handler.GroupHandler
	UserHandler   *handler.UserHandler
	WSHandler     *handler.WSHandler
	Sessions      middleware.SessionResolver
	ResponseCache middleware.ResponseCache
	NewRelicApp   *newrelic.Application
	Logger        *slog.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Observe(deps.Logger))
	router.Use(middleware.CORSMiddleware())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.Auth(deps.Sessions))
	if deps.ResponseCache != nil {
		v1.Use(middleware.IdempotencyMiddleware(deps.ResponseCache))
	}
	{
		pool := v1.Group("/pool")
		{
			pool.POST("/create", deps.PoolHandler.Create)
			pool.POST("/match", deps.PoolHandler.Match)
			pool.GET("/my", deps.PoolHandler.ListMine)
			pool.GET("/:id", deps.PoolHandler.Get)
			pool.DELETE("/:id", deps.PoolHandler.Delete)
			pool.PATCH("/:id/status", middleware.RequireRole(domain.UserRoleAdmin), deps.PoolHandler.SetStatus)
		}

		group := v1.Group("/group")
		{
			group.POST("", deps.GroupHandler.Create)
			group.POST("/join/:groupId", deps.GroupHandler.Join)
			group.POST("/leave/:groupId", deps.GroupHandler.Leave)
			group.PATCH("/lock/:groupId", deps.GroupHandler.Lock)
			group.POST("/match", deps.GroupHandler.Match)
			group.GET("/my", deps.GroupHandler.ListMine)
			group.GET("/:id", deps.GroupHandler.Get)
		}

		v1.GET("/users/me", deps.UserHandler.Me)
		v1.GET("/ws", deps.WSHandler.Serve)
	}

	return router
}
