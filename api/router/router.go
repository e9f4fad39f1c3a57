package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/netfleetpro/netfleet/api/handler"
	"github.com/netfleetpro/netfleet/internal/config"
	"github.com/netfleetpro/netfleet/internal/service"
	"github.com/netfleetpro/netfleet/pkg/logger"
)

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, fleetService *service.FleetService) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())

	fleetHandler := handler.NewFleetHandler(fleetService)
	runHandler := handler.NewRunHandler(fleetService.Store())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":   "netfleet",
			"status": "running",
		})
	})

	if m := fleetService.Metrics(); m != nil && cfg.Metrics.Path != "" {
		r.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", fleetHandler.Health)
		v1.GET("/stats", fleetHandler.GetStats)

		inventory := v1.Group("/inventory")
		{
			inventory.GET("/devices", fleetHandler.ListDevices)
			inventory.GET("/devices/:hostname", fleetHandler.GetDevice)
			inventory.POST("/reload", fleetHandler.Reload)
		}

		runs := v1.Group("/runs")
		{
			runs.POST("/exec", fleetHandler.Exec)
			runs.POST("/config", fleetHandler.Configure)
			runs.POST("/apply", fleetHandler.Apply)
			runs.POST("/describe", fleetHandler.Describe)
			runs.POST("/dns", fleetHandler.DNS)
			runs.POST("/facts", fleetHandler.Facts)
			runs.POST("/mlag", fleetHandler.ValidateMLAG)
			runs.GET("/active", fleetHandler.ActiveRuns)
			runs.POST("/:run_id/cancel", fleetHandler.CancelRun)
			runs.GET("", runHandler.ListRuns)
			runs.GET("/:run_id", runHandler.GetRun)
			runs.DELETE("", runHandler.PruneRuns)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestIDMiddleware 请求ID中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// LoggingMiddleware 日志中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logger.KV(
			"request_id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		))
		if c.Writer.Status() >= 400 {
			entry.Warn("HTTP Error")
			return
		}
		entry.Info("HTTP Request")
	}
}
