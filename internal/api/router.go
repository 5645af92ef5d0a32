package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/fiberspec/internal/errors"
	"github.com/wfunc/fiberspec/internal/middleware"
	"github.com/wfunc/fiberspec/internal/service"
	"github.com/wfunc/fiberspec/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Router API路由器
type Router struct {
	engine         *gin.Engine
	db             *gorm.DB
	services       *service.Services
	handler        *SpectrographHandler
	authMiddleware *middleware.AuthMiddleware
	hub            *websocket.Hub
	log            *zap.Logger
}

// NewRouter 创建路由器，hub 为空时不提供事件推送
func NewRouter(db *gorm.DB, services *service.Services, auth *middleware.AuthMiddleware,
	hub *websocket.Hub, log *zap.Logger) *Router {
	engine := gin.New()

	// 全局中间件
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())

	router := &Router{
		engine:         engine,
		db:             db,
		services:       services,
		handler:        NewSpectrographHandler(services.Spectrograph, log),
		authMiddleware: auth,
		hub:            hub,
		log:            log,
	}
	router.setupRoutes()
	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	// 接口文档
	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	v1 := r.engine.Group("/api/v1")
	spec := v1.Group("/spectrograph")
	{
		spec.GET("/status", r.handler.Status)
		spec.GET("/device", r.handler.DeviceInfo)
		spec.GET("/state", r.handler.State)
		spec.GET("/exposures", r.handler.ListExposures)
		spec.GET("/exposures/stats", r.handler.ExposureStats)
		spec.GET("/exposures/:id", r.handler.GetExposure)

		if r.hub != nil {
			r.hub.SetSnapshot(func() interface{} { return r.handler.state() })
			spec.GET("/events", r.hub.ServeWS)
		}

		// 控制命令需要操作员令牌
		commands := spec.Group("")
		commands.Use(r.authMiddleware.RequireOperator())
		{
			commands.POST("/exposures", r.handler.Expose)
			commands.POST("/exposures/cancel", r.handler.CancelExposure)
		}
	}

	r.engine.NoRoute(func(c *gin.Context) {
		renderError(c, errors.New(errors.ErrNotFound, "route not found"))
	})
}

// healthCheck 健康检查：数据库不可用时 unhealthy，光谱仪未连接或有故障时 degraded
func (r *Router) healthCheck(c *gin.Context) {
	sqlDB, err := r.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"message": "database unavailable",
		})
		return
	}

	svc := r.services.Spectrograph
	status := "healthy"
	if !svc.Connected() || svc.Fault() != nil {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"connected": svc.Connected(),
		"fault":     svc.Fault(),
		"exposure":  svc.ExposureState(),
	})
}

// Handler 返回 http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}
