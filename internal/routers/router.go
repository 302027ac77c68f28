package routers

import (
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/app"
	"github.com/haierkeys/schedule-note-sync/internal/middleware"
	"github.com/haierkeys/schedule-note-sync/internal/routers/api_router"
	"github.com/haierkeys/schedule-note-sync/pkg/limiter"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
	"github.com/opentracing/opentracing-go"
)

// NewRouter 创建公开 API 路由，tracer 为空时使用全局 tracer
func NewRouter(appContainer *app.App, uni *ut.UniversalTranslator, tracer opentracing.Tracer) *gin.Engine {

	// 获取配置
	cfg := appContainer.Config()

	// 每个设备一个令牌桶
	deviceLimiter := limiter.NewDeviceLimiter(middleware.HeaderDeviceID, limiter.BucketRule{
		FillInterval: cfg.GetRateLimitInterval(),
		Capacity:     int64(cfg.App.RateLimitCapacity),
		Quantum:      int64(cfg.App.RateLimitCapacity),
	})

	r := gin.New()

	api := r.Group("/api")
	{
		api.Use(middleware.TraceMiddleware(cfg.Tracer.Header, tracer)) // Trace ID 中间件
		api.Use(middleware.RateLimiter(deviceLimiter))
		api.Use(middleware.ContextTimeout(time.Duration(cfg.App.DefaultContextTimeout) * time.Second))
		api.Use(middleware.LangWithTranslator(uni))
		api.Use(middleware.AccessLogWithLogger(appContainer.Logger()))
		api.Use(middleware.RecoveryWithLogger(appContainer.Logger()))

		// 创建 Handlers（注入 App Container）
		healthHandler := api_router.NewHealthHandler(appContainer)
		recordHandler := api_router.NewRecordHandler(appContainer)
		eventHandler := api_router.NewEventHandler(appContainer)
		noteHandler := api_router.NewNoteHandler(appContainer)
		drawingHandler := api_router.NewDrawingHandler(appContainer)

		// 健康检查（无需认证）
		api.GET("/health", healthHandler.Check)

		auth := api.Group("", middleware.DeviceAuthToken(appContainer.TokenManager))
		{
			auth.POST("/records/resolve", recordHandler.Resolve)
			auth.PUT("/records/:uuid", recordHandler.Update)
			auth.DELETE("/records/:uuid", recordHandler.Delete)

			auth.POST("/events", eventHandler.Create)
			auth.GET("/events", eventHandler.List)
			auth.GET("/events/:id", eventHandler.Get)
			auth.POST("/events/:id/reschedule", eventHandler.Reschedule)
			auth.PUT("/events/:id/record-number", eventHandler.RefillRecordNumber)
			auth.GET("/events/:id/note", noteHandler.GetByEvent)

			auth.GET("/notes/:record_uuid", noteHandler.Get)
			auth.PUT("/notes/:record_uuid", noteHandler.Save)
			auth.DELETE("/notes/:record_uuid", noteHandler.Delete)
			auth.POST("/notes/:record_uuid/lease", noteHandler.AcquireLease)
			auth.DELETE("/notes/:record_uuid/lease", noteHandler.ReleaseLease)

			auth.GET("/drawings", drawingHandler.Get)
			auth.PUT("/drawings", drawingHandler.Save)
			auth.DELETE("/drawings", drawingHandler.Delete)
			auth.GET("/drawings/range", drawingHandler.List)
		}
	}

	r.NoRoute(middleware.NoFound())

	return r
}
