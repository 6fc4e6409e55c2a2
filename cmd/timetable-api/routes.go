package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/timetable-api/api/swagger"
	"github.com/noah-isme/timetable-api/internal/handler"
	"github.com/noah-isme/timetable-api/internal/middleware"
	"github.com/noah-isme/timetable-api/internal/service"
	"github.com/noah-isme/timetable-api/pkg/config"
	"github.com/noah-isme/timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/timetable-api/pkg/middleware/requestid"
)

type routes struct {
	auth        *handler.AuthHandler
	authService *service.AuthService
	timetables  *handler.TimetableHandler
	subjects    *handler.SubjectHandler
	instructors *handler.InstructorHandler
	entries     *handler.EntryHandler
	undo        *handler.UndoHandler
	widget      *handler.WidgetHandler
	ops         *handler.MetricsHandler
	metrics     *service.MetricsService
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routes) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(h.metrics, "/health", "/ready", "/metrics"))

	r.GET("/health", h.ops.Health)
	r.GET("/ready", h.ops.Ready)
	r.GET("/metrics", h.ops.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/token", h.auth.Token)

	secured := api.Group("")
	if cfg.Auth.Enabled {
		secured.Use(middleware.JWT(h.authService))
		secured.GET("/auth/me", h.auth.Me)
	}

	secured.GET("/timetables", h.timetables.List)
	secured.POST("/timetables", h.timetables.Create)
	secured.GET("/timetables/:id", h.timetables.Get)
	secured.PUT("/timetables/:id", h.timetables.Update)
	secured.DELETE("/timetables/:id", h.timetables.Delete)
	secured.GET("/timetables/:id/schedule", h.timetables.Schedule)
	secured.GET("/timetables/:id/stream", h.timetables.Stream)
	secured.PUT("/timetables/:id/sessions", h.timetables.SetSessions)
	secured.GET("/timetables/:id/export", h.timetables.Export)

	secured.GET("/subjects", h.subjects.List)
	secured.POST("/subjects", h.subjects.Create)
	secured.GET("/subjects/:id", h.subjects.Get)
	secured.PUT("/subjects/:id", h.subjects.Update)
	secured.DELETE("/subjects/:id", h.subjects.Delete)

	secured.GET("/instructors", h.instructors.List)
	secured.POST("/instructors", h.instructors.Create)
	secured.GET("/instructors/:id", h.instructors.Get)
	secured.PUT("/instructors/:id", h.instructors.Update)
	secured.DELETE("/instructors/:id", h.instructors.Delete)

	secured.GET("/entries", h.entries.List)
	secured.POST("/entries", h.entries.Create)
	secured.GET("/entries/:id", h.entries.Get)
	secured.PUT("/entries/:id", h.entries.Update)
	secured.DELETE("/entries/:id", h.entries.Delete)

	secured.POST("/undo", h.undo.Undo)

	secured.GET("/widget", h.widget.Get)
	secured.PUT("/widget", h.widget.Select)

	secured.GET("/metrics/summary", h.ops.Summary)

	return r
}
