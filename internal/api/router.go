package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/classcam/internal/api/handlers"
	"github.com/your-org/classcam/internal/api/ws"
	"github.com/your-org/classcam/internal/auth"
	"github.com/your-org/classcam/internal/engine"
)

type RouterConfig struct {
	APIKey string
	Engine *engine.Engine
	Hub    *ws.Hub
	// Checks are run by /readyz.
	Checks map[string]handlers.Check
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig()))

	systemH := handlers.NewSystemHandler(cfg.Engine, cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	sectionH := handlers.NewSectionHandler(cfg.Engine)
	v1.GET("/sections", sectionH.List)
	v1.POST("/sections", sectionH.Create)
	v1.DELETE("/sections/:name", sectionH.Delete)
	v1.GET("/sections/:name/members", sectionH.Members)

	identityH := handlers.NewIdentityHandler(cfg.Engine)
	v1.DELETE("/identities/:external_id", identityH.Delete)
	v1.GET("/identities/:external_id/available", identityH.Available)

	enrollH := handlers.NewEnrollmentHandler(cfg.Engine)
	v1.POST("/enrollments", enrollH.Start)
	v1.GET("/enrollments/:session", enrollH.Status)
	v1.POST("/enrollments/:session/frames", enrollH.Frame)
	v1.POST("/enrollments/:session/advance", enrollH.Advance)
	v1.POST("/enrollments/:session/finish", enrollH.Finish)
	v1.DELETE("/enrollments/:session", enrollH.Cancel)

	recogH := handlers.NewRecognitionHandler(cfg.Engine)
	v1.POST("/recognize", recogH.Recognize)
	v1.POST("/search", recogH.Search)
	v1.DELETE("/sessions/:session", recogH.ClearSession)
	v1.DELETE("/sessions/:session/modals/:track", recogH.CloseModal)

	v1.GET("/stats", systemH.Stats)
	v1.POST("/database/save", systemH.Save)

	return r
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AddAllowHeaders("X-API-Key")
	return cfg
}
