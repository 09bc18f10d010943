package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/vivavoce/defense-backend/internal/handlers"
	"github.com/vivavoce/defense-backend/internal/pkg/envutil"
)

type RouterConfig struct {
	DefenseHandler *handlers.DefenseHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-User-ID"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api/defense")
	{
		api.POST("/sessions", cfg.DefenseHandler.CreateSession)
		api.GET("/sessions", cfg.DefenseHandler.ListSessions)
		api.GET("/sessions/:id", cfg.DefenseHandler.GetSession)
		api.GET("/sessions/:id/status", cfg.DefenseHandler.SessionStatus)
		api.POST("/sessions/:id/start", cfg.DefenseHandler.StartDefense)
		api.POST("/sessions/:id/chat", cfg.DefenseHandler.Chat)
		api.POST("/sessions/:id/complete", cfg.DefenseHandler.CompleteSession)
		api.DELETE("/sessions/:id", cfg.DefenseHandler.DeleteSession)
	}

	return router
}

func allowedOrigins() []string {
	raw := envutil.String("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173")
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
