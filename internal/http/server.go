// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"primetransportes/internal/modules/corrida"
	"primetransportes/internal/realtime"
)

type ServerDeps struct {
	Corridas  *corrida.Service
	Engine    *realtime.Engine
	Hub       *Hub
	JWTSecret string
	Log       *zap.Logger
}

type Server struct {
	corridas  *corrida.Service
	engine    *realtime.Engine
	hub       *Hub
	jwtSecret string
	log       *zap.Logger
}

func NewServer(deps ServerDeps) *Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		corridas:  deps.Corridas,
		engine:    deps.Engine,
		hub:       deps.Hub,
		jwtSecret: deps.JWTSecret,
		log:       log,
	}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", requireAuth(s.jwtSecret))
	{
		api.GET("/corridas", s.handleList)
		api.POST("/corridas", s.handleCreate)
		api.GET("/corridas/financeiro", s.handleFinanceView)
		api.GET("/corridas/motorista/:nome", s.handleByDriver)
		api.POST("/corridas/refresh", s.handleRefresh)
		api.PUT("/corridas/:id", s.handleUpdate)
		api.POST("/corridas/:id/motorista", s.handleAssignDriver)
		api.POST("/corridas/:id/os", s.handleFillOS)
		api.POST("/corridas/:id/aprovar", s.handleApprove)
		api.POST("/corridas/:id/rejeitar", s.handleReject)
		api.POST("/corridas/:id/status", s.handleSetStatus)
		api.DELETE("/corridas/:id", s.handleDelete)
		api.GET("/ws", s.hub.Handle)
	}
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	var syncedAt any
	if t, ok := s.corridas.LastSyncedAt(); ok {
		syncedAt = t.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, gin.H{
		"loading":             s.corridas.Loading(),
		"lastSyncedAt":        syncedAt,
		"isRealtimeConnected": s.engine.Connected(),
	})
}
