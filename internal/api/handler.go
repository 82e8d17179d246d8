// Package api exposes the alert entry points, manual actions and settings over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alert-executor/internal/events"
	"alert-executor/internal/execution"
	"alert-executor/internal/gateway"
	"alert-executor/internal/ledger"
	"alert-executor/internal/monitor"
	"alert-executor/internal/settings"
)

// Options lists the server's collaborators. Workers, Gateways, Bus and
// Metrics may be nil; their endpoints then report unavailable.
type Options struct {
	Pipeline     *execution.Pipeline
	Orchestrator *execution.Orchestrator
	Workers      *execution.Workers
	Ledger       ledger.Ledger
	Settings     *settings.Store
	Registry     *gateway.Registry
	Gateways     *gateway.Manager
	Bus          *events.Bus
	Metrics      *monitor.SystemMetrics

	Auth           AuthConfig
	WebhookToken   string
	RateLimitRPS   float64
	RateLimitBurst int
	Log            *zap.Logger
}

// Server wires HTTP endpoints around the execution pipeline.
type Server struct {
	Options
	Router *gin.Engine
	log    *zap.Logger
}

func NewServer(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("api")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log))
	r.Use(RateLimitMiddleware(newIPLimiters(opts.RateLimitRPS, opts.RateLimitBurst), log))
	r.Use(CORSMiddleware())

	s := &Server{Options: opts, Router: r, log: log}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.POST("/webhook", WebhookTokenMiddleware(s.WebhookToken), s.webhook)

	auth := s.authMiddleware()
	s.Router.GET("/ws", auth, s.websocket)

	api := s.Router.Group("/api")
	{
		api.POST("/login", s.login)

		protected := api.Group("")
		protected.Use(auth)
		{
			// Alerts
			protected.POST("/alerts", s.receiveAlert)
			protected.GET("/alerts", s.listAlerts)
			protected.GET("/alerts/:id", s.getAlert)
			protected.POST("/alerts/:id/execute", s.executeAlert)
			protected.POST("/alerts/:id/ignore", s.ignoreAlert)

			// Settings
			protected.GET("/settings", s.getSettings)
			protected.PUT("/settings", s.updateSettings)
			protected.GET("/credentials", s.listCredentials)
			protected.POST("/credentials", s.upsertCredentials)
			protected.POST("/credentials/activate", s.activateCredentials)
			protected.DELETE("/credentials/:exchange/:apiKey", s.deleteCredentials)

			// System
			protected.GET("/exchanges", s.listExchanges)
			protected.GET("/gateways", s.getGateways)
			protected.GET("/metrics", s.getMetrics)
		}
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	if s.Auth.JWTSecret == "" {
		s.log.Warn("JWT_SECRET is empty; API routes are unauthenticated")
		return func(c *gin.Context) { c.Next() }
	}
	return AuthMiddleware(s.Auth.JWTSecret)
}

func (s *Server) health(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if s.Orchestrator != nil {
		n, oldest := s.Orchestrator.InFlight()
		resp["in_flight"] = n
		resp["oldest_in_flight_ms"] = oldest.Milliseconds()
	}
	if s.Workers != nil {
		resp["queued"] = s.Workers.Pending()
	}
	c.JSON(http.StatusOK, resp)
}

// HTTPServer returns a server for addr that main can shut down gracefully.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
