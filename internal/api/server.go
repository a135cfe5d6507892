// Package api exposes the routing pipeline over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/duplexhq/duplex/internal/escalation"
	"github.com/duplexhq/duplex/internal/knowledge"
	"github.com/duplexhq/duplex/internal/messaging"
	"github.com/duplexhq/duplex/internal/policy"
	"github.com/duplexhq/duplex/internal/quota"
	"github.com/duplexhq/duplex/internal/router"
)

// Deps bundles everything the handlers reach for.
type Deps struct {
	Router      *router.Router
	Messages    *messaging.Store
	Policies    *policy.Store
	Escalations *escalation.Service
	Quota       quota.Tracker
	Knowledge   *knowledge.Store
}

// Server represents the API server
type Server struct {
	echo *echo.Echo
	port int
	deps Deps
}

// NewServer creates a new API server
func NewServer(port int, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	server := &Server{
		echo: e,
		port: port,
		deps: deps,
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	v1 := s.echo.Group("/api/v1")

	v1.POST("/conversations/:id/messages", s.postMessage)
	v1.GET("/conversations/:id/decisions", s.listDecisions)

	v1.GET("/owners/:id/policy", s.getPolicy)
	v1.PUT("/owners/:id/policy", s.putPolicy)
	v1.GET("/owners/:id/quota", s.getQuotaStatus)
	v1.GET("/owners/:id/escalations", s.listEscalations)

	v1.POST("/escalations/:id/accept", s.acceptEscalation)
	v1.POST("/escalations/:id/decline", s.declineEscalation)
	v1.POST("/escalations/:id/resolve", s.resolveEscalation)

	v1.POST("/knowledge-bases/:id/chunks", s.ingestKnowledge)
}

// Start begins the API server and blocks until an interrupt, then shuts
// down gracefully so in-flight conversation lanes drain first.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	log.Info().Int("port", s.port).Msg("API server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info().Msg("Shutting down")
	s.deps.Router.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
