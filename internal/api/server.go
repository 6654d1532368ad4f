package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"occupancy-worker-go/internal/api/handlers"
	"occupancy-worker-go/internal/api/middleware"
	"occupancy-worker-go/internal/config"
	"occupancy-worker-go/internal/metrics"
	"occupancy-worker-go/internal/services/controller"
	"occupancy-worker-go/internal/services/counting"
	"occupancy-worker-go/internal/services/history"
)

// Server is the local inspection API: health, status, manual count
// trigger, persisted artifacts and metrics. The remote controller
// never talks to it.
type Server struct {
	cfg     *config.Config
	router  *gin.Engine
	server  *http.Server
	metrics *metrics.Metrics

	healthHandler *handlers.HealthHandler
	countHandler  *handlers.CountHandler
}

func NewServer(cfg *config.Config, counter *counting.Service, manager *controller.Manager, hist *history.Service, m *metrics.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:           cfg,
		router:        gin.New(),
		metrics:       m,
		healthHandler: handlers.NewHealthHandler(cfg.WorkerID, cfg.Version),
		countHandler:  handlers.NewCountHandler(cfg, counter, manager, hist),
	}

	s.router.Use(middleware.Logger())
	s.router.Use(middleware.Recovery())
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router,
	}

	return s
}

func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
