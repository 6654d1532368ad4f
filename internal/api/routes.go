package api

import "github.com/gin-gonic/gin"

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	s.router.GET("/status", s.countHandler.Status)
	s.router.POST("/count", s.countHandler.CountNow)
	s.router.GET("/history", s.countHandler.History)

	images := s.router.Group("/images")
	{
		images.GET("/original", s.countHandler.OriginalImage)
		images.GET("/result", s.countHandler.ResultImage)
	}

	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}
