package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	WorkerID string
	Version  string
}

func NewHealthHandler(workerID, version string) *HealthHandler {
	return &HealthHandler{WorkerID: workerID, Version: version}
}

type HealthResponse struct {
	Status   string `json:"status"`
	WorkerID string `json:"worker_id"`
}

type WorkerInfoResponse struct {
	WorkerID     string   `json:"worker_id"`
	Status       string   `json:"status"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "healthy",
		WorkerID: h.WorkerID,
	})
}

func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, WorkerInfoResponse{
		WorkerID: h.WorkerID,
		Status:   "running",
		Version:  h.Version,
		Capabilities: []string{
			"zone_counting",
			"camera_arbitration",
			"controller_events",
		},
	})
}
