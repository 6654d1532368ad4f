package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"occupancy-worker-go/internal/config"
	"occupancy-worker-go/internal/models"
	"occupancy-worker-go/internal/services/controller"
	"occupancy-worker-go/internal/services/counting"
	"occupancy-worker-go/internal/services/history"
)

// CountHandler exposes the counting pipeline for local inspection:
// trigger an operation by hand, read the last outcome, fetch the
// persisted artifacts.
type CountHandler struct {
	cfg     *config.Config
	counter *counting.Service
	manager *controller.Manager
	history *history.Service
}

func NewCountHandler(cfg *config.Config, counter *counting.Service, manager *controller.Manager, hist *history.Service) *CountHandler {
	return &CountHandler{cfg: cfg, counter: counter, manager: manager, history: hist}
}

type StatusResponse struct {
	ConnectionState string          `json:"connection_state"`
	ControllerURL   string          `json:"controller_url"`
	CanonicalZones  []string        `json:"canonical_zones"`
	LastOperation   *models.Outcome `json:"last_operation,omitempty"`
}

func (h *CountHandler) Status(c *gin.Context) {
	state := "single-shot"
	if h.manager != nil {
		state = h.manager.State().String()
	}
	c.JSON(http.StatusOK, StatusResponse{
		ConnectionState: state,
		ControllerURL:   h.cfg.ControllerURL,
		CanonicalZones:  h.cfg.CanonicalZones,
		LastOperation:   h.counter.LastOutcome(),
	})
}

// CountNow runs one counting operation synchronously and returns the
// counts. Requests queue behind any in-flight operation.
func (h *CountHandler) CountNow(c *gin.Context) {
	counts := h.counter.CountNow(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"counts":  counts,
		"results": counts.Ordered(h.cfg.CanonicalZones),
	})
}

func (h *CountHandler) OriginalImage(c *gin.Context) {
	c.File(h.cfg.OriginalImagePath)
}

func (h *CountHandler) ResultImage(c *gin.Context) {
	c.File(h.cfg.ResultImagePath)
}

// History returns the most recent operation outcomes.
func (h *CountHandler) History(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	outcomes, err := h.history.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": outcomes})
}
