package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"donation-backend/internal/models"
	"donation-backend/internal/repository"
	"donation-backend/internal/services"
)

// AdminHandler operational endpoints behind JWT auth
type AdminHandler struct {
	intents repository.IntentRepository
	sweeper *services.SweeperService
	prices  *services.PriceService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(intents repository.IntentRepository, sweeper *services.SweeperService, prices *services.PriceService) *AdminHandler {
	return &AdminHandler{
		intents: intents,
		sweeper: sweeper,
		prices:  prices,
	}
}

// Sweep handles POST /api/v1/admin/sweep, running one expiry sweep immediately
func (h *AdminHandler) Sweep(c *gin.Context) {
	h.sweeper.SweepOnce(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "swept"})
}

// RefreshPrices handles POST /api/v1/admin/prices/refresh
func (h *AdminHandler) RefreshPrices(c *gin.Context) {
	updated, err := h.prices.Refresh()
	if err != nil {
		log.WithError(err).Warn("Manual price refresh failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// ListIntents handles GET /api/v1/admin/intents?status=mismatch&limit=100.
// Mainly for reviewing terminal flagged intents.
func (h *AdminHandler) ListIntents(c *gin.Context) {
	status := models.IntentStatus(c.Query("status"))
	if status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status query parameter is required"})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	intents, err := h.intents.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		log.WithError(err).Error("Failed to list intents")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list intents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"intents": intents})
}
