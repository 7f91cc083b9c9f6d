package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"donation-backend/internal/registry"
	"donation-backend/internal/repository"
)

// MetaHandler health, catalog and donation lookup endpoints
type MetaHandler struct {
	registry *registry.Registry
	recon    repository.ReconciliationRepository
}

// NewMetaHandler creates a new meta handler
func NewMetaHandler(reg *registry.Registry, recon repository.ReconciliationRepository) *MetaHandler {
	return &MetaHandler{
		registry: reg,
		recon:    recon,
	}
}

// Health handles GET /health
func (h *MetaHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Networks handles GET /api/v1/networks
func (h *MetaHandler) Networks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"networks": h.registry.Networks()})
}

// Donation handles GET /api/v1/donations/:id
func (h *MetaHandler) Donation(c *gin.Context) {
	entry, err := h.recon.GetLedgerEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "donation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}
