package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"donation-backend/internal/config"
	"donation-backend/internal/models"
	"donation-backend/internal/repository"
)

// CampaignHandler HTTP surface for campaigns and their donation history
type CampaignHandler struct {
	campaigns repository.CampaignRepository
	recon     repository.ReconciliationRepository
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaigns repository.CampaignRepository, recon repository.ReconciliationRepository) *CampaignHandler {
	return &CampaignHandler{
		campaigns: campaigns,
		recon:     recon,
	}
}

type createCampaignRequest struct {
	Title        string `json:"title" binding:"required"`
	FiatCurrency string `json:"fiat_currency"`
}

// Create handles POST /api/v1/admin/campaigns
func (h *CampaignHandler) Create(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	currency := req.FiatCurrency
	if currency == "" {
		currency = config.AppConfig.Pricing.FiatCurrency
	}
	if currency == "" {
		currency = "USD"
	}

	campaign := &models.Campaign{
		ID:           uuid.New().String(),
		Title:        req.Title,
		FiatCurrency: currency,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := h.campaigns.Create(c.Request.Context(), campaign); err != nil {
		log.WithError(err).Error("Failed to create campaign")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create campaign"})
		return
	}

	c.JSON(http.StatusCreated, campaign)
}

// List handles GET /api/v1/campaigns
func (h *CampaignHandler) List(c *gin.Context) {
	activeOnly := c.Query("all") != "true"
	campaigns, err := h.campaigns.List(c.Request.Context(), activeOnly)
	if err != nil {
		log.WithError(err).Error("Failed to list campaigns")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list campaigns"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns})
}

// Get handles GET /api/v1/campaigns/:id
func (h *CampaignHandler) Get(c *gin.Context) {
	campaign, err := h.campaigns.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// Donations handles GET /api/v1/campaigns/:id/donations
func (h *CampaignHandler) Donations(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := h.recon.ListLedgerByCampaign(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		log.WithError(err).Error("Failed to list donations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list donations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"donations": entries})
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetActive handles PATCH /api/v1/admin/campaigns/:id/active
func (h *CampaignHandler) SetActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "active is required"})
		return
	}

	err := h.campaigns.SetActive(c.Request.Context(), c.Param("id"), *req.Active)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "active": *req.Active})
}
