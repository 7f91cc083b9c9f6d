package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"donation-backend/internal/amount"
	"donation-backend/internal/chain"
	"donation-backend/internal/registry"
	"donation-backend/internal/repository"
	"donation-backend/internal/services"
)

// IntentHandler HTTP surface for payment intents
type IntentHandler struct {
	intents  *services.IntentService
	verifier *services.VerifyService
}

// NewIntentHandler creates a new intent handler
func NewIntentHandler(intents *services.IntentService, verifier *services.VerifyService) *IntentHandler {
	return &IntentHandler{
		intents:  intents,
		verifier: verifier,
	}
}

// Create handles POST /api/v1/intents
func (h *IntentHandler) Create(c *gin.Context) {
	var req services.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	view, err := h.intents.Create(c.Request.Context(), &req)
	if err != nil {
		status := intentErrorStatus(err)
		if status >= http.StatusInternalServerError {
			log.WithFields(log.Fields{
				"campaign_id": req.CampaignID,
				"network_id":  req.NetworkID,
				"asset_id":    req.AssetID,
			}).WithError(err).Error("Failed to create intent")
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, view)
}

// Get handles GET /api/v1/intents/:id
func (h *IntentHandler) Get(c *gin.Context) {
	view, err := h.intents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(intentErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

type verifyRequest struct {
	TxHash string `json:"tx_hash" binding:"required"`
}

// Verify handles POST /api/v1/intents/:id/verify
func (h *IntentHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tx_hash is required"})
		return
	}

	intentID := c.Param("id")
	result, err := h.verifier.Verify(c.Request.Context(), intentID, req.TxHash)
	if err != nil {
		status := intentErrorStatus(err)
		if status >= http.StatusInternalServerError {
			log.WithFields(log.Fields{
				"intent_id": intentID,
				"tx_hash":   req.TxHash,
			}).WithError(err).Error("Verification failed")
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// intentErrorStatus maps service errors onto HTTP status codes
func intentErrorStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrUnknownNetwork),
		errors.Is(err, registry.ErrUnknownAsset),
		errors.Is(err, amount.ErrMalformedAmount),
		errors.Is(err, chain.ErrInvalidHashFormat):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrCampaignInactive),
		errors.Is(err, chain.ErrAlreadyTerminal):
		return http.StatusConflict
	case errors.Is(err, chain.ErrRPCUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
