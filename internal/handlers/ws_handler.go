package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"donation-backend/internal/repository"
	"donation-backend/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origin policy is enforced by the CORS middleware on the HTTP side
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler pushes intent status changes over a websocket
type WSHandler struct {
	intents *services.IntentService
	push    *services.PushService
}

// NewWSHandler creates a new websocket handler
func NewWSHandler(intents *services.IntentService, push *services.PushService) *WSHandler {
	return &WSHandler{
		intents: intents,
		push:    push,
	}
}

// IntentStatus handles GET /api/v1/intents/:id/ws. The current status is
// sent immediately so a client connecting after a transition still sees it.
func (h *WSHandler) IntentStatus(c *gin.Context) {
	intentID := c.Param("id")
	view, err := h.intents.Get(c.Request.Context(), intentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "intent not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	sub := h.push.Subscribe(intentID, conn)

	event := &services.IntentStatusEvent{
		IntentID:      intentID,
		Status:        string(view.Intent.Status),
		Confirmations: view.Intent.Confirmations,
	}
	if view.Intent.TxHash != nil {
		event.TxHash = *view.Intent.TxHash
	}
	if view.Intent.DonationID != nil {
		event.DonationID = *view.Intent.DonationID
	}
	if err := sub.Send(event); err != nil {
		h.push.Unsubscribe(intentID, sub)
		conn.Close()
		return
	}

	// drain reads so close frames are processed; the connection is push-only
	go func() {
		defer func() {
			h.push.Unsubscribe(intentID, sub)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
