package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Hussein135-coder/souriana-extract-bot/service"
)

// HealthHandler serves the liveness surface: a plaintext root for simple
// probes and JSON health/status routes for anything that wants detail.
type HealthHandler struct {
	website   *service.WebsiteService
	store     *service.ConversationStore
	startedAt time.Time
}

func NewHealthHandler(website *service.WebsiteService, store *service.ConversationStore) *HealthHandler {
	return &HealthHandler{
		website:   website,
		store:     store,
		startedAt: time.Now(),
	}
}

// Root confirms liveness in plain text.
func (h *HealthHandler) Root(c *gin.Context) {
	c.String(http.StatusOK, "Telegram bot is running!")
}

// Health returns a machine-readable liveness payload.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Status exposes the backend session state and the number of chats with a
// record awaiting confirmation.
func (h *HealthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"login_status":   h.website.Status(),
		"has_token":      h.website.HasToken(),
		"active_chats":   h.store.Count(),
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}
