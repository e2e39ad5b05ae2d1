package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"krishibondhu/internal/infrastructure"
	"krishibondhu/internal/usecases"
)

type AdminHandler struct {
	usage    *usecases.UsageUsecase
	telegram *infrastructure.TelegramAdvisor
	limiter  *infrastructure.KeyedLimiter
}

func NewAdminHandler(usage *usecases.UsageUsecase, telegram *infrastructure.TelegramAdvisor, limiter *infrastructure.KeyedLimiter) *AdminHandler {
	return &AdminHandler{
		usage:    usage,
		telegram: telegram,
		limiter:  limiter,
	}
}

// GetUsageSummary returns advisory call and fallback totals per operation
func (h *AdminHandler) GetUsageSummary(c *gin.Context) {
	summary, err := h.usage.Summary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch usage"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": summary})
}

// GetTelegramStatus reports whether the advisory bot is polling
func (h *AdminHandler) GetTelegramStatus(c *gin.Context) {
	if h.telegram == nil {
		c.JSON(http.StatusOK, gin.H{"configured": false, "connected": false})
		return
	}
	connected, botName := h.telegram.Status()
	c.JSON(http.StatusOK, gin.H{
		"configured": true,
		"connected":  connected,
		"bot_name":   "@" + botName,
	})
}

// ResetRateLimit clears the request rate limit for one user
func (h *AdminHandler) ResetRateLimit(c *gin.Context) {
	userID := SanitizeString(c.Param("userID"))
	if !ValidateLength(userID, 1, MaxFieldLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	h.limiter.Reset(userID)
	c.JSON(http.StatusOK, gin.H{"status": "reset", "user_id": userID})
}
