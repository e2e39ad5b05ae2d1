package http

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"krishibondhu/internal/entities"
	"krishibondhu/internal/infrastructure"
	"krishibondhu/internal/usecases"
)

const maxRequestBytes = 1 << 20

type Handler struct {
	advisory *usecases.AdvisoryService
	usage    *usecases.UsageUsecase
	logger   *zap.Logger
}

func NewHandler(advisory *usecases.AdvisoryService, usage *usecases.UsageUsecase, logger *zap.Logger) *Handler {
	return &Handler{
		advisory: advisory,
		usage:    usage,
		logger:   logger,
	}
}

// SetupRoutes registers the advisory API. telegram may be nil when no bot is configured.
func SetupRoutes(r *gin.Engine, advisory *usecases.AdvisoryService, usage *usecases.UsageUsecase, telegram *infrastructure.TelegramAdvisor, middleware *Middleware, logger *zap.Logger) {
	h := NewHandler(advisory, usage, logger)
	adminHandler := NewAdminHandler(usage, telegram, middleware.limiter)

	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog())
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(maxRequestBytes))
	r.Use(middleware.CORSMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(middleware.AuthRequired())
	api.Use(middleware.RateLimitPerUser())

	advisoryGroup := api.Group("/advisory")
	{
		advisoryGroup.GET("/usage", h.GetUsage)

		ops := advisoryGroup.Group("")
		ops.Use(middleware.QuotaRequired())
		ops.POST("/chat", h.Chat)
		ops.POST("/market", h.MarketInsights)
		ops.POST("/crops", middleware.RoleRequired(entities.UserRoleFarmer, entities.UserRoleAdmin), h.CropRecommendations)
		ops.POST("/warehouse", middleware.RoleRequired(entities.UserRoleWarehouse, entities.UserRoleAdmin), h.WarehouseOptimization)
		ops.POST("/delivery", middleware.RoleRequired(entities.UserRoleDeliveryPartner, entities.UserRoleAdmin), h.DeliveryOptimization)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.RoleRequired(entities.UserRoleAdmin))
	{
		admin.GET("/usage", adminHandler.GetUsageSummary)
		admin.GET("/telegram", adminHandler.GetTelegramStatus)
		admin.DELETE("/rate-limits/:userID", adminHandler.ResetRateLimit)
	}
}

func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if !bindRequest(c, &req) {
		return
	}
	c.JSON(http.StatusOK, h.advisory.GetChatResponse(c.Request.Context(), req.Message, req.Context, req.Model))
}

func (h *Handler) CropRecommendations(c *gin.Context) {
	var req cropsRequest
	if !bindRequest(c, &req) {
		return
	}
	c.JSON(http.StatusOK, h.advisory.GetCropRecommendations(c.Request.Context(), req.Location, req.Season, req.SoilType, req.Weather))
}

func (h *Handler) MarketInsights(c *gin.Context) {
	var req marketRequest
	if !bindRequest(c, &req) {
		return
	}
	c.JSON(http.StatusOK, h.advisory.GetMarketInsights(c.Request.Context(), req.Crops, req.Location))
}

func (h *Handler) WarehouseOptimization(c *gin.Context) {
	var req warehouseRequest
	if !bindRequest(c, &req) {
		return
	}
	c.JSON(http.StatusOK, h.advisory.GetWarehouseOptimization(c.Request.Context(), req.Inventory, req.Capacity, req.Weather))
}

func (h *Handler) DeliveryOptimization(c *gin.Context) {
	var req deliveryRequest
	if !bindRequest(c, &req) {
		return
	}
	c.JSON(http.StatusOK, h.advisory.GetDeliveryOptimization(c.Request.Context(), req.Orders, req.Location, req.Weather))
}

// GetUsage returns the caller's advisory usage today against the daily quota
func (h *Handler) GetUsage(c *gin.Context) {
	user, _ := currentUser(c)
	status, err := h.usage.GetQuotaStatus(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to fetch quota status", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch usage"})
		return
	}
	c.JSON(http.StatusOK, status)
}

type normalizer interface {
	normalize() string
}

// bindRequest decodes and validates the JSON body, writing the error response itself.
func bindRequest(c *gin.Context, req normalizer) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return false
	}
	if msg := req.normalize(); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return false
	}
	return true
}
