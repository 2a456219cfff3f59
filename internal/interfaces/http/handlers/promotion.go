package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yametee/storefront-api/internal/domain/promotion"
)

// PromotionHandler handles the admin promotion endpoints
type PromotionHandler struct {
	promotions *promotion.Service
	logger     logrus.FieldLogger
}

// NewPromotionHandler creates a new promotion handler
func NewPromotionHandler(svc *promotion.Service, logger logrus.FieldLogger) *PromotionHandler {
	return &PromotionHandler{promotions: svc, logger: logger}
}

// Create handles POST /admin/promotions
func (h *PromotionHandler) Create(c *gin.Context) {
	var req promotion.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	p, err := h.promotions.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Promotion created successfully",
		"data":    p,
	})
}

// List handles GET /admin/promotions
func (h *PromotionHandler) List(c *gin.Context) {
	page, limit := pageParams(c)

	ps, total, err := h.promotions.List(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Promotions retrieved successfully",
		"data":       ps,
		"pagination": newPagination(page, limit, total),
	})
}

// Get handles GET /admin/promotions/:id
func (h *PromotionHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	p, err := h.promotions.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Promotion retrieved successfully",
		"data":    p,
	})
}

// Update handles PUT /admin/promotions/:id
func (h *PromotionHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req promotion.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	p, err := h.promotions.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Promotion updated successfully",
		"data":    p,
	})
}

// Delete handles DELETE /admin/promotions/:id
func (h *PromotionHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.promotions.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Promotion deleted successfully",
	})
}
