package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yametee/storefront-api/internal/domain/cart"
	"github.com/yametee/storefront-api/internal/interfaces/http/middleware"
)

// CartHandler handles cart endpoints
type CartHandler struct {
	carts  *cart.Service
	logger logrus.FieldLogger
}

// NewCartHandler creates a new cart handler
func NewCartHandler(carts *cart.Service, logger logrus.FieldLogger) *CartHandler {
	return &CartHandler{carts: carts, logger: logger}
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	view, err := h.carts.GetCart(c.Request.Context(), middleware.CartOwner(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart retrieved successfully",
		"data":    view,
	})
}

// AddItem handles POST /cart/items. The quantity is added to the line.
func (h *CartHandler) AddItem(c *gin.Context) {
	var req cart.AddLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.carts.AddOrUpdateLine(c.Request.Context(), middleware.CartOwner(c), req.VariantID, req.Quantity, cart.ModeDelta)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item added to cart successfully",
		"data":    view,
	})
}

// UpdateItem handles PUT /cart/items/:variantId. The quantity replaces the line's.
func (h *CartHandler) UpdateItem(c *gin.Context) {
	variantID, ok := parseIDParam(c, "variantId")
	if !ok {
		return
	}

	var req cart.UpdateLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.carts.AddOrUpdateLine(c.Request.Context(), middleware.CartOwner(c), variantID, *req.Quantity, cart.ModeAbsolute)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart item updated successfully",
		"data":    view,
	})
}

// RemoveItem handles DELETE /cart/items/:variantId
func (h *CartHandler) RemoveItem(c *gin.Context) {
	variantID, ok := parseIDParam(c, "variantId")
	if !ok {
		return
	}

	view, err := h.carts.RemoveLine(c.Request.Context(), middleware.CartOwner(c), variantID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item removed from cart successfully",
		"data":    view,
	})
}

// ClearCart handles DELETE /cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), middleware.CartOwner(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart cleared successfully",
	})
}

// MergeCart handles POST /cart/merge. It folds the caller's guest session
// cart into their customer cart after login.
func (h *CartHandler) MergeCart(c *gin.Context) {
	customerID, ok := middleware.GetCustomerIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return
	}

	owner := middleware.CartOwner(c)
	view, err := h.carts.MergeGuestIntoCustomer(c.Request.Context(), owner.SessionToken, customerID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart merged successfully",
		"data":    view,
	})
}
