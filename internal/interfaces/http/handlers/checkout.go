package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yametee/storefront-api/internal/domain/checkout"
	"github.com/yametee/storefront-api/internal/interfaces/http/middleware"
)

// CheckoutHandler handles checkout endpoints
type CheckoutHandler struct {
	checkout *checkout.Service
	logger   logrus.FieldLogger
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(svc *checkout.Service, logger logrus.FieldLogger) *CheckoutHandler {
	return &CheckoutHandler{checkout: svc, logger: logger}
}

func (h *CheckoutHandler) bind(c *gin.Context) (checkout.Request, bool) {
	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return req, false
	}
	req.Owner = middleware.CartOwner(c)
	return req, true
}

// Checkout handles POST /checkout
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	result, err := h.checkout.Checkout(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Order created, redirect to payment",
		"data":    result,
	})
}

// Preview handles POST /checkout/preview. Nothing is persisted.
func (h *CheckoutHandler) Preview(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	quote, err := h.checkout.Preview(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Checkout summary calculated",
		"data":    quote,
	})
}
