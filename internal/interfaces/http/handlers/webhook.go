package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yametee/storefront-api/internal/domain/order"
	"github.com/yametee/storefront-api/internal/domain/payment"
)

const paymongoSignatureHeader = "Paymongo-Signature"

// WebhookHandler receives payment gateway deliveries
type WebhookHandler struct {
	orders *order.Service
	logger logrus.FieldLogger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(orders *order.Service, logger logrus.FieldLogger) *WebhookHandler {
	return &WebhookHandler{orders: orders, logger: logger.WithField("component", "webhook")}
}

// PayMongo handles POST /webhooks/paymongo. A 2xx tells the gateway to stop
// retrying, so only verified and durably applied (or ignorable) events get one.
func (h *WebhookHandler) PayMongo(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read request body",
		})
		return
	}

	result, err := h.orders.HandleWebhook(c.Request.Context(), payload, c.GetHeader(paymongoSignatureHeader))
	switch {
	case errors.Is(err, payment.ErrInvalidSignature):
		h.logger.WithError(err).WithField("client_ip", c.ClientIP()).Warn("Rejected webhook with invalid signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	case errors.Is(err, payment.ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed webhook payload"})
		return
	case err != nil:
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"data":     result,
	})
}
