package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yametee/storefront-api/internal/domain/order"
	"github.com/yametee/storefront-api/internal/interfaces/http/middleware"
)

// OrderHandler handles order endpoints
type OrderHandler struct {
	orders *order.Service
	logger logrus.FieldLogger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders *order.Service, logger logrus.FieldLogger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// OrderSummary is the shopper-facing view of an order
type OrderSummary struct {
	OrderNumber   string              `json:"order_number"`
	Status        order.OrderStatus   `json:"status"`
	PaymentStatus order.PaymentStatus `json:"payment_status"`
	PaymentMethod string              `json:"payment_method"`
	Currency      string              `json:"currency"`
	Items         []order.OrderItem   `json:"items"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	DiscountTotal decimal.Decimal     `json:"discount_total"`
	ShippingFee   decimal.Decimal     `json:"shipping_fee"`
	GrandTotal    decimal.Decimal     `json:"grand_total"`
	CreatedAt     time.Time           `json:"created_at"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	ShippedAt     *time.Time          `json:"shipped_at,omitempty"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
	CancelledAt   *time.Time          `json:"cancelled_at,omitempty"`
}

func summarize(o *order.Order) OrderSummary {
	return OrderSummary{
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		Currency:      o.Currency,
		Items:         o.Items,
		Subtotal:      o.Subtotal,
		DiscountTotal: o.DiscountTotal,
		ShippingFee:   o.ShippingFee,
		GrandTotal:    o.GrandTotal,
		CreatedAt:     o.CreatedAt,
		PaidAt:        o.PaidAt,
		ShippedAt:     o.ShippedAt,
		CompletedAt:   o.CompletedAt,
		CancelledAt:   o.CancelledAt,
	}
}

// GetOrder handles GET /orders/:orderNumber, the page the payment gateway
// redirects the shopper back to
func (h *OrderHandler) GetOrder(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order retrieved successfully",
		"data":    summarize(o),
	})
}

// AdminListOrders handles GET /admin/orders
func (h *OrderHandler) AdminListOrders(c *gin.Context) {
	var req order.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.orders.List(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Orders retrieved successfully",
		"data":    resp,
	})
}

// AdminGetOrder handles GET /admin/orders/:orderNumber
func (h *OrderHandler) AdminGetOrder(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order retrieved successfully",
		"data":    o,
	})
}

// AdminUpdateOrder handles PATCH /admin/orders/:orderNumber
func (h *OrderHandler) AdminUpdateOrder(c *gin.Context) {
	var upd order.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, err)
		return
	}
	upd.Actor = adminActor(c)

	o, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("orderNumber"), upd)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order updated successfully",
		"data":    o,
	})
}

// AdminReceipt handles GET /admin/orders/:orderNumber/receipt
func (h *OrderHandler) AdminReceipt(c *gin.Context) {
	number := c.Param("orderNumber")
	doc, err := h.orders.Receipt(c.Request.Context(), number)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="receipt-%s.pdf"`, number))
	c.Data(http.StatusOK, "application/pdf", doc)
}

// AdminListReconciliations handles GET /admin/reconciliations?status=OPEN
func (h *OrderHandler) AdminListReconciliations(c *gin.Context) {
	status := order.ReconciliationStatus(c.Query("status"))

	records, err := h.orders.ListReconciliations(c.Request.Context(), status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Reconciliations retrieved successfully",
		"data":    records,
	})
}

// AdminResolveReconciliation handles POST /admin/reconciliations/:id/resolve
func (h *OrderHandler) AdminResolveReconciliation(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Note string `json:"note" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	rec, err := h.orders.ResolveReconciliation(c.Request.Context(), id, req.Note, adminActor(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Reconciliation resolved",
		"data":    rec,
	})
}

func adminActor(c *gin.Context) string {
	if email, ok := middleware.GetUserEmailFromContext(c); ok && email != "" {
		return "admin:" + email
	}
	return "admin"
}
