package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yametee/storefront-api/internal/domain/catalog"
)

// CatalogHandler handles the admin catalog endpoints
type CatalogHandler struct {
	catalog *catalog.Service
	logger  logrus.FieldLogger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(svc *catalog.Service, logger logrus.FieldLogger) *CatalogHandler {
	return &CatalogHandler{catalog: svc, logger: logger}
}

// SetStock handles PATCH /admin/variants/:id/stock
func (h *CatalogHandler) SetStock(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		StockQuantity *int `json:"stock_quantity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	variant, err := h.catalog.SetStock(c.Request.Context(), id, *req.StockQuantity)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock updated successfully",
		"data":    variant,
	})
}

// StockMovements handles GET /admin/variants/:id/movements
func (h *CatalogHandler) StockMovements(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	movements, err := h.catalog.StockMovements(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock movements retrieved successfully",
		"data":    movements,
	})
}

// CreateProduct handles POST /admin/products
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var req catalog.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Product created successfully",
		"data":    product,
	})
}

// ListProducts handles GET /admin/products
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	page, limit := pageParams(c)

	products, total, err := h.catalog.ListProducts(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Products retrieved successfully",
		"data":       products,
		"pagination": newPagination(page, limit, total),
	})
}

// GetProduct handles GET /admin/products/:id
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Product retrieved successfully",
		"data":    product,
	})
}

// CreateCollection handles POST /admin/collections
func (h *CatalogHandler) CreateCollection(c *gin.Context) {
	var req catalog.CollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	collection, err := h.catalog.CreateCollection(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Collection created successfully",
		"data":    collection,
	})
}

// UpdateCollection handles PUT /admin/collections/:id
func (h *CatalogHandler) UpdateCollection(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req catalog.CollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	collection, err := h.catalog.UpdateCollection(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Collection updated successfully",
		"data":    collection,
	})
}

// ListCollections handles GET /admin/collections
func (h *CatalogHandler) ListCollections(c *gin.Context) {
	collections, err := h.catalog.ListCollections(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Collections retrieved successfully",
		"data":    collections,
	})
}

// GetCollection handles GET /admin/collections/:id
func (h *CatalogHandler) GetCollection(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	collection, err := h.catalog.GetCollection(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Collection retrieved successfully",
		"data":    collection,
	})
}
