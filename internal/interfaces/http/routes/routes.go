package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/yametee/storefront-api/internal/config"
	"github.com/yametee/storefront-api/internal/interfaces/http/handlers"
	"github.com/yametee/storefront-api/internal/interfaces/http/middleware"
	"github.com/yametee/storefront-api/internal/pkg/auth"
)

// Handlers bundles every handler the API exposes
type Handlers struct {
	Cart       *handlers.CartHandler
	Checkout   *handlers.CheckoutHandler
	Order      *handlers.OrderHandler
	Webhook    *handlers.WebhookHandler
	Catalog    *handlers.CatalogHandler
	Promotion  *handlers.PromotionHandler
	JWTManager *auth.JWTManager
}

// SetupRoutes registers every /api/v1 route
func SetupRoutes(rg *gin.RouterGroup, h Handlers, cfg *config.Config) {
	SetupCartRoutes(rg, h, cfg)
	SetupCheckoutRoutes(rg, h, cfg)
	SetupOrderRoutes(rg, h)
	SetupWebhookRoutes(rg, h)
	SetupAdminRoutes(rg, h)
}

// SetupCartRoutes sets up cart routes. Guests are identified by the cart
// session, customers by their access token.
func SetupCartRoutes(rg *gin.RouterGroup, h Handlers, cfg *config.Config) {
	cart := rg.Group("/cart")
	cart.Use(middleware.OptionalAuthMiddleware(h.JWTManager))
	cart.Use(middleware.CartSession(cfg.Security, cfg.IsProduction()))
	{
		cart.GET("", h.Cart.GetCart)
		cart.DELETE("", h.Cart.ClearCart)
		cart.POST("/items", h.Cart.AddItem)
		cart.PUT("/items/:variantId", h.Cart.UpdateItem)
		cart.DELETE("/items/:variantId", h.Cart.RemoveItem)
	}

	merge := rg.Group("/cart")
	merge.Use(middleware.AuthMiddleware(h.JWTManager))
	merge.Use(middleware.CartSession(cfg.Security, cfg.IsProduction()))
	{
		merge.POST("/merge", h.Cart.MergeCart)
	}
}

// SetupCheckoutRoutes sets up checkout routes
func SetupCheckoutRoutes(rg *gin.RouterGroup, h Handlers, cfg *config.Config) {
	checkout := rg.Group("/checkout")
	checkout.Use(middleware.OptionalAuthMiddleware(h.JWTManager))
	checkout.Use(middleware.CartSession(cfg.Security, cfg.IsProduction()))
	{
		checkout.POST("", h.Checkout.Checkout)
		checkout.POST("/preview", h.Checkout.Preview)
	}
}

// SetupOrderRoutes sets up the shopper order routes
func SetupOrderRoutes(rg *gin.RouterGroup, h Handlers) {
	rg.GET("/orders/:orderNumber", h.Order.GetOrder)
}

// SetupWebhookRoutes sets up payment gateway webhooks. They authenticate by
// signature, not by token.
func SetupWebhookRoutes(rg *gin.RouterGroup, h Handlers) {
	webhooks := rg.Group("/webhooks")
	{
		webhooks.POST("/paymongo", h.Webhook.PayMongo)
	}
}

// SetupAdminRoutes sets up admin routes
func SetupAdminRoutes(rg *gin.RouterGroup, h Handlers) {
	admin := rg.Group("/admin")
	admin.Use(middleware.AuthMiddleware(h.JWTManager))
	admin.Use(middleware.AdminMiddleware())
	{
		orders := admin.Group("/orders")
		{
			orders.GET("", h.Order.AdminListOrders)
			orders.GET("/:orderNumber", h.Order.AdminGetOrder)
			orders.PATCH("/:orderNumber", h.Order.AdminUpdateOrder)
			orders.GET("/:orderNumber/receipt", h.Order.AdminReceipt)
		}

		reconciliations := admin.Group("/reconciliations")
		{
			reconciliations.GET("", h.Order.AdminListReconciliations)
			reconciliations.POST("/:id/resolve", h.Order.AdminResolveReconciliation)
		}

		variants := admin.Group("/variants")
		{
			variants.PATCH("/:id/stock", h.Catalog.SetStock)
			variants.GET("/:id/movements", h.Catalog.StockMovements)
		}

		products := admin.Group("/products")
		{
			products.POST("", h.Catalog.CreateProduct)
			products.GET("", h.Catalog.ListProducts)
			products.GET("/:id", h.Catalog.GetProduct)
		}

		collections := admin.Group("/collections")
		{
			collections.POST("", h.Catalog.CreateCollection)
			collections.GET("", h.Catalog.ListCollections)
			collections.GET("/:id", h.Catalog.GetCollection)
			collections.PUT("/:id", h.Catalog.UpdateCollection)
		}

		promotions := admin.Group("/promotions")
		{
			promotions.POST("", h.Promotion.Create)
			promotions.GET("", h.Promotion.List)
			promotions.GET("/:id", h.Promotion.Get)
			promotions.PUT("/:id", h.Promotion.Update)
			promotions.DELETE("/:id", h.Promotion.Delete)
		}
	}
}
