package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yametee/storefront-api/internal/config"
	"github.com/yametee/storefront-api/internal/domain/cart"
	"github.com/yametee/storefront-api/internal/domain/catalog"
	"github.com/yametee/storefront-api/internal/domain/checkout"
	"github.com/yametee/storefront-api/internal/domain/order"
	"github.com/yametee/storefront-api/internal/domain/payment"
	"github.com/yametee/storefront-api/internal/domain/promotion"
	"github.com/yametee/storefront-api/internal/infrastructure/database/postgres"
	"github.com/yametee/storefront-api/internal/infrastructure/database/redis"
	"github.com/yametee/storefront-api/internal/infrastructure/memory"
	"github.com/yametee/storefront-api/internal/infrastructure/messaging"
	httpserver "github.com/yametee/storefront-api/internal/interfaces/http"
	"github.com/yametee/storefront-api/internal/interfaces/http/handlers"
	"github.com/yametee/storefront-api/internal/interfaces/http/middleware"
	"github.com/yametee/storefront-api/internal/interfaces/http/routes"
	"github.com/yametee/storefront-api/internal/pkg/auth"
	"github.com/yametee/storefront-api/internal/pkg/email"
	"github.com/yametee/storefront-api/internal/pkg/logger"
	"github.com/yametee/storefront-api/internal/pkg/metrics"
	"github.com/yametee/storefront-api/internal/pkg/pdf"
	"github.com/yametee/storefront-api/internal/pkg/tracing"
)

// stores is the storage driver selected by configuration
type stores struct {
	catalog    catalog.Store
	carts      cart.Store
	promotions promotion.Store
	orders     order.Store
	guard      order.EventGuard
	limiter    middleware.Limiter
	health     map[string]httpserver.HealthCheck
	closers    []func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	log := logger.New(cfg.Logging)
	log.WithFields(logrus.Fields{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
		"storage":     cfg.Storage.Driver,
	}).Info("Starting storefront API")

	shutdownTracing, err := tracing.InitTracerProvider(cfg.App.Name, cfg.Tracing.JaegerEndpoint, cfg.Tracing.SampleRatio)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize tracing")
	}

	st, err := openStores(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open storage")
	}

	m := metrics.New()

	var publisher order.Publisher = order.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := messaging.NewKafkaPublisher(cfg.Kafka, log)
		st.closers = append(st.closers, kp.Close)
		publisher = kp
	}

	gateway := payment.NewPayMongoGateway(cfg.PayMongo, cfg.IsDevelopment(), log, m)
	hasher := auth.NewCartTokenHasher(cfg.Security.CartTokenKey)
	jwtManager := auth.NewJWTManager(cfg.JWT)

	catalogService := catalog.NewService(st.catalog, log)
	cartService := cart.NewService(st.carts, st.catalog, hasher, log)
	promotionService := promotion.NewService(st.promotions, log, m)

	orderService := order.NewService(st.orders, gateway, order.Options{
		Guard:     st.guard,
		Publisher: publisher,
		Notifier:  email.NewService(cfg.Email, cfg.App.BaseURL, nil, log),
		Receipts:  pdf.NewService(cfg),
		ReplayTTL: cfg.Security.WebhookReplayTTL,
		Metrics:   m,
	}, log)

	checkoutService := checkout.NewService(checkout.Dependencies{
		Carts:      cartService,
		Catalog:    st.catalog,
		Promotions: promotionService,
		Orders:     st.orders,
		Gateway:    gateway,
		Publisher:  publisher,
		Metrics:    m,
	}, cfg, log)

	server := httpserver.NewServer(cfg, httpserver.Options{
		Handlers: routes.Handlers{
			Cart:       handlers.NewCartHandler(cartService, log),
			Checkout:   handlers.NewCheckoutHandler(checkoutService, log),
			Order:      handlers.NewOrderHandler(orderService, log),
			Webhook:    handlers.NewWebhookHandler(orderService, log),
			Catalog:    handlers.NewCatalogHandler(catalogService, log),
			Promotion:  handlers.NewPromotionHandler(promotionService, log),
			JWTManager: jwtManager,
		},
		Limiter:      st.limiter,
		Metrics:      m,
		HealthChecks: st.health,
	}, log)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.WithError(err).Error("Failed to shutdown HTTP server gracefully")
	}
	for i := len(st.closers) - 1; i >= 0; i-- {
		if err := st.closers[i](); err != nil {
			log.WithError(err).Warn("Failed to close resource")
		}
	}
	if err := shutdownTracing(ctx); err != nil {
		log.WithError(err).Warn("Failed to flush traces")
	}

	log.Info("Server shutdown completed")
}

func openStores(cfg *config.Config, log *logrus.Logger) (*stores, error) {
	if cfg.Storage.Driver == "memory" {
		mem := memory.NewStore()
		if err := mem.Seed(context.Background()); err != nil {
			return nil, err
		}
		log.Warn("Using in-memory storage, data is lost on restart")
		return &stores{
			catalog:    mem.Catalog(),
			carts:      mem.Carts(),
			promotions: mem.Promotions(),
			orders:     mem.Orders(),
			guard:      memory.NewEventGuard(),
			limiter:    memory.NewRateLimiter(),
			health: map[string]httpserver.HealthCheck{
				"storage": func(context.Context) error { return mem.Ping() },
			},
		}, nil
	}

	db, err := postgres.NewConnection(cfg, log)
	if err != nil {
		return nil, err
	}
	rdb, err := redis.NewConnection(cfg, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	migration := postgres.NewMigration(db.GetDB(), log)
	if err := migration.RunAutoMigrations(); err != nil {
		return nil, err
	}
	if err := migration.CreateIndexes(); err != nil {
		log.WithError(err).Warn("Index creation failed")
	}
	if cfg.IsDevelopment() {
		if err := migration.SeedInitialData(); err != nil {
			log.WithError(err).Warn("Data seeding failed")
		}
	}

	gdb := db.GetDB()
	return &stores{
		catalog:    postgres.NewCatalogRepository(gdb),
		carts:      postgres.NewCartRepository(gdb),
		promotions: postgres.NewPromotionRepository(gdb),
		orders:     postgres.NewOrderRepository(gdb),
		guard:      redis.NewWebhookGuard(rdb.Redis),
		limiter:    redis.NewRateLimiter(rdb.Redis),
		health: map[string]httpserver.HealthCheck{
			"database": func(context.Context) error { return db.Health() },
			"redis":    rdb.Health,
		},
		closers: []func() error{db.Close, rdb.Close},
	}, nil
}
