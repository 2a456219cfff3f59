// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the storefront API
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Security SecurityConfig
	PayMongo PayMongoConfig
	Checkout CheckoutConfig
	Kafka    KafkaConfig
	Tracing  TracingConfig
	Metrics  MetricsConfig
	Email    EmailConfig
	Logging  LoggingConfig
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Debug       bool
	BaseURL     string
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// StorageConfig selects the backing store. "postgres" uses gorm + redis,
// "memory" keeps everything in process (local development and demos).
type StorageConfig struct {
	Driver string
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	Name         string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	LogQueries   bool
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// JWTConfig contains the settings used to validate bearer tokens
type JWTConfig struct {
	Secret            string
	Issuer            string
	AccessTokenExpiry time.Duration
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	TrustedProxies     []string
	CartCookieName     string
	CartCookieMaxAge   time.Duration
	CartTokenKey       string
	WebhookReplayTTL   time.Duration
}

// PayMongoConfig contains payment gateway configuration
type PayMongoConfig struct {
	SecretKey          string
	WebhookSecret      string
	BaseURL            string
	Timeout            time.Duration
	SignatureTolerance time.Duration
	LiveMode           bool
}

// CheckoutConfig contains pricing and redirect settings for checkout
type CheckoutConfig struct {
	ShippingFee    decimal.Decimal
	Currency       string
	DefaultChannel string
	SuccessURL     string
	FailedURL      string
}

// KafkaConfig contains order event publishing configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// TracingConfig contains OpenTelemetry configuration
type TracingConfig struct {
	JaegerEndpoint string
	SampleRatio    float64
}

// MetricsConfig contains Prometheus configuration
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// EmailConfig contains SMTP configuration for order notifications
type EmailConfig struct {
	FromEmail string
	FromName  string
	SMTPHost  string
	SMTPPort  int
	SMTPUser  string
	SMTPPass  string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	shippingFee, err := decimal.NewFromString(getEnv("CHECKOUT_SHIPPING_FEE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHECKOUT_SHIPPING_FEE: %w", err)
	}

	baseURL := getEnv("APP_BASE_URL", "http://localhost:3000")

	config := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Yametee Storefront API"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
			Debug:       getEnvAsBool("APP_DEBUG", true),
			BaseURL:     baseURL,
		},
		Server: ServerConfig{
			Port:           getEnv("APP_PORT", "8080"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			MaxBodyBytes:   getEnvAsInt64("SERVER_MAX_BODY_BYTES", 1<<20),
		},
		Storage: StorageConfig{
			Driver: getEnv("STORAGE_DRIVER", "postgres"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Name:         getEnv("DB_NAME", "storefront"),
			User:         getEnv("DB_USER", "storefront"),
			Password:     getEnv("DB_PASSWORD", "storefront"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 300*time.Second),
			LogQueries:   getEnvAsBool("DB_LOG_QUERIES", false),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", "dev-only-secret-change-me-in-production-please"),
			Issuer:            getEnv("JWT_ISSUER", "yametee"),
			AccessTokenExpiry: getEnvAsDuration("JWT_ACCESS_EXPIRE", 24*time.Hour),
		},
		Security: SecurityConfig{
			RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
			CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			CORSAllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			CORSAllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Cart-Session"}),
			TrustedProxies:     getEnvAsSlice("TRUSTED_PROXIES", []string{}),
			CartCookieName:     getEnv("CART_COOKIE_NAME", "cart_session_id"),
			CartCookieMaxAge:   getEnvAsDuration("CART_COOKIE_MAX_AGE", 30*24*time.Hour),
			CartTokenKey:       getEnv("CART_TOKEN_KEY", "dev-cart-token-key"),
			WebhookReplayTTL:   getEnvAsDuration("WEBHOOK_REPLAY_TTL", 72*time.Hour),
		},
		PayMongo: PayMongoConfig{
			SecretKey:          getEnv("PAYMONGO_SECRET_KEY", ""),
			WebhookSecret:      getEnv("PAYMONGO_WEBHOOK_SECRET", ""),
			BaseURL:            getEnv("PAYMONGO_BASE_URL", "https://api.paymongo.com"),
			Timeout:            getEnvAsDuration("PAYMONGO_TIMEOUT", 15*time.Second),
			SignatureTolerance: getEnvAsDuration("PAYMONGO_SIGNATURE_TOLERANCE", 5*time.Minute),
			LiveMode:           getEnvAsBool("PAYMONGO_LIVE_MODE", false),
		},
		Checkout: CheckoutConfig{
			ShippingFee:    shippingFee,
			Currency:       getEnv("CHECKOUT_CURRENCY", "PHP"),
			DefaultChannel: getEnv("CHECKOUT_DEFAULT_CHANNEL", "web"),
			SuccessURL:     getEnv("CHECKOUT_SUCCESS_URL", baseURL+"/order/%s?status=success"),
			FailedURL:      getEnv("CHECKOUT_FAILED_URL", baseURL+"/checkout?status=failed"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsSlice("KAFKA_BROKERS", []string{}),
			Topic:   getEnv("KAFKA_ORDER_TOPIC", "storefront.orders"),
		},
		Tracing: TracingConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
			SampleRatio:    getEnvAsFloat("TRACING_SAMPLE_RATIO", 1.0),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		Email: EmailConfig{
			FromEmail: getEnv("FROM_EMAIL", "orders@yametee.ph"),
			FromName:  getEnv("FROM_NAME", "Yametee"),
			SMTPHost:  getEnv("SMTP_HOST", ""),
			SMTPPort:  getEnvAsInt("SMTP_PORT", 587),
			SMTPUser:  getEnv("SMTP_USER", ""),
			SMTPPass:  getEnv("SMTP_PASS", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "debug"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	switch c.Storage.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("DB_NAME is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("DB_USER is required")
		}
		if c.Redis.Host == "" {
			return fmt.Errorf("REDIS_HOST is required")
		}
	case "memory":
	default:
		return fmt.Errorf("STORAGE_DRIVER must be postgres or memory, got %q", c.Storage.Driver)
	}

	if c.Server.Port == "" {
		return fmt.Errorf("APP_PORT is required")
	}

	if c.Checkout.ShippingFee.IsNegative() {
		return fmt.Errorf("CHECKOUT_SHIPPING_FEE must not be negative")
	}

	if c.IsProduction() {
		if c.PayMongo.SecretKey == "" {
			return fmt.Errorf("PAYMONGO_SECRET_KEY is required in production")
		}
		if c.PayMongo.WebhookSecret == "" {
			return fmt.Errorf("PAYMONGO_WEBHOOK_SECRET is required in production")
		}
		if c.Security.CartTokenKey == "dev-cart-token-key" {
			return fmt.Errorf("CART_TOKEN_KEY must be set in production")
		}
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
