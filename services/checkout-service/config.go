package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	aws_pkg "github.com/bmr-suspension/storefront-backend/pkg/aws"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/database"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/notification"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/paypal"
)

const (
	dbSecretName     = "checkout/DB_CREDENTIALS"
	paypalSecretName = "checkout/PAYPAL_CREDENTIALS"
)

type Config struct {
	Port   string
	AppEnv string

	Postgres database.PostgresConfig

	PayPal  paypal.Config
	SiteURL string

	// OrderServiceURL, when set, sends order creation to a remote
	// create-order endpoint instead of writing in-process.
	OrderServiceURL    string
	GatewayTimeout     time.Duration
	OrderCreateTimeout time.Duration

	SMTP          notification.SMTPConfig
	EmailQueueURL string
	EmailWorkers  int

	PendingOrderBackend string
	PendingOrderTTL     time.Duration
	PendingOrderTable   string
	RedisURL            string

	OrderTopicArn     string
	StripeAPIKey      string
	JWTSecret         string
	AllowedOrigins    []string
	CloudWatchEnabled bool
	UseAWSSecrets     bool

	// ServiceToken guards the create-order endpoint and is sent by the
	// remote order client.
	ServiceToken string
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:   getEnv("PORT", "8080"),
		AppEnv: getEnv("APP_ENV", "production"),
		Postgres: database.PostgresConfig{
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   os.Getenv("POSTGRES_DB"),
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),
		},
		PayPal: paypal.Config{
			ClientID:     os.Getenv("PAYPAL_CLIENT_ID"),
			ClientSecret: os.Getenv("PAYPAL_CLIENT_SECRET"),
			Mode:         getEnv("PAYPAL_MODE", "sandbox"),
			BaseURL:      os.Getenv("PAYPAL_API_BASE"),
		},
		SiteURL:            getEnv("SITE_URL", "http://localhost:3000"),
		OrderServiceURL:    os.Getenv("ORDER_SERVICE_URL"),
		GatewayTimeout:     getDuration("GATEWAY_TIMEOUT", 30*time.Second),
		OrderCreateTimeout: getDuration("ORDER_CREATE_TIMEOUT", 30*time.Second),
		SMTP: notification.SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     os.Getenv("SMTP_FROM"),
		},
		EmailQueueURL:       os.Getenv("EMAIL_QUEUE_URL"),
		EmailWorkers:        getInt("EMAIL_WORKERS", 4),
		PendingOrderBackend: strings.ToLower(getEnv("PENDING_ORDER_BACKEND", "postgres")),
		PendingOrderTTL:     getDuration("PENDING_ORDER_TTL", 3*time.Hour),
		PendingOrderTable:   getEnv("PENDING_ORDER_TABLE", "PendingOrders"),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		OrderTopicArn:       os.Getenv("ORDER_SNS_TOPIC_ARN"),
		StripeAPIKey:        os.Getenv("STRIPE_API_KEY"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		ServiceToken:        os.Getenv("SERVICE_TOKEN"),
		AllowedOrigins:      splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		CloudWatchEnabled:   os.Getenv("CLOUDWATCH_ENABLED") == "true",
		UseAWSSecrets:       os.Getenv("AWS_USE_SECRETS") == "true",
	}
	cfg.PayPal.Timeout = cfg.GatewayTimeout

	if cfg.UseAWSSecrets {
		if awsCfg, err := aws_pkg.LoadAWSConfig(context.Background()); err == nil {
			applySecrets(context.Background(), cfg, aws_pkg.NewSecretsClient(awsCfg))
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applySecrets overrides DB and PayPal credentials from Secrets Manager.
// Missing or malformed secrets leave the env values in place.
func applySecrets(ctx context.Context, cfg *Config, sm aws_pkg.SecretGetter) {
	if m, err := aws_pkg.GetSecretMap(ctx, sm, dbSecretName); err == nil {
		override(&cfg.Postgres.User, m["POSTGRES_USER"])
		override(&cfg.Postgres.Password, m["POSTGRES_PASSWORD"])
		override(&cfg.Postgres.DBName, m["POSTGRES_DB"])
		override(&cfg.Postgres.Host, m["POSTGRES_HOST"])
		override(&cfg.Postgres.Port, m["POSTGRES_PORT"])
	}
	if m, err := aws_pkg.GetSecretMap(ctx, sm, paypalSecretName); err == nil {
		override(&cfg.PayPal.ClientID, m["PAYPAL_CLIENT_ID"])
		override(&cfg.PayPal.ClientSecret, m["PAYPAL_CLIENT_SECRET"])
	}
}

func (c *Config) validate() error {
	if c.Postgres.User == "" || c.Postgres.Password == "" || c.Postgres.DBName == "" || c.Postgres.Host == "" {
		return fmt.Errorf("database config incomplete")
	}
	switch c.PendingOrderBackend {
	case "postgres", "redis", "dynamodb":
	default:
		return fmt.Errorf("unknown PENDING_ORDER_BACKEND %q", c.PendingOrderBackend)
	}
	if c.PendingOrderTTL <= 0 {
		return fmt.Errorf("PENDING_ORDER_TTL must be positive")
	}
	return nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return fallback
}

// getDuration accepts Go durations ("90s") or whole seconds ("90").
func getDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
