package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Stripe    StripeConfig
	Email     EmailConfig
	Auth      AuthConfig
	Frontend  FrontendConfig
	Reconcile ReconcileConfig
}

// ServerConfig carries no write timeout: the SSE stream holds its response
// open indefinitely.
type ServerConfig struct {
	Port        string
	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
	// BalanceLockTTL bounds how long a publish/patch decision may hold
	// the per-(user, product type) balance lock.
	BalanceLockTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type EmailConfig struct {
	Provider    string // "ses" or "noop"
	FromAddress string
	FromName    string
	SESRegion   string
	SESKeyID    string
	SESSecret   string
}

type AuthConfig struct {
	OIDCIssuer string
}

type FrontendConfig struct {
	PublicURL string
	// APIPublicURL is this service's externally reachable base URL, used
	// for tracking-pixel links embedded in outbound email.
	APIPublicURL string
}

type ReconcileConfig struct {
	Interval time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", ":8080"),
			ReadTimeout: 15 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "invite_user"),
			Password:     getEnv("DB_PASSWORD", "invite_pass"),
			Database:     getEnv("DB_NAME", "invites"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", "localhost:6379"),
			BalanceLockTTL: time.Duration(getEnvInt("BALANCE_LOCK_TTL_SECONDS", 10)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			Topic:   getEnv("KAFKA_TOPIC_INVITATIONS", "invitation-events"),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Email: EmailConfig{
			Provider:    getEnv("EMAIL_PROVIDER", "noop"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "invites@example.com"),
			FromName:    getEnv("EMAIL_FROM_NAME", "Invites"),
			SESRegion:   getEnv("SES_REGION", "eu-west-1"),
			SESKeyID:    getEnv("SES_ACCESS_KEY_ID", ""),
			SESSecret:   getEnv("SES_SECRET_ACCESS_KEY", ""),
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
		},
		Frontend: FrontendConfig{
			PublicURL:    getEnv("FRONTEND_PUBLIC_URL", "http://localhost:3000"),
			APIPublicURL: getEnv("API_PUBLIC_URL", "http://localhost:8080"),
		},
		Reconcile: ReconcileConfig{
			Interval: time.Duration(getEnvInt("RECONCILE_INTERVAL_MINUTES", 5)) * time.Minute,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
