package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	AWS          AWSConfig
	X            XConfig
	Payment      PaymentConfig
	Verification VerificationConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	BaseURL            string // public base URL, used in x402 resource URLs and OAuth callbacks
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds dashboard session token settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the ad creative bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	AdsBucket            string
	PresignExpireMinutes int
}

// XConfig holds the X (Twitter) OAuth 1.0a application credentials.
type XConfig struct {
	APIKey         string
	APISecret      string
	CallbackURL    string
	TokenCryptoKey string // hex-encoded 32-byte key for AES-GCM token encryption at rest
}

// PaymentConfig holds x402 payment terms and the settlement facilitator.
type PaymentConfig struct {
	ServerWallet      string // receives rental payments
	Network           string // e.g. base-sepolia
	AssetContract     string // USDC contract address on that network
	MaxTimeoutSeconds int
	FacilitatorURL    string // optional; empty means payout intents are recorded only
}

// VerificationConfig holds the recurring ad-integrity check settings.
type VerificationConfig struct {
	CronSecret        string  // shared secret for the cron trigger endpoint
	RenderServiceURL  string  // headless browser screenshot service
	RenderTimeoutSec  int     // per-render timeout
	RendersPerSecond  float64 // rate limit toward the render service
	CooldownHours     int     // minimum gap between two checks of one rental
	IntervalHours     int     // worker ticker cadence
	Concurrency       int     // bounded per-rental worker pool
	Tolerance         float64 // fingerprint mismatch tolerance fraction
	BannerTopFraction float64 // portion of the render treated as the banner
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			BaseURL:            getEnv("BASE_URL", "http://localhost:8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "avenger"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			AdsBucket:            getEnv("AWS_S3_ADS_BUCKET", "avenger-ads-bucket"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		X: XConfig{
			APIKey:         getEnv("X_API_KEY", ""),
			APISecret:      getEnv("X_API_SECRET", ""),
			CallbackURL:    getEnv("X_CALLBACK_URL", ""),
			TokenCryptoKey: getEnv("X_TOKEN_CRYPTO_KEY", ""),
		},
		Payment: PaymentConfig{
			ServerWallet:      getEnv("PAYMENT_SERVER_WALLET", ""),
			Network:           getEnv("PAYMENT_NETWORK", "base-sepolia"),
			AssetContract:     getEnv("PAYMENT_ASSET_CONTRACT", "0x036CbD53842c5426634e7929541eC2318f3dCF7e"),
			MaxTimeoutSeconds: getEnvInt("PAYMENT_MAX_TIMEOUT_SEC", 300),
			FacilitatorURL:    getEnv("PAYMENT_FACILITATOR_URL", ""),
		},
		Verification: VerificationConfig{
			CronSecret:        getEnv("CRON_SECRET", ""),
			RenderServiceURL:  getEnv("RENDER_SERVICE_URL", "http://localhost:3001/screenshot"),
			RenderTimeoutSec:  getEnvInt("RENDER_TIMEOUT_SEC", 30),
			RendersPerSecond:  getEnvFloat("RENDERS_PER_SECOND", 1),
			CooldownHours:     getEnvInt("VERIFICATION_COOLDOWN_HOURS", 20),
			IntervalHours:     getEnvInt("VERIFICATION_INTERVAL_HOURS", 24),
			Concurrency:       getEnvInt("VERIFICATION_CONCURRENCY", 4),
			Tolerance:         getEnvFloat("VERIFICATION_TOLERANCE", 0.10),
			BannerTopFraction: getEnvFloat("BANNER_TOP_FRACTION", 0.20),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
