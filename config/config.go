package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Auth modes.
const (
	AuthModeVerify  = "verify"
	AuthModeGateway = "gateway"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	AWS      AWSConfig
	Recall   RecallConfig
	Log      LogConfig
	Worker   WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string `env:"PORT" envDefault:"8080"`
	ReadTimeout        int    `env:"READ_TIMEOUT_SEC" envDefault:"30"`
	WriteTimeout       int    `env:"WRITE_TIMEOUT_SEC" envDefault:"120"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName   string `env:"DB_NAME" envDefault:"colon"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// AuthConfig controls how bearer tokens are turned into caller identity.
// In gateway mode the perimeter has already validated the token.
type AuthConfig struct {
	Mode      string `env:"AUTH_MODE" envDefault:"verify"`
	JWTSecret string `env:"JWT_SECRET"`
}

// AWSConfig holds AWS credentials, the recordings bucket and optional CloudFront / Cognito settings.
type AWSConfig struct {
	Region               string `env:"AWS_REGION" envDefault:"ap-northeast-1"`
	AccessKeyID          string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey      string `env:"AWS_SECRET_ACCESS_KEY"`
	RecordingsBucket     string `env:"RECORDINGS_BUCKET" envDefault:"colon-recordings"`
	PresignExpireMinutes int    `env:"AWS_PRESIGN_EXPIRE_MINUTES" envDefault:"60"`
	CloudFrontDomain     string `env:"CLOUDFRONT_DOMAIN"`
	CloudFrontKeyPairID  string `env:"CLOUDFRONT_KEY_PAIR_ID"`
	CloudFrontPrivateKey string `env:"CLOUDFRONT_PRIVATE_KEY"`
	CognitoUserPoolID    string `env:"COGNITO_USER_POOL_ID"`
}

// RecallConfig holds meeting-bot provider settings. Secrets come either from the
// environment directly or from SSM parameters resolved at startup.
type RecallConfig struct {
	BaseURL            string        `env:"RECALL_API_BASE" envDefault:"https://ap-northeast-1.recall.ai/api/v1"`
	APIKey             string        `env:"RECALL_API_KEY"`
	APIKeyParam        string        `env:"RECALL_API_KEY_PARAM" envDefault:"/colon/prod/recall-api-key"`
	WebhookSecret      string        `env:"RECALL_WEBHOOK_SECRET"`
	WebhookSecretParam string        `env:"RECALL_WEBHOOK_SECRET_PARAM" envDefault:"/colon/prod/recall-webhook-secret"`
	MediaRetries       int           `env:"RECALL_MEDIA_RETRIES" envDefault:"3"`
	MediaRetryDelay    time.Duration `env:"RECALL_MEDIA_RETRY_DELAY" envDefault:"5s"`
	Timeout            time.Duration `env:"RECALL_TIMEOUT" envDefault:"30s"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Env      string `env:"ENV" envDefault:"production"`
	Level    string `env:"LOG_LEVEL" envDefault:"info"`
	FilePath string `env:"LOG_FILE"`
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	PruneInterval time.Duration `env:"SESSION_PRUNE_INTERVAL" envDefault:"10m"`
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (DATABASE_URL), it is used as-is; otherwise built from components.
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
	return Parse()
}

// Parse reads configuration from the current environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("environment variables are invalid: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules.
func (c *Config) Validate() error {
	switch c.Auth.Mode {
	case AuthModeVerify:
		if c.Auth.JWTSecret == "" {
			return errors.New("JWT_SECRET is required when AUTH_MODE=verify")
		}
	case AuthModeGateway:
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeVerify, AuthModeGateway, c.Auth.Mode)
	}
	if c.Recall.MediaRetries < 0 {
		return errors.New("RECALL_MEDIA_RETRIES must not be negative")
	}
	if c.AWS.PresignExpireMinutes <= 0 {
		return errors.New("AWS_PRESIGN_EXPIRE_MINUTES must be positive")
	}
	if c.Worker.PruneInterval <= 0 {
		return errors.New("SESSION_PRUNE_INTERVAL must be positive")
	}
	cf := []string{c.AWS.CloudFrontDomain, c.AWS.CloudFrontKeyPairID, c.AWS.CloudFrontPrivateKey}
	set := 0
	for _, v := range cf {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != len(cf) {
		return errors.New("CLOUDFRONT_DOMAIN, CLOUDFRONT_KEY_PAIR_ID and CLOUDFRONT_PRIVATE_KEY must be set together")
	}
	return nil
}

// IsDevelopment reports whether the process runs with a development log setup.
func (c LogConfig) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "local"
}
