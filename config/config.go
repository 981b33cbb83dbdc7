package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"maxOpenConns"`
	MaxIdleConns           int    `yaml:"maxIdleConns"`
	ConnMaxLifetimeSeconds int    `yaml:"connMaxLifetimeSeconds"`
	ConnMaxIdleTimeSeconds int    `yaml:"connMaxIdleTimeSeconds"`
}

type RedisConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type SQSConfig struct {
	Endpoint         string `yaml:"endpoint"`
	BlobCleanupQueue string `yaml:"blobCleanupQueue"`
}

type S3Config struct {
	Bucket                string `yaml:"bucket"`
	Region                string `yaml:"region"`
	Endpoint              string `yaml:"endpoint"`
	PublicBaseURL         string `yaml:"publicBaseUrl"`
	UsePathStyle          bool   `yaml:"usePathStyle"`
	UploadURLTTLSeconds   int    `yaml:"uploadUrlTtlSeconds"`
	DownloadURLTTLSeconds int    `yaml:"downloadUrlTtlSeconds"`
}

type AssetConfig struct {
	MaxBytes                  int64 `yaml:"maxBytes"`
	CleanupGracePeriodSeconds int   `yaml:"cleanupGracePeriodSeconds"`
}

type AuthConfig struct {
	JWTSecret          string `yaml:"jwtSecret"`
	GithubClientID     string `yaml:"githubClientId"`
	GithubClientSecret string `yaml:"githubClientSecret"`
	GoogleClientID     string `yaml:"googleClientId"`
	GoogleClientSecret string `yaml:"googleClientSecret"`
	OAuthRedirectURL   string `yaml:"oauthRedirectUrl"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
	UploadsPerMinute  int     `yaml:"uploadsPerMinute"`
}

type SessionConfig struct {
	DebounceMilliseconds int `yaml:"debounceMilliseconds"`
}

type Config struct {
	DevMode       bool            `yaml:"devMode"`
	Port          string          `yaml:"port"`
	LogLevel      string          `yaml:"logLevel"`
	AllowedOrigin string          `yaml:"allowedOrigin"`
	Database      DatabaseConfig  `yaml:"database"`
	Redis         RedisConfig     `yaml:"redis"`
	SQS           SQSConfig       `yaml:"sqs"`
	S3            S3Config        `yaml:"s3"`
	Assets        AssetConfig     `yaml:"assets"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rateLimit"`
	Session       SessionConfig   `yaml:"session"`
}

func Default() Config {
	return Config{
		Port:     "8080",
		LogLevel: "info",
		Database: DatabaseConfig{
			MaxOpenConns:           10,
			MaxIdleConns:           10,
			ConnMaxLifetimeSeconds: 300,
			ConnMaxIdleTimeSeconds: 60,
		},
		Redis: RedisConfig{Endpoint: "localhost:6379"},
		SQS:   SQSConfig{BlobCleanupQueue: "EaselBlobCleanupQueue"},
		S3: S3Config{
			Region:                "us-east-1",
			UploadURLTTLSeconds:   900,
			DownloadURLTTLSeconds: 3600,
		},
		Assets: AssetConfig{
			MaxBytes:                  50 * 1024 * 1024,
			CleanupGracePeriodSeconds: 600,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
			UploadsPerMinute:  30,
		},
		Session: SessionConfig{DebounceMilliseconds: 2000},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := readConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func readConfig(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) {
	if raw := os.Getenv("DEV_MODE"); raw != "" {
		cfg.DevMode = raw == "true"
	}
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.AllowedOrigin, "ALLOWED_ORIGIN")

	setString(&cfg.Database.URL, "DATABASE_URL")
	setPositiveInt(&cfg.Database.MaxOpenConns, "DB_MAX_OPEN_CONNS")
	setPositiveInt(&cfg.Database.MaxIdleConns, "DB_MAX_IDLE_CONNS")
	setPositiveInt(&cfg.Database.ConnMaxLifetimeSeconds, "DB_CONN_MAX_LIFETIME_SECONDS")
	setPositiveInt(&cfg.Database.ConnMaxIdleTimeSeconds, "DB_CONN_MAX_IDLE_SECONDS")

	setString(&cfg.Redis.Endpoint, "REDIS_ENDPOINT")

	setString(&cfg.SQS.Endpoint, "SQS_ENDPOINT")
	setString(&cfg.SQS.BlobCleanupQueue, "SQS_BLOB_CLEANUP_QUEUE")

	setString(&cfg.S3.Bucket, "S3_BUCKET")
	setString(&cfg.S3.Region, "S3_REGION")
	setString(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setString(&cfg.S3.PublicBaseURL, "S3_PUBLIC_BASE_URL")
	if raw := os.Getenv("S3_USE_PATH_STYLE"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.S3.UsePathStyle = value
		}
	}
	setPositiveInt(&cfg.S3.UploadURLTTLSeconds, "S3_UPLOAD_URL_TTL_SECONDS")
	setPositiveInt(&cfg.S3.DownloadURLTTLSeconds, "S3_DOWNLOAD_URL_TTL_SECONDS")

	if raw := os.Getenv("MAX_ASSET_BYTES"); raw != "" {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil && value > 0 {
			cfg.Assets.MaxBytes = value
		}
	}
	if raw := os.Getenv("CLEANUP_GRACE_PERIOD_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value >= 0 {
			cfg.Assets.CleanupGracePeriodSeconds = value
		}
	}

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.GithubClientID, "GITHUB_CLIENT_ID")
	setString(&cfg.Auth.GithubClientSecret, "GITHUB_CLIENT_SECRET")
	setString(&cfg.Auth.GoogleClientID, "GOOGLE_CLIENT_ID")
	setString(&cfg.Auth.GoogleClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&cfg.Auth.OAuthRedirectURL, "OAUTH_REDIRECT_URL")

	if raw := os.Getenv("RATE_LIMIT_RPS"); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil && value > 0 {
			cfg.RateLimit.RequestsPerSecond = value
		}
	}
	setPositiveInt(&cfg.RateLimit.Burst, "RATE_LIMIT_BURST")
	setPositiveInt(&cfg.RateLimit.UploadsPerMinute, "RATE_LIMIT_UPLOADS_PER_MINUTE")

	setPositiveInt(&cfg.Session.DebounceMilliseconds, "SESSION_DEBOUNCE_MS")
}

func setString(dst *string, key string) {
	if raw := os.Getenv(key); raw != "" {
		*dst = raw
	}
}

func setPositiveInt(dst *int, key string) {
	if raw := os.Getenv(key); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			*dst = value
		}
	}
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is not set"))
	}
	if c.S3.Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET is not set"))
	}
	if _, err := c.JWTSecretBytes(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) JWTSecretBytes() ([]byte, error) {
	if c.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	secret, err := base64.StdEncoding.DecodeString(c.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("JWT_SECRET is not valid base64: %w", err)
	}
	if len(secret) < 32 {
		return nil, errors.New("JWT_SECRET must decode to at least 32 bytes")
	}
	return secret, nil
}

func (c Config) ConnMaxLifetime() time.Duration {
	return time.Duration(c.Database.ConnMaxLifetimeSeconds) * time.Second
}

func (c Config) ConnMaxIdleTime() time.Duration {
	return time.Duration(c.Database.ConnMaxIdleTimeSeconds) * time.Second
}

func (c Config) UploadURLTTL() time.Duration {
	return time.Duration(c.S3.UploadURLTTLSeconds) * time.Second
}

func (c Config) DownloadURLTTL() time.Duration {
	return time.Duration(c.S3.DownloadURLTTLSeconds) * time.Second
}

func (c Config) CleanupGracePeriod() time.Duration {
	return time.Duration(c.Assets.CleanupGracePeriodSeconds) * time.Second
}

func (c Config) SessionDebounce() time.Duration {
	return time.Duration(c.Session.DebounceMilliseconds) * time.Millisecond
}
