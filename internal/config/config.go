// config - источник загрузки конфигурации шлюза переписок.
//
// Источники (по убыванию приоритета):
//  1. явный путь --config;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. только ENV (cleanenv).
//
// После чтения файла ENV-переменные накладываются поверх значений из YAML.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	Backend  BackendConfig `yaml:"backend"`
	Auth     AuthConfig    `yaml:"auth"`
	Upload   UploadConfig  `yaml:"upload"`
	Cache    CacheConfig   `yaml:"cache"`
	Limits   LimitsConfig  `yaml:"limits"`
	CORS     CORSConfig    `yaml:"cors"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// HTTPConfig — публичный REST-сервер шлюза.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"50095"`
}

func (h HTTPConfig) Addr() string { return net.JoinHostPort(h.Host, h.Port) }

// BackendConfig — REST-бэкенд маркетплейса.
type BackendConfig struct {
	BaseURL   string `yaml:"base_url"   env:"BACKEND_BASE_URL"   env-required:"true"`
	UserAgent string `yaml:"user_agent" env:"BACKEND_USER_AGENT" env-default:"conversations-gateway"`
}

// AuthConfig — проверка access-токенов, выпущенных auth-сервисом.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	Issuer    string        `yaml:"issuer"     env:"ISSUER"     env-default:"auth-service"`
	Audience  []string      `yaml:"audience"   env:"AUDIENCE"   env-default:"api-gateway"`
	Leeway    time.Duration `yaml:"leeway"     env:"AUTH_LEEWAY" env-default:"30s"`
}

// UploadConfig — S3/MinIO для вложений.
type UploadConfig struct {
	Endpoint      string        `yaml:"endpoint"        env:"S3_ENDPOINT"        env-required:"true"`
	RootUser      string        `yaml:"root_user"       env:"S3_ROOT_USER"       env-required:"true"`
	RootPassword  string        `yaml:"root_password"   env:"S3_ROOT_PASSWORD"   env-required:"true"`
	Bucket        string        `yaml:"bucket"          env:"S3_BUCKET"          env-default:"attachments"`
	PublicBaseURL string        `yaml:"public_base_url" env:"S3_PUBLIC_BASE_URL"`
	PresignTTL    time.Duration `yaml:"presign_ttl"     env:"S3_PRESIGN_TTL"     env-default:"24h"`
	MaxSizeBytes  int64         `yaml:"max_size_bytes"  env:"UPLOAD_MAX_SIZE_BYTES" env-default:"20971520"`
}

// CacheConfig — Redis-кэш владельцев объявлений. Пустой URL отключает кэш.
type CacheConfig struct {
	RedisURL   string        `yaml:"redis_url"   env:"REDIS_URL"`
	Prefix     string        `yaml:"prefix"      env:"CACHE_PREFIX"      env-default:"conversations:"`
	ListingTTL time.Duration `yaml:"listing_ttl" env:"CACHE_LISTING_TTL" env-default:"5m"`
}

// LimitsConfig — доменные ограничения и защита от флуда.
type LimitsConfig struct {
	MinCommentLength   int     `yaml:"min_comment_length"   env:"LIMITS_MIN_COMMENT_LENGTH"   env-default:"5"`
	MaxMessageLength   int     `yaml:"max_message_length"   env:"LIMITS_MAX_MESSAGE_LENGTH"   env-default:"4000"`
	MaxCommentLength   int     `yaml:"max_comment_length"   env:"LIMITS_MAX_COMMENT_LENGTH"   env-default:"2000"`
	MarkReadParallel   int     `yaml:"mark_read_parallel"   env:"LIMITS_MARK_READ_PARALLEL"   env-default:"4"`
	WriteRatePerSecond float64 `yaml:"write_rate_per_second" env:"LIMITS_WRITE_RATE"          env-default:"2"`
	WriteBurst         int     `yaml:"write_burst"          env:"LIMITS_WRITE_BURST"          env-default:"5"`
	// Простаивающие состояния зрителей и лимитеры забываются; 0 отключает вытеснение.
	ViewerIdleTTL  time.Duration `yaml:"viewer_idle_ttl"  env:"LIMITS_VIEWER_IDLE_TTL"  env-default:"30m"`
	LimiterIdleTTL time.Duration `yaml:"limiter_idle_ttl" env:"LIMITS_LIMITER_IDLE_TTL" env-default:"10m"`
	SweepInterval  time.Duration `yaml:"sweep_interval"   env:"LIMITS_SWEEP_INTERVAL"   env-default:"1m"`
}

// CORSConfig — источники браузерного UI.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"http://localhost:3000"`
	MaxAge         int      `yaml:"max_age"         env:"CORS_MAX_AGE"         env-default:"300"`
}

// TimeoutConfig — таймауты запросов.
type TimeoutConfig struct {
	Request time.Duration `yaml:"request" env:"TIMEOUT_REQUEST" env-default:"15s"`
	Backend time.Duration `yaml:"backend" env:"TIMEOUT_BACKEND" env-default:"5s"`
}

// MustLoad — паника при ошибке загрузки.
func MustLoad(path string) *Config {
	cfg, err := Load(path)

	if err != nil {
		panic(err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		if err := cfg.validate(); err != nil {
			return nil, err
		}

		return &cfg, nil
	}

	// 1) --config
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) только ENV
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate — базовая валидация значений.
func (c *Config) validate() error {
	switch c.Env {
	case "local", "dev", "prod":
	default:
		return fmt.Errorf("env must be one of local|dev|prod, got %q", c.Env)
	}

	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an absolute url")
	}

	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 bytes")
	}

	if c.Upload.Bucket == "" {
		return fmt.Errorf("upload.bucket is required")
	}

	if c.Upload.MaxSizeBytes <= 0 {
		return fmt.Errorf("upload.max_size_bytes must be > 0")
	}

	if c.Upload.PublicBaseURL == "" && c.Upload.PresignTTL <= 0 {
		return fmt.Errorf("upload.presign_ttl must be > 0 when public_base_url is empty")
	}

	if c.Cache.RedisURL != "" && c.Cache.ListingTTL <= 0 {
		return fmt.Errorf("cache.listing_ttl must be > 0")
	}

	if c.Limits.MinCommentLength <= 0 {
		return fmt.Errorf("limits.min_comment_length must be > 0")
	}

	if c.Limits.MaxCommentLength < c.Limits.MinCommentLength {
		return fmt.Errorf("limits.max_comment_length must be >= limits.min_comment_length")
	}

	if c.Limits.MaxMessageLength <= 0 {
		return fmt.Errorf("limits.max_message_length must be > 0")
	}

	if c.Limits.MarkReadParallel <= 0 {
		return fmt.Errorf("limits.mark_read_parallel must be > 0")
	}

	if c.Limits.WriteRatePerSecond < 0 || c.Limits.WriteBurst < 0 {
		return fmt.Errorf("limits.write_rate_per_second and limits.write_burst must be >= 0")
	}

	if c.Limits.ViewerIdleTTL < 0 || c.Limits.LimiterIdleTTL < 0 || c.Limits.SweepInterval < 0 {
		return fmt.Errorf("limits.viewer_idle_ttl, limits.limiter_idle_ttl and limits.sweep_interval must be >= 0")
	}

	if c.Timeouts.Request <= 0 || c.Timeouts.Backend <= 0 {
		return fmt.Errorf("timeouts.request and timeouts.backend must be > 0")
	}

	return nil
}
