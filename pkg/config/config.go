package config

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Storage backends understood by STORAGE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendRedis    = "redis"
	BackendLocal    = "local"
)

// Config holds all application configuration. It is read once at start.
type Config struct {
	Server struct {
		Port           string        `env:"PORT" envDefault:"8000"`
		Env            string        `env:"APP_ENV" envDefault:"development"`
		AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
		UploadDir      string        `env:"UPLOAD_DIR" envDefault:"uploads"`
		ShutdownGrace  time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`
	}

	Storage struct {
		Backend   string `env:"STORAGE_BACKEND" envDefault:"postgres"`
		LocalFile string `env:"LOCAL_STORAGE_FILE" envDefault:"local_storage/chatbots.json"`
	}

	Postgres struct {
		Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
		Port     string `env:"POSTGRES_PORT" envDefault:"5432"`
		Name     string `env:"POSTGRES_DB" envDefault:"chatbot_db"`
		User     string `env:"POSTGRES_USER" envDefault:"postgres"`
		Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
		SSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
		URL      string `env:"DATABASE_URL"`
		MaxConns int    `env:"POSTGRES_MAX_CONNS" envDefault:"20"`
	}

	Mongo struct {
		URI      string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017/chatbots"`
		Database string `env:"MONGODB_DB" envDefault:"chatbots"`
	}

	Redis struct {
		URL      string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
		Password string `env:"REDIS_PASSWORD"`
		Key      string `env:"REDIS_CHATBOTS_KEY" envDefault:"chatbots"`
	}

	Upstream struct {
		BaseURL string        `env:"NEXT_AGI_BASE_URL" envDefault:"http://api.next-agi.com/v1"`
		APIKey  string        `env:"NEXT_AGI_API_KEY"`
		Model   string        `env:"UPSTREAM_MODEL" envDefault:"claude-3-opus-20240229"`
		Timeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"60s"`
	}

	Relay struct {
		SendBuffer int           `env:"WS_SEND_BUFFER" envDefault:"256"`
		ChunkWords int           `env:"WS_CHUNK_WORDS" envDefault:"2"`
		Pacing     time.Duration `env:"WS_STREAM_PACING" envDefault:"0s"`
	}

	Breaker struct {
		FailureThreshold int           `env:"BREAKER_FAILURE_THRESHOLD" envDefault:"3"`
		SuccessThreshold int           `env:"BREAKER_SUCCESS_THRESHOLD" envDefault:"1"`
		RetryTimeout     time.Duration `env:"BREAKER_RETRY_TIMEOUT" envDefault:"30s"`
	}

	Security struct {
		RateLimit      float64 `env:"RATE_LIMIT" envDefault:"10"`
		RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"20"`
		AdminJWTSecret string  `env:"ADMIN_JWT_SECRET"`
	}

	Vault struct {
		Enabled   bool   `env:"VAULT_ENABLED" envDefault:"false"`
		Address   string `env:"VAULT_ADDR"`
		Token     string `env:"VAULT_TOKEN"`
		Namespace string `env:"VAULT_NAMESPACE"`
		Mount     string `env:"VAULT_MOUNT" envDefault:"secret"`
		Path      string `env:"VAULT_SECRETS_PATH" envDefault:"chat-pro"`
	}

	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
	}

	Observability struct {
		TracingEnabled bool   `env:"TRACING_ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"chat-pro"`
		GRPCPort       string `env:"GRPC_PORT"`
	}

	OpenAPISchemaPath string `env:"OPENAPI_SCHEMA_PATH"`
}

var (
	instance *Config
	once     sync.Once
)

// New loads .env (if present) and the process environment exactly once.
func New() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		cfg, err := Load()
		if err != nil {
			panic(err)
		}
		instance = cfg
	})
	return instance
}

// Get returns the singleton Config instance.
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load parses the environment into a fresh Config without touching the
// singleton.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	switch cfg.Storage.Backend {
	case BackendPostgres, BackendMongo, BackendRedis, BackendLocal:
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.Storage.Backend)
	}
	return cfg, nil
}

// PostgresDSN returns DATABASE_URL when set, otherwise a URL assembled from
// the POSTGRES_* variables.
func (c *Config) PostgresDSN() string {
	if c.Postgres.URL != "" {
		return c.Postgres.URL
	}
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:     c.Postgres.Host + ":" + c.Postgres.Port,
		Path:     "/" + c.Postgres.Name,
		RawQuery: "sslmode=" + c.Postgres.SSLMode,
	}
	return u.String()
}

// IsDevelopment reports whether APP_ENV is development.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}
