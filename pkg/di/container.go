package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/tirumala-karthikeya/chat-pro/ai"
	openapi "github.com/tirumala-karthikeya/chat-pro/api"
	"github.com/tirumala-karthikeya/chat-pro/internal/repository"
	"github.com/tirumala-karthikeya/chat-pro/internal/service"
	"github.com/tirumala-karthikeya/chat-pro/internal/ws"
	"github.com/tirumala-karthikeya/chat-pro/pkg/config"
	"github.com/tirumala-karthikeya/chat-pro/pkg/health"
	"github.com/tirumala-karthikeya/chat-pro/pkg/jwt"
	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
	"github.com/tirumala-karthikeya/chat-pro/pkg/resilience"
	"github.com/tirumala-karthikeya/chat-pro/pkg/secrets"
	"github.com/tirumala-karthikeya/chat-pro/pkg/validator"
	"github.com/tirumala-karthikeya/chat-pro/shared/observability"
	redisclient "github.com/tirumala-karthikeya/chat-pro/shared/redis"
)

// Container holds all the dependencies for the application
type Container struct {
	Config         *config.Config
	Logger         *logger.Logger
	Metrics        *observability.Metrics
	MetricsHandler http.Handler
	Gateway        *service.ChatbotGateway
	Upstream       *ai.Client
	Relay          *service.ChatRelay
	Hub            *ws.Hub
	Secrets        *secrets.VaultManager
	Health         *health.Checker
	Validator      *validator.OpenAPIValidator
	// JWTService is nil when admin auth is disabled.
	JWTService *jwt.Service

	meterProvider *sdkmetric.MeterProvider
}

// NewStore builds the engine for backend without connecting it.
func NewStore(cfg *config.Config, backend string, log *logger.Logger) (repository.Store, error) {
	switch backend {
	case config.BackendPostgres:
		return repository.NewPostgresStore(cfg.PostgresDSN(), config.DBOptions{
			Attempts: 3,
			Delay:    2 * time.Second,
			MaxConns: cfg.Postgres.MaxConns,
			Verbose:  cfg.IsDevelopment(),
		}), nil
	case config.BackendMongo:
		uri, fixed := repository.NormalizeMongoURI(cfg.Mongo.URI, cfg.Mongo.Database)
		if fixed {
			log.Warn("MONGODB_URI had no scheme, assuming mongodb://", "uri", repository.RedactURL(uri))
		}
		return repository.NewMongoStore(uri, cfg.Mongo.Database), nil
	case config.BackendRedis:
		client, err := redisclient.NewClient(cfg.Redis.URL, cfg.Redis.Password)
		if err != nil {
			return nil, err
		}
		return repository.NewRedisStore(client, cfg.Redis.Key, repository.RedactURL(cfg.Redis.URL)), nil
	case config.BackendLocal:
		return repository.NewLocalStore(cfg.Storage.LocalFile), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// New wires every service from cfg. ctx bounds background work such as the
// websocket hub and relay calls; cancel it to stop them.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: log}

	mp, metricsHandler, err := observability.SetupPrometheusMetrics(cfg.Observability.ServiceName)
	if err != nil {
		return nil, err
	}
	c.meterProvider = mp
	c.MetricsHandler = metricsHandler
	if c.Metrics, err = observability.NewMetrics(mp.Meter(observability.InstrumentationName)); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	if c.Secrets, err = secrets.NewVaultManager(secrets.VaultConfig{
		Enabled:   cfg.Vault.Enabled,
		Address:   cfg.Vault.Address,
		Token:     cfg.Vault.Token,
		Namespace: cfg.Vault.Namespace,
		Mount:     cfg.Vault.Mount,
		Path:      cfg.Vault.Path,
	}, log); err != nil {
		return nil, fmt.Errorf("init secrets: %w", err)
	}

	local := repository.NewLocalStore(cfg.Storage.LocalFile)
	opts := []service.GatewayOption{
		service.WithLogger(log),
		service.WithMetrics(c.Metrics),
		service.WithBreakerConfig(resilience.Config{
			Name:             "primary-store",
			FailureThreshold: uint(cfg.Breaker.FailureThreshold),
			SuccessThreshold: uint(cfg.Breaker.SuccessThreshold),
			RetryTimeout:     cfg.Breaker.RetryTimeout,
		}),
	}
	if cfg.Storage.Backend != config.BackendLocal {
		primary, err := NewStore(cfg, cfg.Storage.Backend, log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithPrimary(primary))
	}
	c.Gateway = service.NewChatbotGateway(local, opts...)
	c.Gateway.Init(ctx)

	c.Upstream = ai.NewClient(
		ai.WithBaseURL(cfg.Upstream.BaseURL),
		ai.WithKeySource(secrets.KeySource(c.Secrets, "NEXT_AGI_API_KEY", cfg.Upstream.APIKey)),
		ai.WithTimeout(cfg.Upstream.Timeout),
		ai.WithModel(cfg.Upstream.Model),
		ai.WithLogger(log),
	)
	c.Relay = service.NewChatRelay(c.Upstream, service.RelayConfig{
		ChunkWords: cfg.Relay.ChunkWords,
		Pacing:     cfg.Relay.Pacing,
	}, log, c.Metrics)

	c.Hub = ws.NewHub(log, c.Metrics)
	go c.Hub.Run(ctx)

	if cfg.Security.AdminJWTSecret != "" {
		if c.JWTService, err = jwt.NewService(cfg.Security.AdminJWTSecret, 0); err != nil {
			return nil, err
		}
	}

	if cfg.OpenAPISchemaPath != "" {
		c.Validator, err = validator.NewOpenAPIValidator(cfg.OpenAPISchemaPath)
	} else {
		c.Validator, err = validator.NewOpenAPIValidatorFromData(openapi.Schema)
	}
	if err != nil {
		return nil, err
	}

	c.Health = health.NewChecker(log, 5*time.Second)
	c.Health.RegisterCheck("storage", true, c.storageCheck)
	c.Health.RegisterAPICheck("upstream", cfg.Upstream.BaseURL, nil)

	return c, nil
}

// storageCheck is down only when no store at all can answer.
func (c *Container) storageCheck(ctx context.Context) (health.Status, string, error) {
	info := c.Gateway.Health(ctx)
	switch {
	case !info.Connected:
		return health.StatusDown, info.Database, errorOrNil(info.Error)
	case info.Degraded:
		return health.StatusDegraded, "serving from " + info.Database, errorOrNil(info.PrimaryError)
	default:
		return health.StatusUp, info.Database, nil
	}
}

func errorOrNil(msg string) error {
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}

// Close releases stores and flushes metrics.
func (c *Container) Close(ctx context.Context) error {
	return errors.Join(c.Gateway.Close(ctx), c.meterProvider.Shutdown(ctx))
}
