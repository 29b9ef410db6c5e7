package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"

	"github.com/tirumala-karthikeya/chat-pro/pkg/cache"
	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
)

var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// Manager provides access to secrets.
type Manager interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// VaultConfig holds configuration for the Vault client.
type VaultConfig struct {
	Enabled   bool
	Address   string
	Token     string
	Namespace string
	Mount     string
	Path      string
	Timeout   time.Duration
	CacheTTL  time.Duration
}

// VaultManager reads secrets from a Vault KV v2 mount and falls back to
// the process environment when Vault is disabled or lacks the key.
type VaultManager struct {
	client *vault.Client
	config VaultConfig
	log    *logger.Logger

	cache *cache.Cache[string]
}

func NewVaultManager(cfg VaultConfig, log *logger.Logger) (*VaultManager, error) {
	if log == nil {
		log = logger.GetGlobal()
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.Path == "" {
		cfg.Path = "chat-pro"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	m := &VaultManager{config: cfg, log: log, cache: cache.New[string](cache.Options{TTL: cfg.CacheTTL, MaxItems: 256})}
	if !cfg.Enabled {
		return m, nil
	}

	if cfg.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if cfg.Token == "" {
		return nil, ErrNoVaultToken
	}

	vc := vault.DefaultConfig()
	vc.Address = cfg.Address
	vc.Timeout = cfg.Timeout
	vc.MaxRetries = 3
	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	m.client = client
	return m, nil
}

// GetSecret returns key from Vault, then from the environment.
func (m *VaultManager) GetSecret(ctx context.Context, key string) (string, error) {
	if v, ok := m.cache.Get(key); ok {
		return v, nil
	}

	if m.client != nil {
		value, err := m.fromVault(ctx, key)
		switch {
		case err == nil:
			m.cache.Set(key, value)
			return value, nil
		case errors.Is(err, ErrSecretNotFound):
			m.log.Warn("Secret not found in Vault, falling back to environment", "key", key)
		default:
			return "", err
		}
	}
	return m.fromEnvironment(key)
}

func (m *VaultManager) fromVault(ctx context.Context, key string) (string, error) {
	secret, err := m.client.KVv2(m.config.Mount).Get(ctx, m.config.Path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", ErrSecretNotFound
	}
	value, ok := secret.Data[key].(string)
	if !ok || value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}

func (m *VaultManager) fromEnvironment(key string) (string, error) {
	envKey := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
	value := os.Getenv(envKey)
	if value == "" {
		return "", ErrSecretNotFound
	}
	m.cache.Set(key, value)
	return value, nil
}

// KeySource adapts m to a lazily resolved key with a static fallback.
func KeySource(m Manager, key, fallback string) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		v, err := m.GetSecret(ctx, key)
		if errors.Is(err, ErrSecretNotFound) {
			return fallback, nil
		}
		return v, err
	}
}
